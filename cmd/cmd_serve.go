// cmd_serve.go - Server-Start und Version
// Hauptfunktionen: RunServer, versionHandler
package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/nanochat/nanochat/api"
	"github.com/nanochat/nanochat/envconfig"
	"github.com/nanochat/nanochat/ml"
	"github.com/nanochat/nanochat/server"
	"github.com/nanochat/nanochat/version"
)

// RunServer - Startet den Kernel-Server
func RunServer(cmd *cobra.Command, _ []string) error {
	cfg, err := kernelConfig(cmd)
	if err != nil {
		return err
	}

	backend, _ := cmd.Flags().GetString("backend")
	device, _ := cmd.Flags().GetString("device")

	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln, backend, ml.Device(device), cfg)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// versionHandler - Zeigt die Version an
func versionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Println("Warning: could not connect to a running nanochat server")
	}

	if serverVersion != "" {
		fmt.Printf("nanochat version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Printf("Warning: client version is %s\n", version.Version)
	}
}
