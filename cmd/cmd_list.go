// cmd_list.go - Auflistungs-Commands
// Hauptfunktionen: StatusHandler, ResetHandler, EnvHandler, DevicesHandler
package cmd

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nanochat/nanochat/api"
	"github.com/nanochat/nanochat/envconfig"
	"github.com/nanochat/nanochat/ml"
)

// StatusHandler - Zeigt die Kernel-Slots des laufenden Servers
func StatusHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	status, err := client.KernelStatus(cmd.Context())
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(status)
	}

	var data [][]string
	for pair := status.Kernels.Oldest(); pair != nil; pair = pair.Next() {
		k := pair.Value
		data = append(data, []string{pair.Key, yesNo(k.Enabled), k.Provider, orDash(k.Ref), yesNo(k.Warned)})
	}

	fmt.Printf("registry %s on backend %s (fallback allowed: %s, clusters: %d)\n\n",
		status.RegistryID, status.Backend, yesNo(status.AllowFallback), status.NumSMClusters)
	renderTable(os.Stdout, []string{"KERNEL", "ENABLED", "PROVIDER", "REF", "WARNED"}, data)
	return nil
}

// ResetHandler - Setzt die Registry des Servers zurueck
func ResetHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	if err := client.ResetKernels(cmd.Context()); err != nil {
		return err
	}

	fmt.Println("kernel registry reset")
	return nil
}

// EnvHandler - Zeigt alle NANOCHAT_* Variablen mit aktuellem Wert
func EnvHandler(cmd *cobra.Command, args []string) error {
	vars := envconfig.AsMap()
	values := envconfig.Values()

	var data [][]string
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		data = append(data, []string{name, values[name], vars[name].Description})
	}

	renderTable(os.Stdout, []string{"NAME", "VALUE", "DESCRIPTION"}, data)
	return nil
}

// DevicesHandler - Listet die Geraete aller registrierten Backends
func DevicesHandler(cmd *cobra.Command, args []string) error {
	device, _ := cmd.Flags().GetString("device")

	var data [][]string
	for _, name := range ml.Backends() {
		b, err := ml.NewBackend(name, ml.BackendParams{Device: ml.Device(device)})
		if err != nil {
			data = append(data, []string{name, "-", "-", err.Error(), "-", "-"})
			continue
		}

		for _, d := range b.BackendDevices() {
			threads := "-"
			if d.ThreadCount > 0 {
				threads = strconv.Itoa(d.ThreadCount)
			}
			data = append(data, []string{name, string(d.Device), d.Name, d.Description, threads, orDash(strings.Join(d.Features, ","))})
		}
	}

	renderTable(os.Stdout, []string{"BACKEND", "DEVICE", "NAME", "DESCRIPTION", "THREADS", "FEATURES"}, data)
	return nil
}
