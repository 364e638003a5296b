// routes_serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nanochat/nanochat/config"
	"github.com/nanochat/nanochat/envconfig"
	"github.com/nanochat/nanochat/kernels"
	"github.com/nanochat/nanochat/logutil"
	"github.com/nanochat/nanochat/ml"
	"github.com/nanochat/nanochat/version"
)

// Serve startet den HTTP-Server auf ln
func Serve(ln net.Listener, backend string, device ml.Device, cfg config.Kernels) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	s, err := NewServer(Params{
		Addr:     ln.Addr(),
		Registry: kernels.Default(),
		Backend:  backend,
		Device:   device,
		Kernels:  cfg,
	})
	if err != nil {
		return err
	}

	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	// Geraete frueh loggen, damit Probleme vor der ersten Anfrage sichtbar sind
	for _, d := range s.backend.BackendDevices() {
		slog.Info("inference device", "device", d)
	}

	for _, kind := range kernels.Kinds() {
		opts := cfg.Options(kind)
		slog.Info("kernel config", "kind", kind, "enabled", opts.Enabled, "impl", opts.Impl, "allow_fallback", opts.AllowFallback)
	}

	ctx, done := context.WithCancel(context.Background())
	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{Handler: h}

	// listen for a ctrl+c and stop the server
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		done()
	}()

	err = srvr.Serve(ln)
	// If server is closed from the signal handler, wait for the ctx to be done
	// otherwise error out quickly
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-ctx.Done()
	return nil
}
