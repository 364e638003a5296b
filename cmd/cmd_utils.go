// cmd_utils.go - Hilfsfunktionen fuer Commands
// Hauptfunktionen: checkServerHeartbeat, kernelConfig, newSession, randomTensor
package cmd

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nanochat/nanochat/api"
	"github.com/nanochat/nanochat/config"
	"github.com/nanochat/nanochat/envconfig"
	"github.com/nanochat/nanochat/kernels"
	"github.com/nanochat/nanochat/kernels/clustered"
	"github.com/nanochat/nanochat/logutil"
	"github.com/nanochat/nanochat/ml"
	_ "github.com/nanochat/nanochat/ml/backend"
	"github.com/nanochat/nanochat/ml/backend/host"
)

// checkServerHeartbeat - Prueft ob der Server erreichbar ist
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		return fmt.Errorf("nanochat server not responding at %s - %w", envconfig.Host(), err)
	}
	return nil
}

// kernelConfig - Liest --config und legt NANOCHAT_* Variablen darueber
func kernelConfig(cmd *cobra.Command) (config.Kernels, error) {
	var cfg config.Kernels
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Kernels{}, err
		}
	}
	return cfg.Merge(config.FromEnvironment()), nil
}

// session bundelt Backend, Registry und Attention-Implementierungen fuer
// Commands, die ohne Server arbeiten
type session struct {
	backend   ml.Backend
	registry  *kernels.Registry
	engine    *clustered.Engine
	reference kernels.AttentionFunc
}

// newSession - Erstellt Backend und Engine und exportiert die Engine in kernels.Units
func newSession(cmd *cobra.Command) (*session, error) {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	name, _ := cmd.Flags().GetString("backend")
	device, _ := cmd.Flags().GetString("device")

	b, err := ml.NewBackend(name, ml.BackendParams{Device: ml.Device(device)})
	if err != nil {
		return nil, err
	}

	rt := &session{
		backend:   b,
		registry:  kernels.New(),
		reference: clustered.New(b.Dense()).Attention,
	}

	var opts []clustered.Option
	if vb, ok := b.(ml.VarlenBackend); ok {
		opts = append(opts, clustered.WithVarlen(vb.Varlen()))
	}
	rt.engine = clustered.New(b.Dense(), opts...)
	rt.engine.Export(kernels.Units)

	return rt, nil
}

// randomTensor - Erzeugt einen Tensor mit normalverteilten Werten
func randomTensor(ctx ml.Context, rng *rand.Rand, dtype ml.DType, shape ...int) ml.Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}

	s := make([]float32, n)
	for i := range s {
		s[i] = float32(rng.NormFloat64())
	}
	return ctx.FromFloats(dtype, s, shape...)
}

// parseShape - Liest eine Form der Art "2x4x8x16"
func parseShape(s string) ([]int, error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 4 {
		return nil, fmt.Errorf("shape %q must be BxHxTxD", s)
	}

	shape := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("shape %q: invalid dimension %q", s, p)
		}
		shape[i] = n
	}
	return shape, nil
}

func parseFloatDType(s string) (ml.DType, error) {
	dtype := ml.ParseDType(s)
	if !dtype.IsFloat() {
		return ml.DTypeOther, fmt.Errorf("unsupported dtype %q", s)
	}
	return dtype, nil
}

// hostContext - Kontext fuer Eingaben, die an einen Server gesendet werden
func hostContext(device string) ml.Context {
	return host.NewContext(ml.Device(device))
}

func tensorPayload(t ml.Tensor) api.TensorPayload {
	return api.TensorPayload{
		Shape: t.Shape(),
		DType: t.DType().String(),
		Data:  t.Floats(),
	}
}
