// cmd_builders.go - Command-Builder Funktionen
// Hauptfunktionen: newStatusCmd, newResolveCmd, newAttentionCmd, etc.
package cmd

import (
	"github.com/spf13/cobra"
)

// addKernelFlags - Flags fuer Backend, Geraet und Modell-Konfiguration
func addKernelFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Model config with kernel settings (.yaml, .yml or .json)")
	cmd.Flags().String("backend", "host", "Tensor backend")
	cmd.Flags().String("device", "cpu", "Device the backend places tensors on (cpu, cuda, metal)")
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the kernel server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}

	addKernelFlags(serveCmd)
	return serveCmd
}

// newStatusCmd - Erstellt den status Command
func newStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"ps"},
		Short:   "Show the kernel slots of a running server",
		Args:    cobra.ExactArgs(0),
		PreRunE: checkServerHeartbeat,
		RunE:    StatusHandler,
	}

	statusCmd.Flags().Bool("json", false, "Print the raw JSON response")
	return statusCmd
}

// newResetCmd - Erstellt den reset Command
func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "reset",
		Short:   "Clear kernel slots and warnings of a running server",
		Args:    cobra.ExactArgs(0),
		PreRunE: checkServerHeartbeat,
		RunE:    ResetHandler,
	}
}

// newResolveCmd - Erstellt den resolve Command
func newResolveCmd() *cobra.Command {
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve every kernel kind locally and show the outcome",
		Args:  cobra.ExactArgs(0),
		RunE:  ResolveHandler,
	}

	addKernelFlags(resolveCmd)
	return resolveCmd
}

// newAttentionCmd - Erstellt den attention Command
func newAttentionCmd() *cobra.Command {
	attentionCmd := &cobra.Command{
		Use:   "attention",
		Short: "Run the configured attention kernel on random inputs",
		Args:  cobra.ExactArgs(0),
		RunE:  AttentionHandler,
	}

	addKernelFlags(attentionCmd)
	addShapeFlags(attentionCmd)
	attentionCmd.Flags().Bool("mask", false, "Pass an explicit boolean mask")
	attentionCmd.Flags().Bool("remote", false, "Run on a running server instead of in-process")
	attentionCmd.Flags().Bool("dump", false, "Print the output tensor")
	return attentionCmd
}

// addShapeFlags - Flags fuer Eingabe-Formen
func addShapeFlags(cmd *cobra.Command) {
	cmd.Flags().Int("batch", 2, "Batch size")
	cmd.Flags().Int("heads", 4, "Query heads")
	cmd.Flags().Int("kv-heads", 0, "Key/value heads (default: query heads)")
	cmd.Flags().Int("seq", 8, "Sequence length")
	cmd.Flags().Int("head-dim", 16, "Head dimension")
	cmd.Flags().String("dtype", "bf16", "Input dtype (f32, f16, bf16)")
	cmd.Flags().Bool("causal", true, "Causal attention")
	cmd.Flags().Int("clusters", 0, "Compute-cluster hint (overrides config)")
	cmd.Flags().Uint64("seed", 1, "Random seed")
}

// newParityCmd - Erstellt den parity Command
func newParityCmd() *cobra.Command {
	parityCmd := &cobra.Command{
		Use:   "parity",
		Short: "Compare the accelerated path with dense attention across shapes",
		Args:  cobra.ExactArgs(0),
		RunE:  ParityHandler,
	}

	parityCmd.Flags().String("backend", "host", "Tensor backend")
	parityCmd.Flags().String("device", "cuda", "Device label of the inputs")
	parityCmd.Flags().StringSlice("shapes", []string{"2x4x8x16", "1x8x32x64", "4x2x1x8", "3x6x17x32"}, "Shapes as BxHxTxD")
	parityCmd.Flags().StringSlice("dtypes", []string{"f16", "bf16"}, "Input dtypes")
	parityCmd.Flags().Int("kv-groups", 2, "Query heads per key/value head")
	parityCmd.Flags().Float64("tolerance", 2e-2, "Maximum absolute difference")
	parityCmd.Flags().Uint64("seed", 1, "Random seed")
	parityCmd.Flags().Int("parallel", 0, "Concurrent comparisons (default: number of CPUs)")
	return parityCmd
}

// newEnvCmd - Erstellt den env Command
func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the NANOCHAT_* environment configuration",
		Args:  cobra.ExactArgs(0),
		RunE:  EnvHandler,
	}
}

// newDevicesCmd - Erstellt den devices Command
func newDevicesCmd() *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List backends and their devices",
		Args:  cobra.ExactArgs(0),
		RunE:  DevicesHandler,
	}

	devicesCmd.Flags().String("device", "cpu", "Device the backends are created for")
	return devicesCmd
}
