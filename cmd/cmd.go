// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/nanochat/nanochat/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-36s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "nanochat",
		Short:         "Custom attention and decode kernel dispatch",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	serveCmd := newServeCmd()
	statusCmd := newStatusCmd()
	resetCmd := newResetCmd()
	resolveCmd := newResolveCmd()
	attentionCmd := newAttentionCmd()
	parityCmd := newParityCmd()
	envCmd := newEnvCmd()
	devicesCmd := newDevicesCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	kernelEnvs := []envconfig.EnvVar{
		envVars["NANOCHAT_DEBUG"],
		envVars["NANOCHAT_CLUSTERED_ATTENTION"],
		envVars["NANOCHAT_CLUSTERED_ATTENTION_IMPL"],
		envVars["NANOCHAT_NUM_SM_CLUSTERS"],
		envVars["NANOCHAT_PERSISTENT_DECODE"],
		envVars["NANOCHAT_PERSISTENT_DECODE_IMPL"],
		envVars["NANOCHAT_ALLOW_KERNEL_STUB_FALLBACK"],
		envVars["NANOCHAT_KERNEL_PLUGIN_DIR"],
	}

	for _, cmd := range []*cobra.Command{
		serveCmd,
		statusCmd,
		resetCmd,
		resolveCmd,
		attentionCmd,
		parityCmd,
	} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{
				envVars["NANOCHAT_HOST"],
				envVars["NANOCHAT_ORIGINS"],
			}, kernelEnvs...))
		case resolveCmd, attentionCmd:
			appendEnvDocs(cmd, kernelEnvs)
		case parityCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["NANOCHAT_DEBUG"]})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["NANOCHAT_HOST"]})
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		statusCmd,
		resetCmd,
		resolveCmd,
		attentionCmd,
		parityCmd,
		envCmd,
		devicesCmd,
	)

	return rootCmd
}
