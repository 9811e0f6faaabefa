package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkgate/inkgate/internal/logging"
)

var (
	verbose    bool
	configPath string

	version string = "dev"
	commit  string = "unknown"
	date    string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "inkgate",
	Short: "Streaming LLM gateway with human approval for tool calls",
	Long: `inkgate is a local gateway that streams responses from an
OpenAI-compatible model while keeping a human in the loop: every tool
call the model makes is validated against a security gate, checked
against your permission rules, and suspended for your approval when the
rules don't already decide it.

Quick Start:
  inkgate serve                       # Start the gateway server
  inkgate sessions list               # List stored sessions
  inkgate sessions show <session-id>  # View a session transcript
  inkgate rules list                  # Show permission rules`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file location (default ~/.config/inkgate/inkgate.yaml)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
