// internal/cli/root.go
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cmux-cli/uiverify/internal/config"
)

var (
	// Global flags
	flagJSON     bool
	flagConfig   string
	flagLogLevel string

	// Global config
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "uiverify",
	Short: "Browser-driven verification of business workflows",
	Long: `uiverify drives a real browser through scenario files (yaml lists of
navigate, fill, click and assert steps) and reports which workflows still work.

All commands support --json for machine-readable output.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return &UsageError{Message: "load config: " + err.Error(), Err: err}
		}

		// Auto-detect JSON mode if stdout is not a TTY
		if !flagJSON && !cmd.Flags().Changed("json") && !isTerminal(os.Stdout) {
			flagJSON = true
		}
		return nil
	},
	// Silence usage and errors - we handle our own error output
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false,
		"Output as JSON")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "",
		"Config file (default: $UIVERIFY_HOME/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "",
		"Log level: debug, info, warn, error (default from config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
