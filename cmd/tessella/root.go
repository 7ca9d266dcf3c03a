package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tessella",
	Short: "Tessella template renderer and store",
	Long: `Tessella renders text templates with {{...}} directives: value
substitution with formatter chains, repeated blocks, negated blocks and
includes. Templates can be rendered from files or managed in a SQLite
template store.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the CLI logger. Rendered output goes to stdout, so all
// logging goes to stderr and stays quiet unless --verbose is set.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tessella %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}
