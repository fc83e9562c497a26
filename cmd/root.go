// Package cmd is the recipe executor's command-line front end: a thin
// cobra tree over the core engine, not part of the core itself.
//
// Grounded on the teacher's cmd/root.go (PersistentPreRunE loading
// .env once and wiring verbose/debug switches, Execute() wrapping
// rootCmd.Execute with a quieted error path), trimmed to the surface
// SPEC_FULL.md's CLI section actually asks for: one "process" command.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/recipexec/engine/utils/config"
)

var (
	verbose bool
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "recipexec",
	Short: "Run declarative JSON recipes that orchestrate LLM workflows",
	Long: `recipexec runs a JSON-defined recipe: a list of typed steps (file
reads/writes, context manipulation, conditionals, loops, parallel fan-out,
LLM calls, MCP tool calls) executed in order against a single shared
context.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.Verbose = verbose
		config.Debug = debug

		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
		config.LoadDotEnv(wd)
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// Execute runs the command tree, printing any error to stderr and
// exiting 1 on failure.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
