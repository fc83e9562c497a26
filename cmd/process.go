package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recipexec/engine/utils/executor"
	"github.com/recipexec/engine/utils/progress"
	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/recipe"

	// registers the built-in step catalog into step.Global()
	_ "github.com/recipexec/engine/utils/steps"
)

var varOverrides []string

var processCmd = &cobra.Command{
	Use:   "process <recipe.json>",
	Short: "Execute a recipe file",
	Long:  `Parse a recipe JSON file and run its steps in order against a fresh context.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read recipe %q: %w", path, err)
		}

		doc, err := recipe.Parse(data)
		if err != nil {
			return fmt.Errorf("failed to parse recipe %q: %w", path, err)
		}

		overrides, err := parseVarOverrides(varOverrides)
		if err != nil {
			return err
		}

		rc := rcontext.New()
		for k, v := range overrides {
			rc.Set(k, v)
		}

		w := progress.NewWriter()
		defer w.Close()

		e := executor.New().WithProgress(w)
		if err := e.Run(cmd.Context(), doc, rc); err != nil {
			return fmt.Errorf("recipe %q failed: %w", path, err)
		}

		return nil
	},
}

// parseVarOverrides turns repeated "--var key=value" flags into a
// context-overrides map applied before the recipe's first step runs.
func parseVarOverrides(vars []string) (map[string]interface{}, error) {
	overrides := make(map[string]interface{}, len(vars))
	for _, kv := range vars {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", kv)
		}
		overrides[key] = value
	}
	return overrides, nil
}

func init() {
	processCmd.Flags().StringArrayVar(&varOverrides, "var", nil, "set a context variable as key=value (repeatable)")
	rootCmd.AddCommand(processCmd)
}
