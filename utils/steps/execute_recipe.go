package steps

import (
	"context"
	"encoding/json"
	"os"

	"github.com/recipexec/engine/utils/executor"
	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/recipe"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/step"
	"github.com/recipexec/engine/utils/template"
)

func init() {
	step.Global().Register("execute_recipe", newExecuteRecipe)
}

type executeRecipeConfig struct {
	RecipePath       string                 `json:"recipe_path"`
	ContextOverrides map[string]interface{} `json:"context_overrides"`
}

type executeRecipeStep struct {
	cfg executeRecipeConfig
}

func newExecuteRecipe(raw json.RawMessage) (step.Step, error) {
	var cfg executeRecipeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, rerrors.Wrap(rerrors.ConfigInvalid, err, "execute_recipe: invalid config")
	}
	if cfg.RecipePath == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "execute_recipe: \"recipe_path\" is required")
	}
	return &executeRecipeStep{cfg: cfg}, nil
}

func (s *executeRecipeStep) Execute(ctx context.Context, rc *rcontext.Context) error {
	vars := rc.AsDict()

	path, err := template.Render(s.cfg.RecipePath, vars)
	if err != nil {
		return err
	}

	overrides, err := template.RenderStringsDeep(s.cfg.ContextOverrides, vars, true)
	if err != nil {
		return err
	}
	for k, v := range overrides.(map[string]interface{}) {
		rc.Set(k, v)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rerrors.Wrap(rerrors.IOFailure, err, "failed to read sub-recipe %q", path)
	}
	sub, err := recipe.Parse(data)
	if err != nil {
		return err
	}

	// Recurse through the Executor that is actually running this step, so
	// the recursion-depth counter and run ID carry through nested
	// execute_recipe calls. A standalone construction (e.g. a test that
	// builds this step without going through an Executor.Run) falls back
	// to a fresh top-level run.
	exe, ok := executor.FromContext(ctx)
	if !ok {
		exe = executor.New()
	}

	// The sub-recipe shares rc (not a clone), per §4.5: its writes
	// remain visible in the parent context after this step returns.
	return exe.RunSub(ctx, sub, rc)
}
