package steps

import (
	"context"

	"github.com/recipexec/engine/utils/executor"
	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/recipe"
)

// runBranch executes a list of substeps against rc, recursing through
// whichever Executor is already running this step (so recursion depth,
// run ID, and registry stay consistent with the outer run). Steps built
// standalone in a test, with no Executor in ctx, fall back to a fresh
// top-level run.
func runBranch(ctx context.Context, steps []recipe.Step, rc *rcontext.Context) error {
	exe, ok := executor.FromContext(ctx)
	if !ok {
		exe = executor.New()
	}
	return exe.RunSub(ctx, &recipe.Recipe{Steps: steps}, rc)
}
