// Package executor runs a parsed Recipe's steps in order against a
// shared Context, dispatching each step's "type" through the step
// registry.
//
// Grounded on the teacher's Processor.Process() loop
// (utils/processor/dsl.go): iterate a step list serially, stop at the
// first failing step, thread one run ID through every log line for
// correlation.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/recipexec/engine/utils/config"
	"github.com/recipexec/engine/utils/progress"
	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/recipe"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/step"
)

// maxRecursionDepth bounds execute_recipe's recursive sub-invocation,
// per the Open Question decision recorded in DESIGN.md: the base spec
// leaves recursion unbounded, but a stack-depth crash is a worse failure
// mode than a ConfigInvalid error, so this executor enforces
// a generous cap that only a malformed/self-referential recipe would hit.
const maxRecursionDepth = 256

// Executor runs a Recipe's steps against a Context.
type Executor struct {
	registry   *step.Registry
	runID      string
	depth      int
	progress   progress.Writer
	pathPrefix string
}

// WithProgress attaches a progress.Writer that is published to around
// every step this Executor (and its recursive children) run. Passing
// nil disables progress reporting (the default for New/NewWithRegistry).
func (e *Executor) WithProgress(w progress.Writer) *Executor {
	e.progress = w
	return e
}

// New returns an Executor using the process-wide built-in step registry.
func New() *Executor {
	return &Executor{registry: step.Global(), runID: uuid.NewString(), pathPrefix: "/steps"}
}

// NewWithRegistry returns an Executor using a caller-supplied registry,
// for tests or hosts that want a custom step catalog.
func NewWithRegistry(r *step.Registry) *Executor {
	return &Executor{registry: r, runID: uuid.NewString(), pathPrefix: "/steps"}
}

// Registry returns the step registry this executor dispatches through.
func (e *Executor) Registry() *step.Registry {
	return e.registry
}

// RunID returns this executor's correlation ID, attached to every log
// line it emits.
func (e *Executor) RunID() string {
	return e.runID
}

// child returns a sub-executor sharing this one's registry and run ID
// but one recursion level deeper and rooted at pathPrefix, for
// execute_recipe's recursive calls and for conditional/loop/parallel's
// substep dispatch.
func (e *Executor) child(pathPrefix string) (*Executor, error) {
	if e.depth+1 > maxRecursionDepth {
		return nil, rerrors.New(rerrors.ConfigInvalid, "execute_recipe recursion exceeded %d levels; check for a self-referential recipe", maxRecursionDepth)
	}
	return &Executor{registry: e.registry, runID: e.runID, depth: e.depth + 1, progress: e.progress, pathPrefix: pathPrefix}, nil
}

type executorCtxKey struct{}

// FromContext returns the Executor currently running this step, if any.
// execute_recipe uses this to recurse through the same run (sharing its
// registry, run ID, and recursion depth counter) instead of starting an
// unrelated top-level run every time it is dispatched.
func FromContext(ctx context.Context) (*Executor, bool) {
	e, ok := ctx.Value(executorCtxKey{}).(*Executor)
	return e, ok
}

// stepPathCtxKey carries the step path of whichever step's Execute is
// currently running, so a nested RunSub call (execute_recipe, or a
// conditional/loop/parallel substep) can qualify its own steps under it
// instead of restarting numbering from "/steps/0".
type stepPathCtxKey struct{}

func withCurrentPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, stepPathCtxKey{}, path)
}

func currentPath(ctx context.Context) string {
	p, _ := ctx.Value(stepPathCtxKey{}).(string)
	return p
}

// Run parses and executes a recipe document against rc, stopping at the
// first step failure. Every step sees this Executor via FromContext.
func (e *Executor) Run(ctx context.Context, doc *recipe.Recipe, rc *rcontext.Context) error {
	ctx = context.WithValue(ctx, executorCtxKey{}, e)

	for i, s := range doc.Steps {
		path := fmt.Sprintf("%s/%d", e.pathPrefix, i)
		config.VerboseLog("[run %s] executing step %s (type=%s)", e.runID, path, s.Type)

		built, err := e.registry.Build(s.Type, s.Config)
		if err != nil {
			return rerrors.WithPath(err, path)
		}

		if e.progress != nil {
			e.progress.Publish(progress.Event{Type: progress.StepStarted, Path: path, StepType: s.Type})
		}
		start := time.Now()

		stepCtx := withCurrentPath(ctx, path)
		if err := built.Execute(stepCtx, rc); err != nil {
			if e.progress != nil {
				e.progress.Publish(progress.Event{Type: progress.StepFailed, Path: path, StepType: s.Type, Duration: time.Since(start), Err: err})
			}
			return rerrors.WithPath(err, path)
		}

		if e.progress != nil {
			e.progress.Publish(progress.Event{Type: progress.StepDone, Path: path, StepType: s.Type, Duration: time.Since(start)})
		}
	}
	return nil
}

// RunSub is called by execute_recipe to invoke a parsed sub-recipe, and
// by conditional/loop/parallel's substep dispatch, with the same
// (shared, not cloned unless the caller already cloned it) Context, per
// §4.5's "writes remain visible in the parent context after return".
// The nested steps are numbered under the calling step's own path as
// "<parent>/substeps/<n>", per §9's step-path debuggability requirement,
// so a failure several levels deep reports the full chain instead of
// restarting from "/steps/0".
func (e *Executor) RunSub(ctx context.Context, doc *recipe.Recipe, rc *rcontext.Context) error {
	sub, err := e.child(currentPath(ctx) + "/substeps")
	if err != nil {
		return err
	}
	return sub.Run(ctx, doc, rc)
}
