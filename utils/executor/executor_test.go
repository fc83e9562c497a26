package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/recipexec/engine/utils/progress"
	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/recipe"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/step"
)

type fakeProgressWriter struct {
	events []progress.Event
}

func (w *fakeProgressWriter) Publish(e progress.Event) {
	w.events = append(w.events, e)
}

func (w *fakeProgressWriter) Close() {}

type setStep struct {
	key   string
	value interface{}
}

func (s setStep) Execute(_ context.Context, rc *rcontext.Context) error {
	rc.Set(s.key, s.value)
	return nil
}

type failStep struct{}

func (failStep) Execute(context.Context, *rcontext.Context) error {
	return rerrors.New(rerrors.IOFailure, "boom")
}

func testRegistry() *step.Registry {
	r := step.NewRegistry()
	r.Register("set_a", func(json.RawMessage) (step.Step, error) {
		return setStep{key: "a", value: "one"}, nil
	})
	r.Register("set_b", func(json.RawMessage) (step.Step, error) {
		return setStep{key: "b", value: "two"}, nil
	})
	r.Register("fail", func(json.RawMessage) (step.Step, error) {
		return failStep{}, nil
	})
	return r
}

func TestRunExecutesStepsInOrder(t *testing.T) {
	doc := &recipe.Recipe{Steps: []recipe.Step{
		{Type: "set_a"},
		{Type: "set_b"},
	}}
	rc := rcontext.New()
	e := NewWithRegistry(testRegistry())
	if err := e.Run(context.Background(), doc, rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := rc.Get("a"); v != "one" {
		t.Fatalf("expected a=one, got %v", v)
	}
	if v, _ := rc.Get("b"); v != "two" {
		t.Fatalf("expected b=two, got %v", v)
	}
}

func TestRunStopsOnFirstFailure(t *testing.T) {
	doc := &recipe.Recipe{Steps: []recipe.Step{
		{Type: "set_a"},
		{Type: "fail"},
		{Type: "set_b"},
	}}
	rc := rcontext.New()
	e := NewWithRegistry(testRegistry())
	err := e.Run(context.Background(), doc, rc)
	if rerrors.KindOf(err) != rerrors.IOFailure {
		t.Fatalf("expected IOFailure, got %v", err)
	}
	if rc.Contains("b") {
		t.Fatalf("step after the failure must not have run")
	}
}

func TestRunUnknownStepType(t *testing.T) {
	doc := &recipe.Recipe{Steps: []recipe.Step{{Type: "nonexistent"}}}
	rc := rcontext.New()
	e := NewWithRegistry(testRegistry())
	err := e.Run(context.Background(), doc, rc)
	if rerrors.KindOf(err) != rerrors.StepUnknown {
		t.Fatalf("expected StepUnknown, got %v", err)
	}
}

func TestRunSubSharesContext(t *testing.T) {
	sub := &recipe.Recipe{Steps: []recipe.Step{{Type: "set_a"}}}
	rc := rcontext.New()
	e := NewWithRegistry(testRegistry())
	if err := e.RunSub(context.Background(), sub, rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := rc.Get("a"); v != "one" {
		t.Fatalf("expected sub-recipe's write to be visible in the parent context, got %v", v)
	}
}

func TestRunPublishesStepLifecycleEvents(t *testing.T) {
	doc := &recipe.Recipe{Steps: []recipe.Step{
		{Type: "set_a"},
		{Type: "fail"},
	}}
	rc := rcontext.New()
	w := &fakeProgressWriter{}
	e := NewWithRegistry(testRegistry()).WithProgress(w)
	err := e.Run(context.Background(), doc, rc)
	if rerrors.KindOf(err) != rerrors.IOFailure {
		t.Fatalf("expected IOFailure, got %v", err)
	}

	if len(w.events) != 4 {
		t.Fatalf("expected 4 events (set_a start+done, fail start+failed), got %d: %+v", len(w.events), w.events)
	}
	if w.events[0].Type != progress.StepStarted || w.events[0].Path != "/steps/0" {
		t.Fatalf("expected first event to be set_a starting, got %+v", w.events[0])
	}
	if w.events[1].Type != progress.StepDone || w.events[1].Path != "/steps/0" {
		t.Fatalf("expected second event to be set_a done, got %+v", w.events[1])
	}
	if w.events[2].Type != progress.StepStarted || w.events[2].Path != "/steps/1" {
		t.Fatalf("expected third event to be fail starting, got %+v", w.events[2])
	}
	if w.events[3].Type != progress.StepFailed || w.events[3].Path != "/steps/1" {
		t.Fatalf("expected fourth event to be fail failing, got %+v", w.events[3])
	}
}

func TestRunSubQualifiesNestedStepPaths(t *testing.T) {
	outer := &recipe.Recipe{Steps: []recipe.Step{
		{Type: "set_a"},
		{Type: "dispatch_sub"},
	}}
	sub := &recipe.Recipe{Steps: []recipe.Step{
		{Type: "set_a"},
		{Type: "fail"},
	}}

	r := testRegistry()
	r.Register("dispatch_sub", func(json.RawMessage) (step.Step, error) {
		return dispatchSubStep{sub: sub}, nil
	})

	rc := rcontext.New()
	e := NewWithRegistry(r)
	err := e.Run(context.Background(), outer, rc)
	se, ok := err.(*rerrors.StepError)
	if !ok {
		t.Fatalf("expected a *StepError, got %T: %v", err, err)
	}
	if se.Path != "/steps/1/substeps/1" {
		t.Fatalf("expected nested step path /steps/1/substeps/1, got %q", se.Path)
	}
}

// dispatchSubStep stands in for conditional/loop/parallel's pattern of
// recursing through the Executor in context to run a nested step list.
type dispatchSubStep struct {
	sub *recipe.Recipe
}

func (d dispatchSubStep) Execute(ctx context.Context, rc *rcontext.Context) error {
	exe, ok := FromContext(ctx)
	if !ok {
		exe = New()
	}
	return exe.RunSub(ctx, d.sub, rc)
}

func TestRunSubRecursionCapTrips(t *testing.T) {
	e := &Executor{registry: testRegistry(), depth: maxRecursionDepth}
	sub := &recipe.Recipe{Steps: []recipe.Step{{Type: "set_a"}}}
	err := e.RunSub(context.Background(), sub, rcontext.New())
	if rerrors.KindOf(err) != rerrors.ConfigInvalid {
		t.Fatalf("expected ConfigInvalid recursion-cap error, got %v", err)
	}
}
