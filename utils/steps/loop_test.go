package steps

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/rerrors"
)

func TestLoopAggregatesInInputOrder(t *testing.T) {
	raw, _ := json.Marshal(map[string]interface{}{
		"items":      []interface{}{1, 2, 3},
		"item_key":   "n",
		"result_key": "doubled",
		"substeps": []map[string]interface{}{
			{"type": "set_context", "config": map[string]interface{}{"key": "n", "value": "{{ n }}"}},
		},
	})
	s, err := newLoop(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc := rcontext.New()
	if err := s.Execute(context.Background(), rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := rc.Get("doubled")
	list, ok := got.([]interface{})
	if !ok || len(list) != 3 {
		t.Fatalf("expected 3-element result list, got %v", got)
	}
	if list[0] != "1" || list[1] != "2" || list[2] != "3" {
		t.Fatalf("expected input order preserved, got %v", list)
	}
}

func TestLoopEmptyItemsYieldsEmptyResult(t *testing.T) {
	raw, _ := json.Marshal(map[string]interface{}{
		"items":      []interface{}{},
		"item_key":   "n",
		"result_key": "out",
	})
	s, err := newLoop(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc := rcontext.New()
	if err := s.Execute(context.Background(), rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := rc.Get("out")
	list, ok := got.([]interface{})
	if !ok || len(list) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestLoopFailFastAbortsOnFirstFailure(t *testing.T) {
	raw, _ := json.Marshal(map[string]interface{}{
		"items":      []interface{}{1},
		"item_key":   "n",
		"max_concurrency": 1,
		"substeps": []map[string]interface{}{
			{"type": "conditional", "config": map[string]interface{}{"condition": "true"}},
			{"type": "does_not_exist"},
		},
	})
	s, err := newLoop(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = s.Execute(context.Background(), rcontext.New())
	if rerrors.KindOf(err) != rerrors.StepUnknown {
		t.Fatalf("expected StepUnknown to propagate, got %v", err)
	}
}

func TestLoopNonFailFastRecordsErrors(t *testing.T) {
	failFast := false
	raw, _ := json.Marshal(map[string]interface{}{
		"items":      []interface{}{1, 2},
		"item_key":   "n",
		"result_key": "out",
		"fail_fast":  failFast,
		"substeps": []map[string]interface{}{
			{"type": "does_not_exist"},
		},
	})
	s, err := newLoop(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc := rcontext.New()
	if err := s.Execute(context.Background(), rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	errsVal, _ := rc.Get("out_errors")
	errs, ok := errsVal.([]interface{})
	if !ok || len(errs) != 2 {
		t.Fatalf("expected 2 recorded failures, got %v", errsVal)
	}
}

func TestLoopItemsFromContextKey(t *testing.T) {
	raw, _ := json.Marshal(map[string]interface{}{
		"items":      "source",
		"item_key":   "n",
		"result_key": "out",
	})
	s, err := newLoop(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc := rcontext.New()
	rc.Set("source", []interface{}{"a", "b"})
	if err := s.Execute(context.Background(), rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := rc.Get("out")
	list, ok := got.([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("expected 2-element list, got %v", got)
	}
}

func TestNewLoopRequiresItemKey(t *testing.T) {
	_, err := newLoop(json.RawMessage(`{"items":[]}`))
	if rerrors.KindOf(err) != rerrors.ConfigInvalid {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}
