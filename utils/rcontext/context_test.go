package rcontext

import (
	"errors"
	"testing"

	"github.com/recipexec/engine/utils/rerrors"
)

func TestGetSetContains(t *testing.T) {
	c := New()
	if c.Contains("doc") {
		t.Fatalf("expected empty context to not contain 'doc'")
	}

	c.Set("doc", "hello")
	if !c.Contains("doc") {
		t.Fatalf("expected 'doc' to be present after Set")
	}

	v, err := c.Get("doc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "hello" {
		t.Errorf("got %v, want %q", v, "hello")
	}
}

func TestGetMissingKeyFails(t *testing.T) {
	c := New()
	_, err := c.Get("missing")
	if err == nil {
		t.Fatalf("expected error for missing key")
	}
	if rerrors.KindOf(err) != rerrors.KeyMissing {
		t.Fatalf("expected rerrors.KeyMissing, got %v", err)
	}
	var kerr *KeyMissingError
	if !errors.As(err, &kerr) {
		t.Fatalf("expected a wrapped *KeyMissingError, got %T", err)
	}
	if kerr.Key != "missing" {
		t.Errorf("got key %q, want %q", kerr.Key, "missing")
	}

	withPath := rerrors.WithPath(err, "/steps/2")
	se, ok := withPath.(*rerrors.StepError)
	if !ok || se.Path != "/steps/2" {
		t.Fatalf("expected WithPath to attach a step path to the KeyMissing error, got %+v", withPath)
	}
}

func TestGetWithDefault(t *testing.T) {
	c := New()
	v, err := c.Get("missing", "fallback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "fallback" {
		t.Errorf("got %v, want %q", v, "fallback")
	}
}

func TestCloneIsolatesArtifacts(t *testing.T) {
	c := New()
	c.Set("nested", map[string]interface{}{"x": float64(1)})

	clone := c.Clone()
	nested := clone.GetOr("nested", nil).(map[string]interface{})
	nested["x"] = float64(2)
	clone.Set("nested", nested)
	clone.Set("new_key", "only in clone")

	orig := c.AsDict()
	origNested := orig["nested"].(map[string]interface{})
	if origNested["x"] != float64(1) {
		t.Errorf("parent mutated by clone write: x = %v, want 1", origNested["x"])
	}
	if c.Contains("new_key") {
		t.Errorf("parent gained a key set only on the clone")
	}
}

func TestCloneCopiesConfigNamespace(t *testing.T) {
	c := NewWithConfig(map[string]interface{}{"model": "stub/echo"})
	clone := c.Clone()
	clone.SetConfig("model", "stub/other")

	v, err := c.Config("model")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "stub/echo" {
		t.Errorf("parent config mutated by clone: got %v", v)
	}
}

func TestConfigNotMergedIntoAsDict(t *testing.T) {
	c := NewWithConfig(map[string]interface{}{"secret": "shh"})
	c.Set("doc", "hello")

	dict := c.AsDict()
	if _, ok := dict["secret"]; ok {
		t.Errorf("config namespace leaked into AsDict()")
	}
	if dict["doc"] != "hello" {
		t.Errorf("artifacts missing from AsDict()")
	}
}

func TestAsDictIsShallowCopy(t *testing.T) {
	c := New()
	c.Set("doc", "A")
	dict := c.AsDict()
	dict["doc"] = "mutated"

	v, _ := c.Get("doc")
	if v != "A" {
		t.Errorf("mutating AsDict() result affected the context: got %v", v)
	}
}
