// Package step defines the Step contract every recipe step implements
// and the registry the executor uses to dispatch a recipe's step types
// to concrete implementations.
//
// Grounded on the teacher's dynamic-dispatch-by-string-type pattern
// (utils/processor/dsl.go's DSLConfig.UnmarshalYAML switch), generalized
// into an explicit registry map so built-in and custom step types share
// one lookup path instead of a hardcoded switch statement.
package step

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/rerrors"
)

// Step is the base contract every step type implements: validate its own
// config at construction time, then execute against a shared Context.
// Errors returned from Execute propagate to the Executor unchanged; no
// step wraps another step's failure. The one step that does not return a
// substep's failure is loop with fail_fast=false, which keeps going and
// records it under <result_key>_errors when result_key is set.
type Step interface {
	Execute(ctx context.Context, rc *rcontext.Context) error
}

// Constructor builds a Step from its raw (not yet type-asserted) JSON
// config. It must validate the config shape and return a ConfigInvalid
// error for anything malformed before any side effect occurs.
type Constructor func(raw json.RawMessage) (Step, error)

// Registry maps a recipe step's "type" string to the Constructor that
// builds it. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu  sync.RWMutex
	ctr map[string]Constructor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ctr: make(map[string]Constructor)}
}

// Register adds or replaces the constructor for a step type name.
func (r *Registry) Register(typeName string, ctr Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctr[typeName] = ctr
}

// Build looks up typeName and constructs a Step from raw, or returns a
// StepUnknown error if no constructor is registered for that name.
func (r *Registry) Build(typeName string, raw json.RawMessage) (Step, error) {
	r.mu.RLock()
	ctr, ok := r.ctr[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, rerrors.New(rerrors.StepUnknown, "no step registered for type %q", typeName)
	}
	return ctr(raw)
}

// global is the process-wide registry built-in step types populate
// themselves into via init(), mirroring the teacher's "register once at
// package load" convention for its DSL step types.
var global = NewRegistry()

// Global returns the process-wide step registry. Custom step types can
// call Global().Register(...) before an Executor is built to extend the
// built-in catalog.
func Global() *Registry {
	return global
}
