// Package rcontext implements the shared mutable state threaded through a
// recipe's steps: the artifacts working set and the read-mostly config
// namespace.
package rcontext

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/recipexec/engine/utils/rerrors"
)

// Context is the process-local, single-writer-at-a-time state container
// passed to every step's Execute method. A Context is never shared
// mutably across concurrent branches: parallel and concurrent loop
// substeps each get their own Clone.
type Context struct {
	mu        sync.RWMutex
	artifacts map[string]interface{}
	config    map[string]interface{}
}

// New creates an empty Context.
func New() *Context {
	return &Context{
		artifacts: make(map[string]interface{}),
		config:    make(map[string]interface{}),
	}
}

// NewWithConfig creates a Context pre-seeded with config values (e.g. CLI
// overrides, env-derived defaults). The map is copied, not retained.
func NewWithConfig(config map[string]interface{}) *Context {
	c := New()
	for k, v := range config {
		c.config[k] = deepCopyValue(v)
	}
	return c
}

// KeyMissingError names the absent key, retained as the Cause of the
// *rerrors.StepError that Get/Config actually return, so a step that
// wants the bare key (rather than the formatted message) can recover it
// via errors.As.
type KeyMissingError struct {
	Key string
}

func (e *KeyMissingError) Error() string {
	return fmt.Sprintf("context: key missing: %q", e.Key)
}

// keyMissing builds the rerrors.KeyMissing-kinded error Get/Config
// return, so a step that propagates it unchanged still surfaces the
// right Kind and gets a step path attached by rerrors.WithPath, instead
// of a bare error opaque to the rerrors taxonomy.
func keyMissing(key string) error {
	return rerrors.Wrap(rerrors.KeyMissing, &KeyMissingError{Key: key}, "context: key missing: %q", key)
}

// Get returns the artifact stored under key. If the key is absent and no
// default is supplied, it returns a rerrors.KeyMissing error.
func (c *Context) Get(key string, def ...interface{}) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.artifacts[key]; ok {
		return v, nil
	}
	if len(def) > 0 {
		return def[0], nil
	}
	return nil, keyMissing(key)
}

// GetOr returns the artifact under key, or fallback if absent. It never
// errors; use Get when a missing key must be treated as a failure.
func (c *Context) GetOr(key string, fallback interface{}) interface{} {
	v, err := c.Get(key, fallback)
	if err != nil {
		return fallback
	}
	return v
}

// Set stores value under key in the artifacts namespace.
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts[key] = value
}

// Contains reports whether key is present in artifacts.
func (c *Context) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.artifacts[key]
	return ok
}

// Keys returns the artifact keys in no particular order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.artifacts))
	for k := range c.artifacts {
		keys = append(keys, k)
	}
	return keys
}

// AsDict returns a shallow copy of the artifacts namespace, suitable for
// template evaluation. Values themselves are not deep-copied: callers must
// not mutate nested maps/slices returned here.
func (c *Context) AsDict() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.artifacts))
	for k, v := range c.artifacts {
		out[k] = v
	}
	return out
}

// Config returns the value stored under key in the config namespace.
func (c *Context) Config(key string, def ...interface{}) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.config[key]; ok {
		return v, nil
	}
	if len(def) > 0 {
		return def[0], nil
	}
	return nil, keyMissing(key)
}

// SetConfig stores value under key in the config namespace.
func (c *Context) SetConfig(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config[key] = value
}

// ConfigDict returns a shallow copy of the config namespace. Unlike
// AsDict, this is never implicitly merged into template rendering; a step
// must call this explicitly if it wants config values visible to a
// template.
func (c *Context) ConfigDict() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.config))
	for k, v := range c.config {
		out[k] = v
	}
	return out
}

// Clone produces a deep copy of both namespaces. Mutations on the clone
// never affect the parent, and vice versa. This is the isolation
// mechanism for parallel and concurrent loop substeps.
func (c *Context) Clone() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Context{
		artifacts: make(map[string]interface{}, len(c.artifacts)),
		config:    make(map[string]interface{}, len(c.config)),
	}
	for k, v := range c.artifacts {
		clone.artifacts[k] = deepCopyValue(v)
	}
	for k, v := range c.config {
		clone.config[k] = deepCopyValue(v)
	}
	return clone
}

// deepCopyValue deep-copies JSON-compatible values (maps, slices,
// scalars) plus any value implementing Cloneable. Values of other
// concrete types (e.g. a step-produced record) are copied via a
// marshal/unmarshal round trip when they are JSON-serializable, and
// passed through unchanged otherwise (steps producing non-serializable
// context values are responsible for their own copy semantics).
func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case Cloneable:
		return t.Clone()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = deepCopyValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = deepCopyValue(vv)
		}
		return out
	case string, bool, int, int64, float64:
		return t
	default:
		// Fall back to a JSON round trip for record-shaped values
		// (e.g. FileSpec, structured-output records). If that fails
		// (channels, funcs, etc.) the original value is kept; such
		// values should not be placed in a Context that gets cloned.
		data, err := json.Marshal(t)
		if err != nil {
			return v
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return v
		}
		return generic
	}
}

// Cloneable lets a custom value type control its own deep-copy semantics
// instead of going through the generic JSON round trip.
type Cloneable interface {
	Clone() interface{}
}
