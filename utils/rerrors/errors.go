// Package rerrors defines the typed failure kinds surfaced by the recipe
// executor, independent of any language's built-in exception hierarchy.
package rerrors

import "fmt"

// Kind enumerates the error kinds from the executor's error handling
// design: each step failure carries one of these, plus the step path
// that produced it.
type Kind string

const (
	ConfigInvalid      Kind = "ConfigInvalid"
	KeyMissing         Kind = "KeyMissing"
	TemplateError      Kind = "TemplateError"
	IOFailure          Kind = "IOFailure"
	SchemaInvalid      Kind = "SchemaInvalid"
	ProviderUnsupported Kind = "ProviderUnsupported"
	LLMFailure         Kind = "LLMFailure"
	ToolCallFailure    Kind = "ToolCallFailure"
	StepUnknown        Kind = "StepUnknown"
)

// StepError is the structured failure a top-level caller receives: a
// kind, a message, and the offending step's path in the recipe (e.g.
// "/steps/3/substeps/1").
type StepError struct {
	Kind    Kind
	Path    string
	Message string
	Cause   error
}

func (e *StepError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

// New builds a StepError without a path; WithPath attaches one once the
// error has bubbled up to a point that knows its position in the recipe.
func New(kind Kind, format string, args ...interface{}) *StepError {
	return &StepError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a StepError carrying an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *StepError {
	return &StepError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithPath returns a copy of err with Path set, if err is a *StepError
// and its Path is still empty (the innermost failure site wins).
func WithPath(err error, path string) error {
	se, ok := err.(*StepError)
	if !ok {
		return err
	}
	if se.Path != "" {
		return se
	}
	cp := *se
	cp.Path = path
	return &cp
}

// KindOf returns the Kind of err if it is a *StepError, or "" otherwise.
func KindOf(err error) Kind {
	se, ok := err.(*StepError)
	if !ok {
		return ""
	}
	return se.Kind
}
