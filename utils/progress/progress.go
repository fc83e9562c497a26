// Package progress renders a running recipe's step-by-step status.
//
// Grounded on the teacher's utils/processor/spinner.go (TTY detection
// via golang.org/x/term, a spinner while a unit of work is in flight)
// and progress_display.go (start/complete/fail events per step,
// duration formatting), re-expressed with charmbracelet/bubbletea +
// charmbracelet/lipgloss in place of the teacher's hand-rolled ANSI
// escapes, per the teacher's own "show me what's happening" concern.
package progress

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// EventType is the phase of a step's lifecycle a Writer is told about.
type EventType int

const (
	StepStarted EventType = iota
	StepDone
	StepFailed
)

// Event is one step-lifecycle notification the Executor publishes.
type Event struct {
	Type     EventType
	Path     string // e.g. "/steps/3"
	StepType string
	Duration time.Duration
	Err      error
}

// Writer receives step lifecycle events as a recipe runs.
type Writer interface {
	Publish(Event)
	Close()
}

// NewWriter returns a live Bubble Tea progress display when stdout is a
// terminal, falling back to a plain line-oriented Writer otherwise —
// the same TTY check the teacher's spinner used to decide whether to
// emit cursor-control escapes at all.
func NewWriter() Writer {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return newTeaWriter()
	}
	return newLineWriter(os.Stdout)
}

// lineWriter is the non-TTY fallback: one log line per event, no
// cursor movement, safe for CI logs and piped output.
type lineWriter struct {
	mu  sync.Mutex
	out *os.File
}

func newLineWriter(out *os.File) *lineWriter {
	return &lineWriter{out: out}
}

func (w *lineWriter) Publish(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch e.Type {
	case StepStarted:
		fmt.Fprintf(w.out, "==> %s (%s)\n", e.Path, e.StepType)
	case StepDone:
		fmt.Fprintf(w.out, "    %s (%s) done in %s\n", e.Path, e.StepType, formatDuration(e.Duration))
	case StepFailed:
		fmt.Fprintf(w.out, "    %s (%s) FAILED after %s: %v\n", e.Path, e.StepType, formatDuration(e.Duration), e.Err)
	}
}

func (w *lineWriter) Close() {}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
