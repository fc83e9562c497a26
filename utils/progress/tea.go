package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stepStyle    = lipgloss.NewStyle().Bold(true)
)

type stepStatus int

const (
	statusRunning stepStatus = iota
	statusDone
	statusFailed
)

type stepEntry struct {
	path     string
	stepType string
	status   stepStatus
	duration time.Duration
	err      error
	spinner  spinner.Model
}

func newRunningEntry(path, stepType string) *stepEntry {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle
	return &stepEntry{path: path, stepType: stepType, status: statusRunning, spinner: sp}
}

type teaModel struct {
	order   []string
	entries map[string]*stepEntry
}

func newTeaModel() teaModel {
	return teaModel{entries: make(map[string]*stepEntry)}
}

func (m teaModel) Init() tea.Cmd {
	return nil
}

func (m teaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch e := msg.(type) {
	case Event:
		entry, ok := m.entries[e.Path]
		if !ok {
			entry = newRunningEntry(e.Path, e.StepType)
			m.entries[e.Path] = entry
			m.order = append(m.order, e.Path)
		}
		entry.stepType = e.StepType
		entry.duration = e.Duration
		switch e.Type {
		case StepStarted:
			entry.status = statusRunning
			return m, entry.spinner.Tick
		case StepDone:
			entry.status = statusDone
		case StepFailed:
			entry.status = statusFailed
			entry.err = e.Err
		}
	case spinner.TickMsg:
		var cmds []tea.Cmd
		for _, e := range m.entries {
			if e.status != statusRunning {
				continue
			}
			var cmd tea.Cmd
			e.spinner, cmd = e.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	case quitMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m teaModel) View() string {
	var b strings.Builder
	for _, path := range m.order {
		e := m.entries[path]
		switch e.status {
		case statusRunning:
			fmt.Fprintf(&b, "%s %s %s\n", e.spinner.View(), stepStyle.Render(path), mutedStyle.Render("("+e.stepType+")"))
		case statusDone:
			fmt.Fprintf(&b, "%s %s %s %s\n", successStyle.Render("✓"), stepStyle.Render(path), mutedStyle.Render("("+e.stepType+")"), mutedStyle.Render(formatDuration(e.duration)))
		case statusFailed:
			fmt.Fprintf(&b, "%s %s %s %s\n", errorStyle.Render("✗"), stepStyle.Render(path), mutedStyle.Render("("+e.stepType+")"), errorStyle.Render(e.err.Error()))
		}
	}
	return b.String()
}

type quitMsg struct{}

// teaWriter drives a Bubble Tea program from Executor-published events.
type teaWriter struct {
	program *tea.Program
	done    chan struct{}
}

func newTeaWriter() *teaWriter {
	program := tea.NewProgram(newTeaModel())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = program.Run()
	}()
	return &teaWriter{program: program, done: done}
}

func (w *teaWriter) Publish(e Event) {
	w.program.Send(e)
}

func (w *teaWriter) Close() {
	w.program.Send(quitMsg{})
	<-w.done
}
