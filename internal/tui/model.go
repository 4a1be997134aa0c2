// Package tui implements the live watch view for validation runs: a
// bubbletea program showing orchestrator progress, recent log lines, and the
// final verdict.
package tui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"readycheck/internal/color"
	"readycheck/internal/dependency"
	"readycheck/internal/orchestrator"
	"readycheck/pkg/logging"
)

const logTailSize = 8

// resultMsg carries the finished validation run into the model.
type resultMsg struct {
	result *orchestrator.DependencyValidationResult
	err    error
}

// eventMsg wraps one orchestrator progress event.
type eventMsg orchestrator.Event

// logMsg wraps one captured log entry.
type logMsg logging.LogEntry

type channelsClosedMsg struct{}

// Model is the watch-mode bubbletea model.
type Model struct {
	spinner spinner.Model

	events <-chan orchestrator.Event
	logs   <-chan logging.LogEntry
	runner func() (*orchestrator.DependencyValidationResult, error)

	state    orchestrator.State
	services map[dependency.ServiceType]bool
	order    []dependency.ServiceType
	logTail  []string

	result *orchestrator.DependencyValidationResult
	err    error
	done   bool
	copied bool
}

// NewModel creates a watch model. runner executes the validation and is
// invoked once, from Init, on its own goroutine.
func NewModel(events <-chan orchestrator.Event, logs <-chan logging.LogEntry, runner func() (*orchestrator.DependencyValidationResult, error)) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = color.InfoStyle
	return Model{
		spinner:  sp,
		events:   events,
		logs:     logs,
		runner:   runner,
		state:    orchestrator.StateInit,
		services: make(map[dependency.ServiceType]bool),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.runValidation(),
		m.waitForEvent(),
		m.waitForLog(),
	)
}

func (m Model) runValidation() tea.Cmd {
	return func() tea.Msg {
		result, err := m.runner()
		return resultMsg{result: result, err: err}
	}
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return channelsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) waitForLog() tea.Cmd {
	if m.logs == nil {
		return nil
	}
	return func() tea.Msg {
		entry, ok := <-m.logs
		if !ok {
			return channelsClosedMsg{}
		}
		return logMsg(entry)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			if m.done && m.result != nil {
				if err := clipboard.WriteAll(m.failureSummary()); err == nil {
					m.copied = true
				}
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		ev := orchestrator.Event(msg)
		m.state = ev.State
		if ev.Type == orchestrator.EventServiceResult {
			if _, seen := m.services[ev.Service]; !seen {
				m.order = append(m.order, ev.Service)
			}
			m.services[ev.Service] = ev.Healthy
		}
		return m, m.waitForEvent()

	case logMsg:
		line := fmt.Sprintf("[%s] %s", msg.Subsystem, msg.Message)
		m.logTail = append(m.logTail, line)
		if len(m.logTail) > logTailSize {
			m.logTail = m.logTail[len(m.logTail)-logTailSize:]
		}
		return m, m.waitForLog()

	case resultMsg:
		m.result = msg.result
		m.err = msg.err
		m.done = true
		return m, nil

	case channelsClosedMsg:
		return m, nil
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(color.HeadingStyle.Render("readycheck watch"))
	b.WriteString("\n\n")

	if !m.done {
		b.WriteString(fmt.Sprintf("%s %s\n\n", m.spinner.View(), m.state))
	}

	for _, svc := range m.order {
		glyph := color.SuccessStyle.Render("✓")
		if !m.services[svc] {
			glyph = color.ErrorStyle.Render("✗")
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", glyph, svc))
	}
	if len(m.order) > 0 {
		b.WriteString("\n")
	}

	if len(m.logTail) > 0 {
		b.WriteString(color.MutedStyle.Render(strings.Join(m.logTail, "\n")))
		b.WriteString("\n\n")
	}

	if m.done {
		switch {
		case m.err != nil:
			b.WriteString(color.ErrorStyle.Render(fmt.Sprintf("error: %v", m.err)))
		case m.result.OverallSuccess:
			b.WriteString(color.SuccessStyle.Render("PASS"))
		default:
			b.WriteString(color.ErrorStyle.Render("FAIL"))
			for _, e := range m.result.Errors {
				b.WriteString("\n  " + e)
			}
		}
		b.WriteString("\n\n")
		hint := "press c to copy failure summary, q to quit"
		if m.copied {
			hint = "copied — q to quit"
		}
		b.WriteString(color.MutedStyle.Render(hint))
	} else {
		b.WriteString(color.MutedStyle.Render("press q to quit"))
	}
	b.WriteString("\n")

	return b.String()
}

// Outcome returns the finished run's result and error, for callers that need
// the exit status after the program quits. Both are nil if the run was
// interrupted before completion.
func (m Model) Outcome() (*orchestrator.DependencyValidationResult, error) {
	return m.result, m.err
}

// failureSummary produces a plain-text summary suitable for pasting into an
// incident channel.
func (m Model) failureSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "readycheck: %s (confidence %.2f)\n", m.result.Environment, m.result.Confidence)
	for _, sr := range m.result.ServiceResults {
		state := "healthy"
		if !sr.Healthy {
			state = fmt.Sprintf("%s: %s", sr.Result.Status, sr.Result.ErrorMessage)
		}
		fmt.Fprintf(&b, "- %s: %s\n", sr.Service, state)
	}
	for _, e := range m.result.Errors {
		fmt.Fprintf(&b, "! %s\n", e)
	}
	return b.String()
}
