// Package ui renders a live view of one agent run using Bubble Tea. It
// consumes the loop's event stream and shows each think/act/observe cycle
// as it happens.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Elore26/assistant/internal/types"
)

// Model is the Bubble Tea model for the run console.
type Model struct {
	spinner  spinner.Model
	viewport viewport.Model
	styles   Styles

	agent string
	task  string

	state    types.AgentState
	loop     int
	entries  []entry
	result   *types.AgentResult
	events   <-chan types.AgentEvent
	width    int
	height   int
	ready    bool
	quitting bool
}

// entry is one rendered line group in the activity feed.
type entry struct {
	kind string // "loop", "tool", "observation", "system"
	loop int

	toolName    string
	toolArgs    map[string]any
	toolSuccess bool
	toolError   string

	text string
}

// eventsClosed signals that the run is over and the channel drained.
type eventsClosed struct{}

// NewRunModel creates a console bound to one run's event stream.
func NewRunModel(agent, task string, events <-chan types.AgentEvent) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = DefaultStyles().Spinner

	return Model{
		spinner:  s,
		viewport: viewport.New(0, 0),
		styles:   DefaultStyles(),
		agent:    agent,
		task:     task,
		state:    types.StateIdle,
		events:   events,
	}
}

// Init starts the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// waitForEvent blocks on the run's event channel.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosed{}
		}
		return ev
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := msg.Height - m.headerHeight() - m.footerHeight()
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.ready = true
		m.updateViewport()

	case types.AgentEvent:
		m = m.handleEvent(msg)
		m.updateViewport()
		cmds = append(cmds, m.waitForEvent())

	case eventsClosed:
		if m.result == nil {
			m.entries = append(m.entries, entry{kind: "system", text: "run ended without a result"})
			m.updateViewport()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		m.updateViewport()
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

// handleEvent folds one loop event into the feed.
func (m Model) handleEvent(ev types.AgentEvent) Model {
	m.state = ev.State
	if ev.Loop > 0 {
		m.loop = ev.Loop
	}

	switch ev.State {
	case types.StateThinking:
		m.entries = append(m.entries, entry{kind: "loop", loop: ev.Loop})

	case types.StateActing:
		if ev.ToolCall != nil && ev.ToolResult != nil {
			m.entries = append(m.entries, entry{
				kind:        "tool",
				loop:        ev.Loop,
				toolName:    ev.ToolCall.Name,
				toolArgs:    ev.ToolCall.Args,
				toolSuccess: ev.ToolResult.Success,
				toolError:   ev.ToolResult.Error,
			})
		}

	case types.StateObserving:
		if ev.Trace != nil {
			m.entries = append(m.entries, entry{
				kind: "observation",
				loop: ev.Loop,
				text: ev.Trace.Observation,
			})
		}

	case types.StateStopped:
		m.result = ev.Result

	case types.StateError:
		text := "run error"
		if ev.Error != nil {
			text = ev.Error.Error()
		}
		m.entries = append(m.entries, entry{kind: "system", text: text})
	}

	return m
}

func (m Model) headerHeight() int {
	return 4 // bordered header box plus margin
}

func (m Model) footerHeight() int {
	return 3 // status line, blank, help bar
}

// updateViewport rebuilds the feed and scrolls to the bottom.
func (m *Model) updateViewport() {
	var b strings.Builder
	for _, e := range m.entries {
		b.WriteString(m.renderEntry(e))
		b.WriteString("\n")
	}
	if m.result != nil {
		b.WriteString(m.renderResult(*m.result))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// View renders the console.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting..."
	}

	var b strings.Builder

	header := m.styles.AgentName.Render(m.agent) + " " + m.styles.TaskText.Render(m.task)
	b.WriteString(m.styles.Header.Render(header))
	b.WriteString("\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.result == nil {
		b.WriteString(fmt.Sprintf("%s %s",
			m.spinner.View(),
			m.styles.StateLabel.Render(m.state.String())))
	} else {
		b.WriteString(m.styles.StatusText.Render("run complete"))
	}
	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())

	return m.styles.App.Render(b.String())
}

func (m Model) renderEntry(e entry) string {
	switch e.kind {
	case "loop":
		return m.styles.LoopHeader.Render(fmt.Sprintf("Loop %d", e.loop))

	case "tool":
		return m.renderTool(e)

	case "observation":
		return m.styles.Observation.Render(e.text)

	case "system":
		return m.styles.SystemMessage.Render(e.text)
	}
	return ""
}

func (m Model) renderTool(e entry) string {
	var b strings.Builder

	b.WriteString(m.styles.ToolName.Render(e.toolName))
	if len(e.toolArgs) > 0 {
		args := make([]string, 0, len(e.toolArgs))
		for k, v := range e.toolArgs {
			args = append(args, fmt.Sprintf("%s=%v", k, v))
		}
		b.WriteString(" ")
		b.WriteString(m.styles.ToolArgs.Render("(" + strings.Join(args, ", ") + ")"))
	}
	b.WriteString("\n")

	if e.toolSuccess {
		b.WriteString(m.styles.ToolSuccess.Render("  ok"))
	} else {
		b.WriteString(m.styles.ToolError.Render("  failed: " + e.toolError))
	}

	return m.styles.ToolBox.Render(b.String())
}

func (m Model) renderResult(r types.AgentResult) string {
	var b strings.Builder

	if r.StoppedByGuardrail {
		b.WriteString(m.styles.ResultStopped.Render("Stopped by guardrail"))
		b.WriteString("\n")
		b.WriteString(m.styles.GuardrailNote.Render(r.GuardrailReason))
		b.WriteString("\n")
	} else if r.Success {
		b.WriteString(m.styles.ResultOK.Render("Completed"))
		b.WriteString("\n")
	} else {
		b.WriteString(m.styles.ToolError.Render("Failed"))
		b.WriteString("\n")
	}

	output := r.Output
	if len(output) > 2000 {
		output = output[:2000] + "..."
	}
	if output != "" {
		b.WriteString(output)
		b.WriteString("\n")
	}
	b.WriteString(m.styles.StatusText.Render(fmt.Sprintf(
		"%d loop(s), %d tool call(s), %d tokens, %s",
		r.TotalLoops, r.TotalToolCalls, r.TokensUsed, r.Duration.Round(time.Millisecond))))

	return m.styles.ResultBox.Render(b.String())
}

func (m Model) renderHelpBar() string {
	help := []string{
		m.styles.HelpKey.Render("q") + m.styles.HelpValue.Render(" quit"),
		m.styles.HelpKey.Render("↑/↓") + m.styles.HelpValue.Render(" scroll"),
	}
	return m.styles.HelpBar.Render(strings.Join(help, "  |  "))
}
