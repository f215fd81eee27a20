package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color palette of the run console.
type Theme struct {
	Primary lipgloss.Color
	Accent  lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color

	Text    lipgloss.Color
	TextDim lipgloss.Color
}

// DefaultTheme returns the default color theme.
func DefaultTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("#7C3AED"), // Purple
		Accent:  lipgloss.Color("#06B6D4"), // Cyan

		Success: lipgloss.Color("#10B981"), // Emerald
		Warning: lipgloss.Color("#F59E0B"), // Amber
		Error:   lipgloss.Color("#EF4444"), // Red
		Muted:   lipgloss.Color("#6B7280"), // Gray

		Text:    lipgloss.Color("#F9FAFB"),
		TextDim: lipgloss.Color("#9CA3AF"),
	}
}

// Styles contains the styled components of the run console.
type Styles struct {
	App lipgloss.Style

	Header     lipgloss.Style
	AgentName  lipgloss.Style
	TaskText   lipgloss.Style
	StateLabel lipgloss.Style

	LoopHeader  lipgloss.Style
	Reasoning   lipgloss.Style
	Observation lipgloss.Style

	ToolBox     lipgloss.Style
	ToolName    lipgloss.Style
	ToolArgs    lipgloss.Style
	ToolSuccess lipgloss.Style
	ToolError   lipgloss.Style

	ResultBox      lipgloss.Style
	ResultOK       lipgloss.Style
	ResultStopped  lipgloss.Style
	GuardrailNote  lipgloss.Style
	SystemMessage  lipgloss.Style
	Spinner        lipgloss.Style
	StatusText     lipgloss.Style
	HelpKey        lipgloss.Style
	HelpValue      lipgloss.Style
	HelpBar        lipgloss.Style
}

// NewStyles creates styled components from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		App: lipgloss.NewStyle().
			Padding(1, 2),

		Header: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(t.Primary).
			Padding(0, 2).
			MarginBottom(1),

		AgentName: lipgloss.NewStyle().
			Foreground(t.Primary).
			Bold(true),

		TaskText: lipgloss.NewStyle().
			Foreground(t.TextDim),

		StateLabel: lipgloss.NewStyle().
			Foreground(t.Primary).
			Bold(true),

		LoopHeader: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true),

		Reasoning: lipgloss.NewStyle().
			Foreground(t.Text).
			PaddingLeft(2),

		Observation: lipgloss.NewStyle().
			Foreground(t.TextDim).
			Italic(true).
			PaddingLeft(2),

		ToolBox: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(t.Accent).
			Padding(0, 1).
			MarginLeft(2),

		ToolName: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true),

		ToolArgs: lipgloss.NewStyle().
			Foreground(t.TextDim),

		ToolSuccess: lipgloss.NewStyle().
			Foreground(t.Success).
			Bold(true),

		ToolError: lipgloss.NewStyle().
			Foreground(t.Error).
			Bold(true),

		ResultBox: lipgloss.NewStyle().
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(t.Success).
			Padding(0, 2).
			MarginTop(1),

		ResultOK: lipgloss.NewStyle().
			Foreground(t.Success).
			Bold(true),

		ResultStopped: lipgloss.NewStyle().
			Foreground(t.Warning).
			Bold(true),

		GuardrailNote: lipgloss.NewStyle().
			Foreground(t.Warning).
			Italic(true),

		SystemMessage: lipgloss.NewStyle().
			Foreground(t.Muted).
			Italic(true).
			PaddingLeft(2),

		Spinner: lipgloss.NewStyle().
			Foreground(t.Primary),

		StatusText: lipgloss.NewStyle().
			Foreground(t.TextDim),

		HelpKey: lipgloss.NewStyle().
			Foreground(t.Muted),

		HelpValue: lipgloss.NewStyle().
			Foreground(t.TextDim),

		HelpBar: lipgloss.NewStyle().
			Foreground(t.Muted).
			MarginTop(1),
	}
}

// DefaultStyles returns styles with the default theme.
func DefaultStyles() Styles {
	return NewStyles(DefaultTheme())
}
