package panel

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00AFFF")).
			MarginLeft(2).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00AFFF")).
			Padding(0, 1).
			MarginRight(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF"))

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#005F87"))

	flowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AFFF"))

	dryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#585858"))

	activeLeakStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	inactiveLeakStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFAF00"))

	openStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))

	closedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)
)
