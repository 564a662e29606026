package inspect

import "github.com/charmbracelet/lipgloss"

// Theme centralizes the styling of operator reports.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusSkipped lipgloss.Style

	Title  lipgloss.Style
	Header lipgloss.Style
	Dim    lipgloss.Style
}

func NewDefaultTheme() Theme {
	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusSkipped: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
}

// Status picks the style for a ledger status.
func (t Theme) Status(status string) lipgloss.Style {
	switch status {
	case "succeeded":
		return t.StatusOK
	case "running":
		return t.StatusRunning
	case "failed":
		return t.StatusFailed
	default:
		return t.StatusSkipped
	}
}
