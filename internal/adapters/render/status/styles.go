package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	user       lipgloss.Style
	detail     lipgloss.Style
	warning    lipgloss.Style
	section    lipgloss.Style
	empty      lipgloss.Style
	key        lipgloss.Style
	barBracket lipgloss.Style
	barFill    lipgloss.Style
	barEmpty   lipgloss.Style
	eventTime  lipgloss.Style
	eventAdd   lipgloss.Style
	eventEdit  lipgloss.Style
	eventDrop  lipgloss.Style
	eventInfo  lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		user:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:    lipgloss.NewStyle().MarginTop(1),
		empty:      lipgloss.NewStyle().Faint(true),
		key:        lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		barBracket: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		eventTime:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		eventAdd:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("78")),
		eventEdit:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
		eventDrop:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		eventInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
}
