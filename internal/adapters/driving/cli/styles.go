package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/calsync/internal/core/domain"
)

var (
	colorPrimary = lipgloss.Color("#7C3AED") // Purple
	colorMuted   = lipgloss.Color("#6C7086") // Medium gray
	colorSuccess = lipgloss.Color("#A6E3A1") // Green
	colorWarning = lipgloss.Color("#F9E2AF") // Yellow
	colorError   = lipgloss.Color("#F38BA8") // Red
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(14)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

// statusStyle colours a connection status by severity.
func statusStyle(s domain.ConnectionStatus) lipgloss.Style {
	switch s {
	case domain.StatusActive:
		return lipgloss.NewStyle().Foreground(colorSuccess)
	case domain.StatusPartialSync, domain.StatusScheduledFullSync:
		return lipgloss.NewStyle().Foreground(colorWarning)
	case domain.StatusError, domain.StatusAuthError, domain.StatusPermissionError:
		return lipgloss.NewStyle().Foreground(colorError).Bold(true)
	default:
		return mutedStyle
	}
}
