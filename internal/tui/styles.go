package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/osa030/meditimer/internal/domain/timer"
)

// One Dark palette
var (
	ColorFgPrimary = lipgloss.Color("#ABB2BF")
	ColorFgMuted   = lipgloss.Color("#636B78")
	ColorRed       = lipgloss.Color("#E06C75")
	ColorGreen     = lipgloss.Color("#98C379")
	ColorYellow    = lipgloss.Color("#E5C07B")
	ColorBlue      = lipgloss.Color("#61AFEF")
	ColorMagenta   = lipgloss.Color("#C678DD")
	ColorBorder    = lipgloss.Color("#3F4451")
)

var (
	FrameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 3)

	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta).
			Bold(true)

	ClockStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary).
			Bold(true).
			PaddingTop(1).
			PaddingBottom(1)

	DetailStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)
)

// phaseStyle returns the badge style of a phase.
func phaseStyle(phase timer.Phase, paused bool) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	if paused {
		return base.Foreground(ColorYellow)
	}
	switch phase {
	case timer.PhasePreparing:
		return base.Foreground(ColorBlue)
	case timer.PhaseSilence:
		return base.Foreground(ColorGreen)
	case timer.PhaseSignaling:
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorFgMuted)
	}
}
