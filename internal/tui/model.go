// Package tui provides the terminal timer face.
package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	progressbar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/osa030/meditimer/internal/app/display"
	"github.com/osa030/meditimer/internal/domain/timer"
)

// Actions are the controls bound to keys. A nil action disables its key.
type Actions struct {
	Start  func() error
	Pause  func() error
	Resume func() error
	Stop   func() error
	Chime  func() error
}

type tickMsg time.Time

type actionDoneMsg struct {
	err error
}

// Model is the bubbletea model of the timer face.
type Model struct {
	source    display.Source
	presenter *display.Presenter
	actions   Actions
	refresh   time.Duration

	keys KeyMap
	help help.Model
	bar  progressbar.Model

	view     display.View
	err      error
	width    int
	quitting bool
}

// New creates a timer face reading from source every refresh interval.
func New(source display.Source, actions Actions, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = display.DefaultRefresh
	}
	m := Model{
		source:    source,
		presenter: display.NewPresenter(),
		actions:   actions,
		refresh:   refresh,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		bar:       progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithoutPercentage()),
	}
	m.view = m.presenter.Render(source.Snapshot())
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.view = m.presenter.Render(m.source.Snapshot())
		return m, m.tick()

	case actionDoneMsg:
		m.err = msg.err
		m.view = m.presenter.Render(m.source.Snapshot())
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.bar.Width = max(10, min(msg.Width-10, 60))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.Toggle):
			return m, m.run(m.toggleAction())
		case key.Matches(msg, m.keys.Stop):
			return m, m.run(m.actions.Stop)
		case key.Matches(msg, m.keys.Chime):
			return m, m.run(m.actions.Chime)
		}
	}
	return m, nil
}

// toggleAction picks the action for the current state.
func (m Model) toggleAction() func() error {
	switch {
	case m.view.Paused:
		return m.actions.Resume
	case m.view.Running:
		return m.actions.Pause
	default:
		return m.actions.Start
	}
}

func (m Model) run(action func() error) tea.Cmd {
	if action == nil {
		return nil
	}
	return func() tea.Msg {
		return actionDoneMsg{err: action()}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	phase := PhaseLabel(m.view.Phase, m.view.Paused)

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
		TitleStyle.Render("meditimer"),
		phaseStyle(m.view.Phase, m.view.Paused).Render(phase),
	))
	b.WriteString("\n")
	b.WriteString(ClockStyle.Render(m.view.Remaining))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.view.Fraction))
	b.WriteString("\n")
	b.WriteString(DetailStyle.Render("repeat " + m.view.Repeat + "   " + m.view.Elapsed + " / " + m.view.Total))
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.err.Error()))
	}

	return FrameStyle.Render(b.String()) + "\n" + m.help.View(m.keys) + "\n"
}

// Run runs the timer face until the user quits.
func Run(source display.Source, actions Actions, refresh time.Duration) error {
	_, err := tea.NewProgram(New(source, actions, refresh), tea.WithAltScreen()).Run()
	return err
}

// PhaseLabel returns the label shown for a phase.
func PhaseLabel(phase timer.Phase, paused bool) string {
	if paused {
		return "paused"
	}
	return phase.String()
}
