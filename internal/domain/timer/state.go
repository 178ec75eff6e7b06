package timer

import "time"

// Phase represents the session phase.
type Phase int

const (
	PhaseIdle      Phase = iota // No session
	PhasePreparing              // Preparation segment is playing
	PhaseSilence                // Interval silence is playing
	PhaseSignaling              // Clicks, bell or announcement are playing
	PhaseFinished               // All repeats completed
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreparing:
		return "preparing"
	case PhaseSilence:
		return "silence"
	case PhaseSignaling:
		return "signaling"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// ParsePhase parses the string form produced by Phase.String.
func ParsePhase(s string) Phase {
	switch s {
	case "preparing":
		return PhasePreparing
	case "silence":
		return PhaseSilence
	case "signaling":
		return PhaseSignaling
	case "finished":
		return PhaseFinished
	default:
		return PhaseIdle
	}
}

// IsRunning reports whether a session is in progress in this phase.
func (p Phase) IsRunning() bool {
	return p == PhasePreparing || p == PhaseSilence || p == PhaseSignaling
}

// State is the mutable session state owned by the sequencer.
type State struct {
	SessionID        string
	Phase            Phase
	CurrentRepeat    int
	CueQueueIndex    int
	StartedAt        time.Time     // Session start
	CueStartedAt     time.Time     // Start of the active cue
	PausedAt         *time.Time    // Set while paused
	AccumulatedPause time.Duration // Paused time within the active cue
	TotalPaused      time.Duration // Paused time within the session
}

// IsPaused reports whether the active cue is paused.
func (s State) IsPaused() bool {
	return s.PausedAt != nil
}

// CueElapsed returns how long the active cue has been playing at now,
// excluding paused time.
func (s State) CueElapsed(now time.Time) time.Duration {
	if s.CueStartedAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(s.CueStartedAt) - s.AccumulatedPause
	if s.PausedAt != nil {
		elapsed -= now.Sub(*s.PausedAt)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	*p = ParsePhase(string(text))
	return nil
}
