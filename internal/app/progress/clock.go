// Package progress derives display progress from sequencer state.
package progress

import (
	"sync"
	"time"

	"github.com/osa030/meditimer/internal/domain/timer"
)

// Indeterminate marks a position or duration that cannot be known, such as
// while a signaling group is playing.
const Indeterminate int64 = -1

// Snapshot is a point-in-time view of session progress.
type Snapshot struct {
	SessionID    string      `json:"session_id,omitempty"`
	Phase        timer.Phase `json:"phase"`
	Running      bool        `json:"running"`
	Paused       bool        `json:"paused"`
	RepeatIndex  int         `json:"repeat_index"`
	TotalRepeats int         `json:"total_repeats"`
	PositionMs   int64       `json:"position_ms"` // Within the current segment
	DurationMs   int64       `json:"duration_ms"` // Of the current segment
	ElapsedMs    int64       `json:"elapsed_ms"`  // Since session start, nominal
	TotalMs      int64       `json:"total_ms"`    // Nominal session length
}

// Indeterminate reports whether the segment position is unknown.
func (s Snapshot) Indeterminate() bool {
	return s.DurationMs < 0 || s.PositionMs < 0
}

// RemainingMs returns the time left in the current segment, or Indeterminate.
func (s Snapshot) RemainingMs() int64 {
	if s.Indeterminate() {
		return Indeterminate
	}
	return s.DurationMs - s.PositionMs
}

// SessionRemainingMs returns the nominal time left in the session.
func (s Snapshot) SessionRemainingMs() int64 {
	remaining := s.TotalMs - s.ElapsedMs
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Compute derives a snapshot from sequencer state at now.
// active is the cue currently playing, nil between cues.
//
// In Preparing and Silence the position is the active cue's elapsed time,
// excluding pauses, clamped to [0, duration]. In Signaling both position and
// duration are Indeterminate and the elapsed time sits at the boundary the
// repeat ends on. Idle and Finished report the nominal length of the segment
// a new session would start with.
func Compute(state timer.State, cfg timer.Config, active *timer.Cue, now time.Time) Snapshot {
	snap := Snapshot{
		SessionID:    state.SessionID,
		Phase:        state.Phase,
		Running:      state.Phase.IsRunning(),
		Paused:       state.IsPaused(),
		RepeatIndex:  state.CurrentRepeat,
		TotalRepeats: cfg.RepeatCount,
		TotalMs:      cfg.TotalDuration().Milliseconds(),
	}

	switch state.Phase {
	case timer.PhasePreparing, timer.PhaseSilence:
		duration := cfg.SegmentLength(state.CurrentRepeat)
		if active != nil && !active.Kind.IsSignal() && active.ExpectedDuration > 0 {
			duration = active.ExpectedDuration
		}

		var position time.Duration
		if active != nil {
			position = clamp(state.CueElapsed(now), 0, duration)
		}

		snap.DurationMs = duration.Milliseconds()
		snap.PositionMs = position.Milliseconds()
		snap.ElapsedMs = (cfg.SegmentStart(state.CurrentRepeat) + position).Milliseconds()

	case timer.PhaseSignaling:
		snap.DurationMs = Indeterminate
		snap.PositionMs = Indeterminate
		boundary := cfg.SegmentStart(state.CurrentRepeat) + cfg.SegmentLength(state.CurrentRepeat)
		snap.ElapsedMs = boundary.Milliseconds()

	default:
		next := cfg.NextSegmentLength().Milliseconds()
		snap.DurationMs = next
		snap.PositionMs = next
		snap.ElapsedMs = 0
	}

	if snap.ElapsedMs > snap.TotalMs {
		snap.ElapsedMs = snap.TotalMs
	}
	if snap.ElapsedMs < 0 {
		snap.ElapsedMs = 0
	}
	return snap
}

// Clock produces snapshots and remembers the last good one.
type Clock struct {
	mu      sync.Mutex
	last    Snapshot
	hasLast bool
}

// NewClock creates a new progress clock.
func NewClock() *Clock {
	return &Clock{}
}

// Snapshot computes the snapshot at now. When readErr reports that the
// player could not be read, the last good snapshot is returned instead.
func (c *Clock) Snapshot(state timer.State, cfg timer.Config, active *timer.Cue, now time.Time, readErr error) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if readErr != nil && c.hasLast && c.last.SessionID == state.SessionID {
		return c.last
	}

	snap := Compute(state, cfg, active, now)
	c.last = snap
	c.hasLast = true
	return snap
}

// Reset forgets the last good snapshot.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = Snapshot{}
	c.hasLast = false
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
