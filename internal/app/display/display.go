// Package display turns progress snapshots into what a timer face shows.
package display

import (
	"context"
	"fmt"
	"time"

	"github.com/osa030/meditimer/internal/app/progress"
	"github.com/osa030/meditimer/internal/domain/timer"
)

// DefaultRefresh is the display refresh interval.
const DefaultRefresh = 500 * time.Millisecond

// Source provides progress snapshots.
type Source interface {
	Snapshot() progress.Snapshot
}

// View is the rendered state of the timer face.
type View struct {
	Phase     timer.Phase
	Running   bool
	Paused    bool
	Remaining string  // Time left in the current segment
	Repeat    string  // "current/total"
	Elapsed   string  // Nominal time since session start
	Total     string  // Nominal session length
	Fraction  float64 // Elapsed share of the session in [0, 1]
}

// Presenter renders snapshots. It remembers the last determinate remaining
// time so that signaling groups, whose length is unknown, keep showing the
// boundary the repeat ended on.
type Presenter struct {
	lastRemainingMs int64
	sessionID       string
}

// NewPresenter creates a new presenter.
func NewPresenter() *Presenter {
	return &Presenter{lastRemainingMs: progress.Indeterminate}
}

// Render renders snap.
func (p *Presenter) Render(snap progress.Snapshot) View {
	if snap.SessionID != p.sessionID {
		p.sessionID = snap.SessionID
		p.lastRemainingMs = progress.Indeterminate
	}

	remaining := snap.RemainingMs()
	switch {
	case !snap.Running:
		remaining = snap.DurationMs
	case remaining >= 0:
		p.lastRemainingMs = remaining
	case p.lastRemainingMs >= 0:
		remaining = p.lastRemainingMs
	default:
		remaining = 0
	}
	if remaining < 0 {
		remaining = 0
	}

	repeat := 0
	if snap.Running {
		repeat = snap.RepeatIndex
	}

	var fraction float64
	if snap.TotalMs > 0 {
		fraction = float64(snap.ElapsedMs) / float64(snap.TotalMs)
	}

	return View{
		Phase:     snap.Phase,
		Running:   snap.Running,
		Paused:    snap.Paused,
		Remaining: FormatClock(remaining, false),
		Repeat:    fmt.Sprintf("%d/%d", repeat, snap.TotalRepeats),
		Elapsed:   FormatClock(snap.ElapsedMs, true),
		Total:     FormatClock(snap.TotalMs, true),
		Fraction:  clampFraction(fraction),
	}
}

// FormatClock formats milliseconds as mm:ss, or hh:mm:ss with withHour.
// Without hours, minutes are not wrapped.
func FormatClock(ms int64, withHour bool) string {
	if ms < 0 {
		ms = 0
	}
	sec := ms / 1000
	if withHour {
		return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
	}
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}

// Poll calls fn with a snapshot from src immediately and then every interval
// until ctx is done.
func Poll(ctx context.Context, src Source, interval time.Duration, fn func(progress.Snapshot)) error {
	if interval <= 0 {
		interval = DefaultRefresh
	}

	fn(src.Snapshot())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(src.Snapshot())
		}
	}
}

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
