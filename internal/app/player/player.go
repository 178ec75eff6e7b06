// Package player plays resolved units one at a time.
//
// A player holds at most one active unit. Starting a new unit supersedes the
// previous one, whose completion channel is then never closed.
package player

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/meditimer/internal/app/asset"
)

// Errors
var (
	ErrPlaybackUnavailable = errors.New("playback unavailable")
	ErrNotPlaying          = errors.New("not playing")
	ErrNotPaused           = errors.New("not paused")
)

// Player is a single-channel playback device.
type Player interface {
	// Play starts unit and returns a channel that is closed exactly once when
	// the unit completes naturally. It fails with ErrPlaybackUnavailable when
	// the unit cannot be played.
	Play(ctx context.Context, unit asset.Unit) (<-chan struct{}, error)
	// Pause freezes the active unit.
	Pause() error
	// Resume continues a paused unit.
	Resume() error
	// Stop halts the active unit without signaling completion.
	Stop()
	// Position returns how far the active unit has played.
	Position() (time.Duration, error)
	// Close releases the device.
	Close() error
}

// Clock returns the current time.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return toWallTime(time.Now())
	}
	return c()
}

// toWallTime strips the monotonic reading so elapsed time follows the wall clock.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}

// progress tracks elapsed play time of one unit across pauses.
type progress struct {
	startTime     time.Time
	pausedAt      *time.Time
	pausedElapsed time.Duration
}

func newProgress(now time.Time) progress {
	return progress{startTime: now}
}

func (p *progress) elapsed(now time.Time) time.Duration {
	elapsed := now.Sub(p.startTime) - p.pausedElapsed
	if p.pausedAt != nil {
		elapsed -= now.Sub(*p.pausedAt)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func (p *progress) pause(now time.Time) {
	p.pausedAt = &now
}

func (p *progress) resume(now time.Time) {
	if p.pausedAt != nil {
		p.pausedElapsed += now.Sub(*p.pausedAt)
	}
	p.pausedAt = nil
}

func (p *progress) paused() bool {
	return p.pausedAt != nil
}

// startTimer invokes callback once the clock reports duration has passed.
// It polls on tick so that a stepped clock is honored. The returned function
// cancels the timer.
func startTimer(clock Clock, duration, tick time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())
	endTime := clock.now().Add(duration)

	fn := func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !clock.now().Before(endTime) {
					callback()
					return
				}
			}
		}
	}

	go fn()

	return cancel
}
