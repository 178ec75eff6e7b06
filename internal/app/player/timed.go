package player

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/meditimer/internal/app/asset"
)

// DefaultTick is the polling interval of playback timers.
const DefaultTick = 100 * time.Millisecond

// DefaultWordsPerMinute is the speaking rate used to estimate speech length.
const DefaultWordsPerMinute = 150

// TimedConfig holds timed player configuration.
type TimedConfig struct {
	Tick           time.Duration // Timer polling interval
	WordsPerMinute int           // Speaking rate for speech units without a duration
	Clock          Clock         // Time source, wall clock when nil
}

// Timed is a player that produces no sound. Each unit completes after its
// duration has elapsed on the clock, excluding paused time.
type Timed struct {
	mu sync.Mutex

	current *timedPlayback
	config  TimedConfig
	closed  bool
}

type timedPlayback struct {
	unit        asset.Unit
	duration    time.Duration
	done        chan struct{}
	progress    progress
	timerCancel func()
	timerSeq    int // Identifies the live timer
}

// NewTimed creates a new timed player.
func NewTimed(config TimedConfig) *Timed {
	if config.Tick <= 0 {
		config.Tick = DefaultTick
	}
	if config.WordsPerMinute <= 0 {
		config.WordsPerMinute = DefaultWordsPerMinute
	}
	return &Timed{config: config}
}

// Play starts unit, superseding any active unit.
func (t *Timed) Play(_ context.Context, unit asset.Unit) (<-chan struct{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errors.Wrap(ErrPlaybackUnavailable, "player closed")
	}

	t.stopLocked()

	duration := unit.Duration
	if duration <= 0 && unit.Speech {
		duration = EstimateSpeech(unit.Source, t.config.WordsPerMinute)
	}

	pb := &timedPlayback{
		unit:     unit,
		duration: duration,
		done:     make(chan struct{}),
		progress: newProgress(t.config.Clock.now()),
	}
	t.current = pb
	t.startTimerLocked(pb, duration)

	zlog.Debug().Msgf("timed player: play: ref=%s duration=%v", unit.Ref, duration)
	return pb.done, nil
}

// Pause freezes the active unit.
func (t *Timed) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pb := t.current
	if pb == nil || pb.progress.paused() {
		return ErrNotPlaying
	}

	if pb.timerCancel != nil {
		pb.timerCancel()
		pb.timerCancel = nil
	}
	pb.progress.pause(t.config.Clock.now())
	return nil
}

// Resume continues a paused unit.
func (t *Timed) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pb := t.current
	if pb == nil {
		return ErrNotPlaying
	}
	if !pb.progress.paused() {
		return ErrNotPaused
	}

	now := t.config.Clock.now()
	pb.progress.resume(now)

	remaining := pb.duration - pb.progress.elapsed(now)
	if remaining < 0 {
		remaining = 0
	}
	t.startTimerLocked(pb, remaining)
	return nil
}

// Stop halts the active unit without closing its completion channel.
func (t *Timed) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
}

// Position returns the elapsed time of the active unit, capped at its duration.
func (t *Timed) Position() (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pb := t.current
	if pb == nil {
		return 0, ErrNotPlaying
	}
	elapsed := pb.progress.elapsed(t.config.Clock.now())
	if elapsed > pb.duration {
		elapsed = pb.duration
	}
	return elapsed, nil
}

// Close stops playback and rejects further units.
func (t *Timed) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.closed = true
	return nil
}

func (t *Timed) stopLocked() {
	if t.current == nil {
		return
	}
	if t.current.timerCancel != nil {
		t.current.timerCancel()
	}
	t.current = nil
}

func (t *Timed) startTimerLocked(pb *timedPlayback, d time.Duration) {
	pb.timerSeq++
	seq := pb.timerSeq
	pb.timerCancel = startTimer(t.config.Clock, d, t.config.Tick, func() {
		t.finish(pb, seq)
	})
}

func (t *Timed) finish(pb *timedPlayback, seq int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Superseded, stopped, or a timer cancelled by pause
	if t.current != pb || pb.timerSeq != seq || pb.progress.paused() {
		return
	}
	t.current = nil
	close(pb.done)
}

// EstimateSpeech returns how long speaking text takes at wordsPerMinute.
// The estimate is never shorter than one second.
func EstimateSpeech(text string, wordsPerMinute int) time.Duration {
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	words := len(strings.Fields(text))
	d := time.Duration(words) * time.Minute / time.Duration(wordsPerMinute)
	if d < time.Second {
		return time.Second
	}
	return d
}
