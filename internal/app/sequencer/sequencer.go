// Package sequencer drives a meditation session through its cues.
//
// The sequencer owns the session state and the player. A single worker
// goroutine per session waits for the active cue to complete and dispatches
// the next one. Every state change happens under one mutex, so a Stop that
// returns guarantees no further cue is dispatched for that session.
package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/meditimer/internal/app/asset"
	"github.com/osa030/meditimer/internal/app/player"
	"github.com/osa030/meditimer/internal/app/progress"
	"github.com/osa030/meditimer/internal/domain/timer"
)

// ErrInvalidTransition is returned when a control operation is not valid in
// the current phase.
var ErrInvalidTransition = errors.New("invalid transition")

// DefaultEventBuffer is the default capacity of the event channel.
const DefaultEventBuffer = 64

// Resolver maps cues to playable units.
type Resolver interface {
	Resolve(cue timer.Cue) (asset.Unit, error)
}

// Config holds sequencer configuration.
type Config struct {
	Resolver    Resolver
	Player      player.Player
	Phrases     Phrasebook
	Now         func() time.Time // Time source, wall clock when nil
	EventBuffer int              // Capacity of the event channel
}

// Sequencer runs one session at a time.
type Sequencer struct {
	mu sync.RWMutex

	resolver Resolver
	player   player.Player
	phrases  Phrasebook
	now      func() time.Time

	// Session
	config  timer.Config
	state   timer.State
	segment []timer.Cue // Cues of the current repeat
	active  *timer.Cue  // Cue currently playing

	// Worker
	workerCancel context.CancelFunc

	clock *progress.Clock

	// Events
	eventCh chan Event

	// Context
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a new sequencer.
func New(config Config) *Sequencer {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = DefaultEventBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sequencer{
		resolver: config.Resolver,
		player:   config.Player,
		phrases:  config.Phrases,
		now:      config.Now,
		state:    timer.State{Phase: timer.PhaseIdle},
		clock:    progress.NewClock(),
		eventCh:  make(chan Event, config.EventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events returns the event channel.
func (s *Sequencer) Events() <-chan Event {
	return s.eventCh
}

// Start begins a new session. It is valid from Idle and Finished.
func (s *Sequencer) Start(config timer.Config) error {
	config = config.Normalize()
	if err := config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return errors.Wrap(ErrInvalidTransition, "sequencer closed")
	}
	if s.state.Phase.IsRunning() {
		return errors.Wrapf(ErrInvalidTransition, "start from %s", s.state.Phase)
	}

	now := s.now()
	s.config = config
	s.state = timer.State{
		SessionID:     uuid.New().String(),
		CurrentRepeat: config.FirstRepeat(),
		CueQueueIndex: -1,
		StartedAt:     now,
	}
	s.segment = Segment(config, s.state.CurrentRepeat, s.phrases)
	s.active = nil
	s.clock.Reset()

	zlog.Info().Msgf("sequencer: session started: id=%s interval=%d repeat=%d bell=%s last_bell=%s click=%d prep=%s speech=%v total=%v",
		s.state.SessionID, config.IntervalMinutes, config.RepeatCount, config.BellSound, config.LastBellSound,
		config.ClickPattern, config.Preparation, config.AnnounceViaSpeech, config.TotalDuration())

	ctx, cancel := context.WithCancel(s.ctx)
	s.workerCancel = cancel

	done := s.advanceLocked(ctx)
	if done != nil {
		go s.run(ctx, done)
	}
	return nil
}

// Pause freezes the active preparation or silence cue.
// It is rejected while a signaling group is playing.
func (s *Sequencer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state.Phase != timer.PhasePreparing && s.state.Phase != timer.PhaseSilence:
		return errors.Wrapf(ErrInvalidTransition, "pause from %s", s.state.Phase)
	case s.state.IsPaused():
		return errors.Wrap(ErrInvalidTransition, "already paused")
	case s.active == nil:
		return errors.Wrap(ErrInvalidTransition, "no active cue")
	}

	if err := s.player.Pause(); err != nil {
		return errors.Wrap(errors.CombineErrors(ErrInvalidTransition, err), "pause")
	}

	now := s.now()
	s.state.PausedAt = &now

	zlog.Info().Msgf("sequencer: paused: id=%s phase=%s repeat=%d", s.state.SessionID, s.state.Phase, s.state.CurrentRepeat)
	s.sendEventLocked(s.eventLocked(EventStateChanged, s.active))
	return nil
}

// Resume continues a paused cue.
func (s *Sequencer) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.IsPaused() {
		return errors.Wrapf(ErrInvalidTransition, "resume from %s", s.state.Phase)
	}

	if err := s.player.Resume(); err != nil {
		return errors.Wrap(errors.CombineErrors(ErrInvalidTransition, err), "resume")
	}

	paused := s.now().Sub(*s.state.PausedAt)
	s.state.AccumulatedPause += paused
	s.state.TotalPaused += paused
	s.state.PausedAt = nil

	zlog.Info().Msgf("sequencer: resumed: id=%s phase=%s repeat=%d paused=%v", s.state.SessionID, s.state.Phase, s.state.CurrentRepeat, paused)
	s.sendEventLocked(s.eventLocked(EventStateChanged, s.active))
	return nil
}

// Stop ends the session and returns to Idle. Stopping an idle sequencer is a
// no-op. After Stop returns no further cue of the session is dispatched.
func (s *Sequencer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase == timer.PhaseIdle {
		return nil
	}

	wasRunning := s.state.Phase.IsRunning()
	s.resetLocked()

	if wasRunning {
		zlog.Info().Msgf("sequencer: session stopped: id=%s", s.state.SessionID)
		s.sendEventLocked(s.eventLocked(EventStopped, nil))
	} else {
		s.sendEventLocked(s.eventLocked(EventStateChanged, nil))
	}
	return nil
}

// Chime plays a single bell outside of a session. It is rejected while a
// session is running.
func (s *Sequencer) Chime(ctx context.Context, sound timer.BellSound) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase.IsRunning() {
		return errors.Wrap(ErrInvalidTransition, "chime while session is running")
	}

	cue := timer.Cue{Kind: timer.CueBell, AssetRef: asset.BellRef(sound)}
	unit, err := s.resolver.Resolve(cue)
	if err != nil {
		return err
	}
	if _, err := s.player.Play(ctx, unit); err != nil {
		return err
	}

	zlog.Info().Msgf("sequencer: chime: sound=%s", sound)
	return nil
}

// Snapshot returns the current progress.
func (s *Sequencer) Snapshot() progress.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var readErr error
	if s.active != nil && !s.active.Kind.IsSignal() {
		_, readErr = s.player.Position()
	}
	return s.clock.Snapshot(s.state, s.config, s.active, s.now(), readErr)
}

// State returns a copy of the session state.
func (s *Sequencer) State() timer.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Phase returns the current phase.
func (s *Sequencer) Phase() timer.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.Phase
}

// CurrentRepeat returns the current repeat index.
func (s *Sequencer) CurrentRepeat() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.CurrentRepeat
}

// TotalRepeats returns the repeat count of the current or last session.
func (s *Sequencer) TotalRepeats() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.config.RepeatCount
}

// IsRunning reports whether a session is in progress.
func (s *Sequencer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.Phase.IsRunning()
}

// IsPaused reports whether the session is paused.
func (s *Sequencer) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.IsPaused()
}

// Config returns the configuration of the current or last session.
func (s *Sequencer) Config() timer.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.config
}

// SetIdleConfig sets the configuration reported while no session has run yet.
func (s *Sequencer) SetIdleConfig(config timer.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase == timer.PhaseIdle {
		s.config = config.Normalize()
		s.state.CurrentRepeat = s.config.FirstRepeat()
	}
}

// Close stops any session and releases the player. It is safe to call more
// than once.
func (s *Sequencer) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.cancel()
		if s.state.Phase != timer.PhaseIdle {
			s.resetLocked()
		}
		s.mu.Unlock()

		if err := s.player.Close(); err != nil {
			zlog.Warn().Err(err).Msg("sequencer: failed to close player")
		}
		close(s.eventCh)
	})
}

// run waits for cue completions of one session and advances it.
func (s *Sequencer) run(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			s.mu.Lock()
			done = s.advanceLocked(ctx)
			s.mu.Unlock()
			if done == nil {
				return
			}
		}
	}
}

// advanceLocked completes the active cue and dispatches the next playable one.
// It returns the completion channel of the dispatched cue, or nil when the
// session ended or was stopped.
func (s *Sequencer) advanceLocked(ctx context.Context) <-chan struct{} {
	for {
		// Stopped while the completion was in flight
		if ctx.Err() != nil {
			return nil
		}

		if s.active != nil {
			completed := s.active
			s.active = nil
			s.sendEventLocked(s.eventLocked(EventCueCompleted, completed))
		}

		cue, ok := s.nextCueLocked()
		if !ok {
			return nil
		}

		done, err := s.dispatchLocked(ctx, cue)
		if err != nil {
			zlog.Warn().Err(err).Msgf("sequencer: cue skipped: id=%s repeat=%d kind=%s ref=%q",
				s.state.SessionID, cue.RepeatIndex, cue.Kind, cue.AssetRef)
			ev := s.eventLocked(EventCueSkipped, &cue)
			ev.Err = err
			s.sendEventLocked(ev)
			continue
		}
		return done
	}
}

// nextCueLocked moves to the next cue, entering the next repeat or finishing
// the session when the current repeat is exhausted.
func (s *Sequencer) nextCueLocked() (timer.Cue, bool) {
	s.state.CueQueueIndex++

	if s.state.CueQueueIndex >= len(s.segment) {
		completed := s.state.CurrentRepeat
		if completed >= 1 {
			zlog.Debug().Msgf("sequencer: repeat completed: id=%s repeat=%d/%d", s.state.SessionID, completed, s.config.RepeatCount)
			s.sendEventLocked(s.eventLocked(EventRepeatCompleted, nil))
		}
		if completed >= s.config.RepeatCount {
			s.finishLocked()
			return timer.Cue{}, false
		}

		s.state.CurrentRepeat++
		s.state.CueQueueIndex = 0
		s.segment = Segment(s.config, s.state.CurrentRepeat, s.phrases)
	}

	cue := s.segment[s.state.CueQueueIndex]
	s.setPhaseLocked(phaseFor(cue))
	return cue, true
}

func (s *Sequencer) dispatchLocked(ctx context.Context, cue timer.Cue) (<-chan struct{}, error) {
	unit, err := s.resolver.Resolve(cue)
	if err != nil {
		return nil, err
	}

	// A unit that cannot be played is treated as completed immediately.
	done, err := s.player.Play(ctx, unit)
	if err != nil {
		return nil, err
	}

	s.active = &cue
	s.state.CueStartedAt = s.now()
	s.state.AccumulatedPause = 0
	s.state.PausedAt = nil

	zlog.Debug().Msgf("sequencer: cue started: id=%s repeat=%d ordinal=%d kind=%s ref=%q",
		s.state.SessionID, cue.RepeatIndex, cue.Ordinal, cue.Kind, cue.AssetRef)
	s.sendEventLocked(s.eventLocked(EventCueStarted, &cue))
	return done, nil
}

func (s *Sequencer) setPhaseLocked(phase timer.Phase) {
	if s.state.Phase == phase {
		return
	}
	s.state.Phase = phase
	s.sendEventLocked(s.eventLocked(EventStateChanged, nil))
}

func (s *Sequencer) finishLocked() {
	s.player.Stop()
	if s.workerCancel != nil {
		s.workerCancel()
		s.workerCancel = nil
	}

	s.state.Phase = timer.PhaseFinished
	s.state.CurrentRepeat = s.config.FirstRepeat()
	s.state.CueQueueIndex = 0
	s.state.PausedAt = nil
	s.state.CueStartedAt = time.Time{}
	s.segment = nil
	s.active = nil

	zlog.Info().Msgf("sequencer: session finished: id=%s repeats=%d paused=%v",
		s.state.SessionID, s.config.RepeatCount, s.state.TotalPaused)
	s.sendEventLocked(s.eventLocked(EventFinished, nil))
}

func (s *Sequencer) resetLocked() {
	if s.workerCancel != nil {
		s.workerCancel()
		s.workerCancel = nil
	}
	s.player.Stop()

	s.state.Phase = timer.PhaseIdle
	s.state.CurrentRepeat = s.config.FirstRepeat()
	s.state.CueQueueIndex = 0
	s.state.PausedAt = nil
	s.state.CueStartedAt = time.Time{}
	s.state.AccumulatedPause = 0
	s.segment = nil
	s.active = nil
	s.clock.Reset()
}

func (s *Sequencer) eventLocked(t EventType, cue *timer.Cue) Event {
	return Event{
		Type:      t,
		SessionID: s.state.SessionID,
		Cue:       cue,
		Phase:     s.state.Phase,
		Repeat:    s.state.CurrentRepeat,
		Paused:    s.state.IsPaused(),
	}
}

func (s *Sequencer) sendEventLocked(e Event) {
	// Close cancels ctx under the lock before closing eventCh.
	if s.ctx.Err() != nil {
		return
	}
	select {
	case s.eventCh <- e:
		// Successfully sent
	default:
		zlog.Warn().Msgf("sequencer: event dropped: type=%s", e.Type)
	}
}

func phaseFor(cue timer.Cue) timer.Phase {
	switch {
	case cue.Kind == timer.CuePreparation:
		return timer.PhasePreparing
	case cue.Kind.IsSignal():
		return timer.PhaseSignaling
	default:
		return timer.PhaseSilence
	}
}
