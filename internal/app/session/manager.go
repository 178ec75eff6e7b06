// Package session provides the session manager that binds the sequencer to
// preferences, watchers and the display.
package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/meditimer/internal/app/notification"
	"github.com/osa030/meditimer/internal/app/progress"
	"github.com/osa030/meditimer/internal/app/sequencer"
	"github.com/osa030/meditimer/internal/domain/timer"
	"github.com/osa030/meditimer/internal/infra/prefs"
)

var (
	ErrSessionNotRunning = errors.New("session is not running")
	ErrSessionNotPaused  = errors.New("session is not paused")
)

// Sequencer is the session engine driven by the manager.
type Sequencer interface {
	Start(config timer.Config) error
	Pause() error
	Resume() error
	Stop() error
	Chime(ctx context.Context, sound timer.BellSound) error
	Snapshot() progress.Snapshot
	SetIdleConfig(config timer.Config)
	IsRunning() bool
	IsPaused() bool
	Events() <-chan sequencer.Event
	Close()
}

// Manager manages the meditation session.
type Manager struct {
	mu sync.Mutex

	// Components
	sequencer    Sequencer
	prefs        prefs.Store
	defaults     timer.Config
	notification *notification.Manager

	// Channels
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewManager creates a new session manager and starts its event loop.
// store may be nil, in which case sessions start from defaults.
func NewManager(seq Sequencer, store prefs.Store, defaults timer.Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		sequencer:    seq,
		prefs:        store,
		defaults:     defaults.Normalize(),
		notification: notification.NewManager(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	seq.SetIdleConfig(m.defaults)

	go m.eventLoop()
	return m
}

// LoadConfig returns the session config from stored preferences over defaults.
func (m *Manager) LoadConfig(ctx context.Context) (timer.Config, error) {
	if m.prefs == nil {
		return m.defaults, nil
	}

	values, err := m.prefs.Load(ctx)
	if err != nil {
		return timer.Config{}, err
	}
	cfg, err := prefs.Decode(values, m.defaults)
	if err != nil {
		return timer.Config{}, errors.Wrap(err, "invalid stored preferences")
	}
	return cfg, nil
}

// Start starts a session configured from stored preferences.
func (m *Manager) Start(ctx context.Context) error {
	cfg, err := m.LoadConfig(ctx)
	if err != nil {
		return err
	}
	return m.StartWith(cfg)
}

// StartWith starts a session with an explicit config.
func (m *Manager) StartWith(cfg timer.Config) error {
	if err := m.sequencer.Start(cfg); err != nil {
		return err
	}
	zlog.Info().Msg("session started")
	return nil
}

// Pause pauses the session. Rejections match sequencer.ErrInvalidTransition.
func (m *Manager) Pause() error {
	if !m.sequencer.IsRunning() {
		return errors.Mark(ErrSessionNotRunning, sequencer.ErrInvalidTransition)
	}
	return m.sequencer.Pause()
}

// Resume resumes the session. Rejections match sequencer.ErrInvalidTransition.
func (m *Manager) Resume() error {
	if !m.sequencer.IsPaused() {
		return errors.Mark(ErrSessionNotPaused, sequencer.ErrInvalidTransition)
	}
	return m.sequencer.Resume()
}

// Stop stops the session.
func (m *Manager) Stop() error {
	return m.sequencer.Stop()
}

// Toggle pauses a running session, resumes a paused one, and starts a new
// session otherwise.
func (m *Manager) Toggle(ctx context.Context) error {
	switch {
	case m.sequencer.IsPaused():
		return m.Resume()
	case m.sequencer.IsRunning():
		return m.Pause()
	default:
		return m.Start(ctx)
	}
}

// Chime plays a single bell outside of a session.
func (m *Manager) Chime(ctx context.Context, sound timer.BellSound) error {
	if err := m.sequencer.Chime(ctx, sound); err != nil {
		return err
	}
	m.notification.Broadcast(&notification.Notification{
		Type:     notification.TypeChime,
		Cue:      string(sound),
		Snapshot: m.sequencer.Snapshot(),
	})
	return nil
}

// Snapshot returns the current progress.
func (m *Manager) Snapshot() progress.Snapshot {
	return m.sequencer.Snapshot()
}

// CurrentRepeat returns the repeat in progress, 0 during preparation.
func (m *Manager) CurrentRepeat() int {
	return m.sequencer.Snapshot().RepeatIndex
}

// TotalRepeats returns the repeat count of the current or next session.
func (m *Manager) TotalRepeats() int {
	return m.sequencer.Snapshot().TotalRepeats
}

// IsRunning reports whether a session is in progress.
func (m *Manager) IsRunning() bool {
	return m.sequencer.Snapshot().Running
}

// Phase returns the current phase.
func (m *Manager) Phase() timer.Phase {
	return m.sequencer.Snapshot().Phase
}

// Defaults returns the default session config.
func (m *Manager) Defaults() timer.Config {
	return m.defaults
}

// Notifications returns the notification manager.
func (m *Manager) Notifications() *notification.Manager {
	return m.notification
}

// Watch subscribes stream to progress notifications and immediately sends it
// the current snapshot. The returned function unsubscribes.
func (m *Manager) Watch(stream notification.Stream) (func(), error) {
	id := m.notification.Subscribe(stream)
	unsubscribe := func() { m.notification.Unsubscribe(id) }

	if err := m.notification.Send(id, &notification.Notification{
		Type:     notification.TypeSnapshot,
		Snapshot: m.sequencer.Snapshot(),
	}); err != nil {
		unsubscribe()
		return nil, errors.Wrap(err, "failed to send initial snapshot")
	}
	return unsubscribe, nil
}

// Done returns a channel that is closed when the manager is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close stops any session and releases the sequencer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	m.cancel()
	m.sequencer.Close()
	m.notification.Close()
	close(m.done)
}

// eventLoop handles sequencer events.
func (m *Manager) eventLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session event loop panicked: %v", r)
			zlog.Info().Msg("restarting session event loop")
			go m.eventLoop()
		}
	}()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.sequencer.Events():
			if !ok {
				return
			}
			m.handleEvent(event)
		}
	}
}

// handleEvent logs an event and forwards it to watchers.
func (m *Manager) handleEvent(event sequencer.Event) {
	var (
		typ notification.Type
		cue string
	)
	if event.Cue != nil {
		cue = event.Cue.AssetRef
	}

	switch event.Type {
	case sequencer.EventCueStarted:
		typ = notification.TypeCueStarted
	case sequencer.EventStateChanged:
		typ = notification.TypeStateChanged
		zlog.Info().Msgf("session state changed: phase=%s repeat=%d paused=%v", event.Phase, event.Repeat, event.Paused)
	case sequencer.EventRepeatCompleted:
		typ = notification.TypeRepeatCompleted
		zlog.Info().Msgf("repeat completed: repeat=%d", event.Repeat)
	case sequencer.EventFinished:
		typ = notification.TypeFinished
		zlog.Info().Msgf("session finished: session_id=%s", event.SessionID)
	case sequencer.EventStopped:
		typ = notification.TypeStopped
		zlog.Info().Msgf("session stopped: session_id=%s", event.SessionID)
	case sequencer.EventCueSkipped:
		zlog.Warn().Err(event.Err).Msgf("cue skipped: ref=%s", cue)
		return
	default:
		return
	}

	m.notification.Broadcast(&notification.Notification{
		Type:     typ,
		Cue:      cue,
		Snapshot: m.sequencer.Snapshot(),
	})
}
