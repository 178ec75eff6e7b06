package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/meditimer/internal/app/asset"
	"github.com/osa030/meditimer/internal/app/notification"
	"github.com/osa030/meditimer/internal/app/player"
	"github.com/osa030/meditimer/internal/app/sequencer"
	"github.com/osa030/meditimer/internal/domain/timer"
	"github.com/osa030/meditimer/internal/infra/prefs"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type collector struct {
	mu  sync.Mutex
	got []*notification.Notification
}

func (c *collector) Send(n *notification.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return nil
}

func (c *collector) has(typ notification.Type) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.got {
		if n.Type == typ {
			return true
		}
	}
	return false
}

func (c *collector) first() *notification.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.got) == 0 {
		return nil
	}
	return c.got[0]
}

func defaults() timer.Config {
	return timer.Config{
		IntervalMinutes: 1,
		RepeatCount:     1,
		BellSound:       timer.BellTiny,
		Preparation:     timer.PreparationNone,
	}
}

func newTestManager(t *testing.T, store prefs.Store) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)}
	phrases, err := asset.NewPhrasebook("en")
	require.NoError(t, err)

	seq := sequencer.New(sequencer.Config{
		Resolver: asset.NewResolver("", asset.DefaultLibrary()),
		Player:   player.NewTimed(player.TimedConfig{Tick: time.Millisecond, Clock: clock.Now}),
		Phrases:  phrases,
		Now:      clock.Now,
	})
	m := NewManager(seq, store, defaults())
	t.Cleanup(m.Close)
	return m, clock
}

func TestManagerRunsSessionToFinish(t *testing.T) {
	m, clock := newTestManager(t, nil)
	watcher := &collector{}
	unsubscribe, err := m.Watch(watcher)
	require.NoError(t, err)
	defer unsubscribe()

	first := watcher.first()
	require.NotNil(t, first)
	assert.Equal(t, notification.TypeSnapshot, first.Type)
	assert.Equal(t, timer.PhaseIdle, first.Snapshot.Phase)
	assert.Equal(t, int64(60000), first.Snapshot.DurationMs)

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, timer.PhaseSilence, m.Snapshot().Phase)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return m.Snapshot().Phase == timer.PhaseSignaling }, time.Second, time.Millisecond)

	clock.Advance(4 * time.Second)
	require.Eventually(t, func() bool { return watcher.has(notification.TypeFinished) }, 2*time.Second, time.Millisecond)
	assert.True(t, watcher.has(notification.TypeRepeatCompleted))
	assert.True(t, watcher.has(notification.TypeCueStarted))
	assert.Equal(t, timer.PhaseFinished, m.Snapshot().Phase)
}

func TestManagerStartFromPreferences(t *testing.T) {
	m, _ := newTestManager(t, prefs.StaticStore{
		prefs.KeyInterval: "20",
		prefs.KeyRepeat:   "3",
		prefs.KeySound:    "small",
	})

	require.NoError(t, m.Start(context.Background()))
	snap := m.Snapshot()
	assert.Equal(t, 3, snap.TotalRepeats)
	assert.Equal(t, int64(20*60000), snap.DurationMs)
	assert.Equal(t, int64(3*20*60000), snap.TotalMs)
}

func TestManagerDisplayBinding(t *testing.T) {
	m, _ := newTestManager(t, prefs.StaticStore{prefs.KeyRepeat: "3"})

	assert.False(t, m.IsRunning())
	assert.Equal(t, timer.PhaseIdle, m.Phase())

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Equal(t, timer.PhaseSilence, m.Phase())
	assert.Equal(t, 1, m.CurrentRepeat())
	assert.Equal(t, 3, m.TotalRepeats())

	require.NoError(t, m.Stop())
	assert.False(t, m.IsRunning())
	assert.Equal(t, timer.PhaseIdle, m.Phase())
}

func TestManagerStartInvalidPreferences(t *testing.T) {
	m, _ := newTestManager(t, prefs.StaticStore{prefs.KeyRepeat: "0"})

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, timer.PhaseIdle, m.Snapshot().Phase)
}

func TestManagerPauseResume(t *testing.T) {
	m, clock := newTestManager(t, nil)

	assert.True(t, errors.Is(m.Pause(), ErrSessionNotRunning))
	assert.True(t, errors.Is(m.Resume(), ErrSessionNotPaused))
	assert.True(t, errors.Is(m.Pause(), sequencer.ErrInvalidTransition))
	assert.True(t, errors.Is(m.Resume(), sequencer.ErrInvalidTransition))

	require.NoError(t, m.Toggle(context.Background()))
	clock.Advance(10 * time.Second)

	require.NoError(t, m.Toggle(context.Background()))
	assert.True(t, m.Snapshot().Paused)

	clock.Advance(time.Hour)
	assert.Equal(t, int64(10000), m.Snapshot().PositionMs)

	require.NoError(t, m.Toggle(context.Background()))
	assert.False(t, m.Snapshot().Paused)

	require.NoError(t, m.Stop())
	assert.Equal(t, timer.PhaseIdle, m.Snapshot().Phase)
}

func TestManagerChime(t *testing.T) {
	m, _ := newTestManager(t, nil)
	watcher := &collector{}
	_, err := m.Watch(watcher)
	require.NoError(t, err)

	require.NoError(t, m.Chime(context.Background(), timer.BellLarge))
	assert.True(t, watcher.has(notification.TypeChime))

	require.NoError(t, m.Start(context.Background()))
	err = m.Chime(context.Background(), timer.BellLarge)
	assert.True(t, errors.Is(err, sequencer.ErrInvalidTransition))
}

func TestManagerClose(t *testing.T) {
	m, _ := newTestManager(t, nil)
	m.Close()

	select {
	case <-m.Done():
	default:
		t.Fatal("done channel not closed")
	}
	m.Close()
}
