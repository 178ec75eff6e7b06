package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/meditimer/internal/app/notification"
	"github.com/osa030/meditimer/internal/app/progress"
	"github.com/osa030/meditimer/internal/app/sequencer"
	"github.com/osa030/meditimer/internal/app/session"
	"github.com/osa030/meditimer/internal/domain/timer"
	"github.com/osa030/meditimer/internal/infra/prefs"
)

const testToken = "secret"

type fakeController struct {
	mu       sync.Mutex
	base     timer.Config
	started  *timer.Config
	paused   bool
	chimed   []timer.BellSound
	prefsErr error
	notif    *notification.Manager
	done     chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		base: timer.Config{
			IntervalMinutes: 15,
			RepeatCount:     2,
			BellSound:       timer.BellSmall,
			ClickPattern:    1,
			Preparation:     timer.PreparationClick,
		}.Normalize(),
		notif: notification.NewManager(),
		done:  make(chan struct{}),
	}
}

func (f *fakeController) LoadConfig(context.Context) (timer.Config, error) {
	return f.base, f.prefsErr
}

func (f *fakeController) StartWith(cfg timer.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started != nil {
		return errors.Wrap(sequencer.ErrInvalidTransition, "start from silence")
	}
	f.started = &cfg
	return nil
}

func (f *fakeController) startedConfig() timer.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started == nil {
		return timer.Config{}
	}
	return *f.started
}

func (f *fakeController) chimes() []timer.BellSound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]timer.BellSound(nil), f.chimed...)
}

func (f *fakeController) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started == nil {
		return session.ErrSessionNotRunning
	}
	f.paused = true
	return nil
}

func (f *fakeController) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.paused {
		return session.ErrSessionNotPaused
	}
	f.paused = false
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = nil
	f.paused = false
	return nil
}

func (f *fakeController) Chime(_ context.Context, sound timer.BellSound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chimed = append(f.chimed, sound)
	return nil
}

func (f *fakeController) Snapshot() progress.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := progress.Snapshot{Phase: timer.PhaseIdle, TotalRepeats: f.base.RepeatCount, DurationMs: 10000, PositionMs: 10000}
	if f.started != nil {
		snap = progress.Snapshot{
			SessionID:    "s1",
			Phase:        timer.PhaseSilence,
			Running:      true,
			Paused:       f.paused,
			RepeatIndex:  1,
			TotalRepeats: f.started.RepeatCount,
			PositionMs:   1000,
			DurationMs:   int64(f.started.Interval() / time.Millisecond),
		}
	}
	return snap
}

func (f *fakeController) Watch(stream notification.Stream) (func(), error) {
	id := f.notif.Subscribe(stream)
	if err := f.notif.Send(id, &notification.Notification{Type: notification.TypeSnapshot, Snapshot: f.Snapshot()}); err != nil {
		return nil, err
	}
	return func() { f.notif.Unsubscribe(id) }, nil
}

func (f *fakeController) Notifications() *notification.Manager { return f.notif }

func (f *fakeController) Done() <-chan struct{} { return f.done }

func newTestServer(t *testing.T, ctrl Controller, refresh time.Duration) *httptest.Server {
	t.Helper()
	path, handler := NewTimerServiceHandler(
		NewTimerService(ctrl, refresh),
		connect.WithInterceptors(NewAuthInterceptor(testToken)),
	)
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()
	return NewClient(NewHTTPClient(context.Background(), token), srv.URL)
}

func TestTimerServiceLifecycle(t *testing.T) {
	ctrl := newFakeController()
	client := newTestClient(t, newTestServer(t, ctrl, time.Second), testToken)
	ctx := context.Background()

	snap, err := client.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, timer.PhaseIdle, snap.Phase)

	snap, err = client.Start(ctx, map[string]any{"interval_minutes": 20, "repeat_count": 3})
	require.NoError(t, err)
	assert.True(t, snap.Running)
	assert.Equal(t, timer.PhaseSilence, snap.Phase)
	assert.Equal(t, 3, snap.TotalRepeats)
	assert.Equal(t, int64(20*60000), snap.DurationMs)
	assert.Equal(t, timer.BellSmall, ctrl.startedConfig().BellSound)

	_, err = client.Start(ctx, nil)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	snap, err = client.Pause(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Paused)

	snap, err = client.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Paused)

	_, err = client.Resume(ctx)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	snap, err = client.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Running)

	require.NoError(t, client.Chime(ctx, timer.BellLarge))
	require.NoError(t, client.Chime(ctx, ""))
	assert.Equal(t, []timer.BellSound{timer.BellLarge, timer.BellSmall}, ctrl.chimes())
}

func TestTimerServiceStartOverrides(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		wantCode  connect.Code
		check     func(t *testing.T, cfg timer.Config)
	}{
		{
			name:      "new bell ends on the new bell",
			overrides: map[string]any{"bell_sound": "large"},
			check: func(t *testing.T, cfg timer.Config) {
				assert.Equal(t, timer.BellLarge, cfg.LastBellSound)
			},
		},
		{
			name:      "explicit ending bell",
			overrides: map[string]any{"bell_sound": "large", "last_bell_sound": "spoken"},
			check: func(t *testing.T, cfg timer.Config) {
				assert.Equal(t, timer.BellSpoken, cfg.LastBellSound)
			},
		},
		{
			name:      "numeric strings are accepted",
			overrides: map[string]any{"repeat_count": "4", "announce_via_speech": true},
			check: func(t *testing.T, cfg timer.Config) {
				assert.Equal(t, 4, cfg.RepeatCount)
				assert.True(t, cfg.AnnounceViaSpeech)
			},
		},
		{name: "unknown field", overrides: map[string]any{"volume": 3}, wantCode: connect.CodeInvalidArgument},
		{name: "invalid value", overrides: map[string]any{"repeat_count": 0}, wantCode: connect.CodeInvalidArgument},
		{name: "invalid bell", overrides: map[string]any{"bell_sound": "cowbell"}, wantCode: connect.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			client := newTestClient(t, newTestServer(t, ctrl, time.Second), testToken)

			_, err := client.Start(context.Background(), tt.overrides)
			if tt.wantCode != 0 {
				assert.Equal(t, tt.wantCode, connect.CodeOf(err))
				return
			}
			require.NoError(t, err)
			tt.check(t, ctrl.startedConfig())
		})
	}
}

func TestTimerServicePreferencesUnavailable(t *testing.T) {
	ctrl := newFakeController()
	ctrl.prefsErr = errors.Mark(errors.New("connection refused"), prefs.ErrPreferencesUnavailable)
	client := newTestClient(t, newTestServer(t, ctrl, time.Second), testToken)

	_, err := client.Start(context.Background(), nil)
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestTimerServiceRejectsBadToken(t *testing.T) {
	srv := newTestServer(t, newFakeController(), time.Second)

	client := newTestClient(t, srv, "wrong")
	_, err := client.Snapshot(context.Background())
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	err = client.Watch(context.Background(), func(*notification.Notification) error { return nil })
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	unauthenticated := NewClient(http.DefaultClient, srv.URL)
	_, err = unauthenticated.Snapshot(context.Background())
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestTimerServiceWatch(t *testing.T) {
	ctrl := newFakeController()
	client := newTestClient(t, newTestServer(t, ctrl, 20*time.Millisecond), testToken)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []*notification.Notification
	errStop := errors.New("enough")
	err := client.Watch(ctx, func(n *notification.Notification) error {
		got = append(got, n)
		if len(got) == 3 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)

	require.Len(t, got, 3)
	assert.Equal(t, notification.TypeSnapshot, got[0].Type)
	assert.Equal(t, timer.PhaseIdle, got[0].Snapshot.Phase)
	assert.Equal(t, int64(10000), got[0].Snapshot.DurationMs)
	assert.Less(t, got[0].SequenceNo, got[1].SequenceNo)
	assert.Less(t, got[1].SequenceNo, got[2].SequenceNo)
}

func TestRemoteSource(t *testing.T) {
	ctrl := newFakeController()
	client := newTestClient(t, newTestServer(t, ctrl, 10*time.Millisecond), testToken)

	src := NewRemoteSource(client)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx) }()

	require.Eventually(t, func() bool { return src.Snapshot().TotalRepeats == 2 }, 2*time.Second, 5*time.Millisecond)

	_, err := client.Start(context.Background(), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return src.Snapshot().Running }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestSnapshotStructRoundTrip(t *testing.T) {
	snap := progress.Snapshot{
		SessionID: "s1", Phase: timer.PhaseSignaling, Running: true, RepeatIndex: 2, TotalRepeats: 3,
		PositionMs: progress.Indeterminate, DurationMs: progress.Indeterminate, ElapsedMs: 1800000, TotalMs: 2700000,
	}
	s, err := SnapshotToStruct(snap)
	require.NoError(t, err)
	assert.Equal(t, "signaling", s.GetFields()["phase"].GetStringValue())

	back, err := SnapshotFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, snap, back)
}
