package progress

import (
	"math/rand"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/meditimer/internal/domain/timer"
)

var t0 = time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)

func testConfig() timer.Config {
	return timer.Config{
		IntervalMinutes: 15,
		RepeatCount:     2,
		BellSound:       timer.BellSmall,
		Preparation:     timer.PreparationGong,
	}.Normalize()
}

func silenceCue(cfg timer.Config, repeat int) *timer.Cue {
	return &timer.Cue{Kind: timer.CueIntervalSilence, AssetRef: "silence", ExpectedDuration: cfg.Interval(), RepeatIndex: repeat}
}

func TestComputePhases(t *testing.T) {
	cfg := testConfig()
	prep := &timer.Cue{Kind: timer.CuePreparation, AssetRef: "prepare-gong", ExpectedDuration: 20 * time.Second}
	bell := &timer.Cue{Kind: timer.CueBell, AssetRef: "bell-small", RepeatIndex: 1}

	tests := []struct {
		name         string
		state        timer.State
		active       *timer.Cue
		now          time.Time
		wantPosition int64
		wantDuration int64
		wantElapsed  int64
	}{
		{
			name:         "idle shows next segment",
			state:        timer.State{Phase: timer.PhaseIdle},
			now:          t0,
			wantPosition: 20000, wantDuration: 20000, wantElapsed: 0,
		},
		{
			name:         "finished shows next segment",
			state:        timer.State{Phase: timer.PhaseFinished},
			now:          t0,
			wantPosition: 20000, wantDuration: 20000, wantElapsed: 0,
		},
		{
			name:         "preparing",
			state:        timer.State{Phase: timer.PhasePreparing, CurrentRepeat: 0, CueStartedAt: t0},
			active:       prep,
			now:          t0.Add(5 * time.Second),
			wantPosition: 5000, wantDuration: 20000, wantElapsed: 5000,
		},
		{
			name:         "second silence",
			state:        timer.State{Phase: timer.PhaseSilence, CurrentRepeat: 2, CueStartedAt: t0},
			active:       silenceCue(cfg, 2),
			now:          t0.Add(time.Minute),
			wantPosition: 60000, wantDuration: 900000, wantElapsed: 20000 + 900000 + 60000,
		},
		{
			name:         "position clamps to duration",
			state:        timer.State{Phase: timer.PhaseSilence, CurrentRepeat: 1, CueStartedAt: t0},
			active:       silenceCue(cfg, 1),
			now:          t0.Add(time.Hour),
			wantPosition: 900000, wantDuration: 900000, wantElapsed: 920000,
		},
		{
			name:         "between cues",
			state:        timer.State{Phase: timer.PhaseSilence, CurrentRepeat: 1, CueStartedAt: t0},
			now:          t0.Add(time.Minute),
			wantPosition: 0, wantDuration: 900000, wantElapsed: 20000,
		},
		{
			name:         "signaling is indeterminate",
			state:        timer.State{Phase: timer.PhaseSignaling, CurrentRepeat: 1},
			active:       bell,
			now:          t0,
			wantPosition: Indeterminate, wantDuration: Indeterminate, wantElapsed: 920000,
		},
		{
			name:         "final signaling at total",
			state:        timer.State{Phase: timer.PhaseSignaling, CurrentRepeat: 2},
			active:       bell,
			now:          t0,
			wantPosition: Indeterminate, wantDuration: Indeterminate, wantElapsed: 1820000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Compute(tt.state, cfg, tt.active, tt.now)
			assert.Equal(t, tt.wantPosition, snap.PositionMs)
			assert.Equal(t, tt.wantDuration, snap.DurationMs)
			assert.Equal(t, tt.wantElapsed, snap.ElapsedMs)
			assert.Equal(t, int64(1820000), snap.TotalMs)
			assert.Equal(t, 2, snap.TotalRepeats)
		})
	}
}

func TestComputePaused(t *testing.T) {
	cfg := testConfig()
	pausedAt := t0.Add(2 * time.Minute)
	state := timer.State{
		Phase:            timer.PhaseSilence,
		CurrentRepeat:    1,
		CueStartedAt:     t0,
		AccumulatedPause: 30 * time.Second,
		PausedAt:         &pausedAt,
	}

	snap := Compute(state, cfg, silenceCue(cfg, 1), t0.Add(10*time.Minute))
	assert.True(t, snap.Paused)
	assert.Equal(t, int64(90000), snap.PositionMs)
	assert.Equal(t, int64(810000), snap.RemainingMs())
}

func TestComputeRandomTicksStayInRange(t *testing.T) {
	cfg := testConfig()
	rng := rand.New(rand.NewSource(42))
	phases := []timer.Phase{timer.PhaseIdle, timer.PhasePreparing, timer.PhaseSilence, timer.PhaseSignaling, timer.PhaseFinished}

	for i := 0; i < 10000; i++ {
		phase := phases[rng.Intn(len(phases))]
		repeat := rng.Intn(cfg.RepeatCount + 1)
		if phase == timer.PhaseSilence && repeat == 0 {
			repeat = 1
		}
		state := timer.State{
			Phase:            phase,
			CurrentRepeat:    repeat,
			CueStartedAt:     t0,
			AccumulatedPause: time.Duration(rng.Int63n(int64(time.Hour))),
		}
		if rng.Intn(3) == 0 {
			p := t0.Add(time.Duration(rng.Int63n(int64(2 * time.Hour))))
			state.PausedAt = &p
		}
		now := t0.Add(time.Duration(rng.Int63n(int64(3 * time.Hour))))

		var active *timer.Cue
		if phase == timer.PhaseSilence {
			active = silenceCue(cfg, repeat)
		}

		snap := Compute(state, cfg, active, now)
		if snap.Indeterminate() {
			require.Equal(t, timer.PhaseSignaling, phase)
			continue
		}
		require.GreaterOrEqual(t, snap.PositionMs, int64(0))
		require.LessOrEqual(t, snap.PositionMs, snap.DurationMs)
		require.GreaterOrEqual(t, snap.ElapsedMs, int64(0))
		require.LessOrEqual(t, snap.ElapsedMs, snap.TotalMs)
	}
}

func TestClockLastKnownGood(t *testing.T) {
	cfg := testConfig()
	clock := NewClock()
	state := timer.State{SessionID: "s1", Phase: timer.PhaseSilence, CurrentRepeat: 1, CueStartedAt: t0}
	active := silenceCue(cfg, 1)

	good := clock.Snapshot(state, cfg, active, t0.Add(time.Minute), nil)
	require.Equal(t, int64(60000), good.PositionMs)

	stale := clock.Snapshot(state, cfg, active, t0.Add(2*time.Minute), errors.New("device torn down"))
	assert.Equal(t, good, stale)

	fresh := clock.Snapshot(state, cfg, active, t0.Add(2*time.Minute), nil)
	assert.Equal(t, int64(120000), fresh.PositionMs)

	clock.Reset()
	first := clock.Snapshot(state, cfg, active, t0.Add(3*time.Minute), errors.New("device torn down"))
	assert.Equal(t, int64(180000), first.PositionMs)
}

func TestSnapshotRemaining(t *testing.T) {
	s := Snapshot{PositionMs: 1000, DurationMs: 5000, ElapsedMs: 100, TotalMs: 50}
	assert.Equal(t, int64(4000), s.RemainingMs())
	assert.Equal(t, int64(0), s.SessionRemainingMs())

	s = Snapshot{PositionMs: Indeterminate, DurationMs: Indeterminate}
	assert.Equal(t, Indeterminate, s.RemainingMs())
}
