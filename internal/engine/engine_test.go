package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/meditimer/internal/app/player"
	"github.com/osa030/meditimer/internal/domain/timer"
	"github.com/osa030/meditimer/internal/infra/config"
)

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meditimer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNewDefaults(t *testing.T) {
	e, err := New(loadConfig(t, "{}\n"))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "en", e.Phrases.Language())
	require.NoError(t, e.Ping(context.Background()))

	snap := e.Session.Snapshot()
	assert.Equal(t, timer.PhaseIdle, snap.Phase)
	assert.Equal(t, 2, snap.TotalRepeats)
	assert.Equal(t, int64(10000), snap.DurationMs, "click preparation comes first")
}

func TestNewFilePreferences(t *testing.T) {
	prefsPath := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(prefsPath, []byte("pref_interval: \"25\"\npref_repeat: \"4\"\n"), 0o644))

	e, err := New(loadConfig(t, "preferences:\n  source: file\n  file: "+prefsPath+"\n"))
	require.NoError(t, err)
	defer e.Close()

	cfg, err := e.Session.LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.IntervalMinutes)
	assert.Equal(t, 4, cfg.RepeatCount)
}

func TestNewPlayer(t *testing.T) {
	timed := loadConfig(t, "{}\n")
	_, ok := NewPlayer(timed, "en").(*player.Timed)
	assert.True(t, ok)

	exec := loadConfig(t, "player:\n  backend: exec\n  audio_command: paplay {file}\n")
	_, ok = NewPlayer(exec, "en").(*player.Exec)
	assert.True(t, ok)
}

func TestNewRedisClosesClient(t *testing.T) {
	e, err := New(loadConfig(t, "preferences:\n  source: redis\n  redis:\n    addr: 127.0.0.1:1\n"))
	require.NoError(t, err)
	assert.Len(t, e.closers, 1)
	assert.NoError(t, e.Close())
}
