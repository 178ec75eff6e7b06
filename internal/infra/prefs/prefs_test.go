package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/meditimer/internal/domain/timer"
)

func defaultSession() timer.Config {
	return timer.Config{
		IntervalMinutes: 15,
		RepeatCount:     2,
		BellSound:       timer.BellSmall,
		ClickPattern:    1,
		Preparation:     timer.PreparationClick,
	}.Normalize()
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		want    func(*timer.Config)
		wantErr bool
	}{
		{
			name:   "empty keeps defaults",
			values: map[string]any{},
			want:   func(c *timer.Config) {},
		},
		{
			name: "string values",
			values: map[string]any{
				KeyInterval: "20", KeyRepeat: "3", KeySound: "large", KeyClick: "2", KeyPreparation: "gong",
			},
			want: func(c *timer.Config) {
				c.IntervalMinutes = 20
				c.RepeatCount = 3
				c.BellSound = timer.BellLarge
				c.LastBellSound = timer.BellLarge
				c.ClickPattern = 2
				c.Preparation = timer.PreparationGong
			},
		},
		{
			name:   "tts sound is spoken",
			values: map[string]any{KeySound: "tts_en"},
			want: func(c *timer.Config) {
				c.BellSound = timer.BellSpoken
				c.LastBellSound = timer.BellSpoken
			},
		},
		{
			name:   "distinct ending bell",
			values: map[string]any{KeyEndingBell: "tiny"},
			want:   func(c *timer.Config) { c.LastBellSound = timer.BellTiny },
		},
		{
			name:   "legacy clicks preparation",
			values: map[string]any{KeyPreparation: "clicks"},
			want:   func(c *timer.Config) {},
		},
		{
			name:   "legacy preparation flag off",
			values: map[string]any{KeyPreparation: false},
			want:   func(c *timer.Config) { c.Preparation = timer.PreparationNone },
		},
		{
			name:   "legacy preparation flag on",
			values: map[string]any{KeyPreparation: "true"},
			want:   func(c *timer.Config) { c.Preparation = timer.PreparationGong },
		},
		{
			name:   "tts marker",
			values: map[string]any{KeyTTSMarker: "true", KeyClick: 0},
			want: func(c *timer.Config) {
				c.AnnounceViaSpeech = true
				c.ClickPattern = 0
			},
		},
		{
			name:    "invalid interval",
			values:  map[string]any{KeyInterval: "0"},
			wantErr: true,
		},
		{
			name:    "not a number",
			values:  map[string]any{KeyRepeat: "many"},
			wantErr: true,
		},
		{
			name:    "unknown sound",
			values:  map[string]any{KeySound: "gong"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.values, defaultSession())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			want := defaultSession()
			tt.want(&want)
			assert.Equal(t, want, got)
		})
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store := FileStore{Path: filepath.Join(dir, "prefs.yaml")}

	values, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, values)

	require.NoError(t, store.Save(map[string]any{KeyInterval: "25", KeyTTSMarker: true}))
	values, err = store.Load(context.Background())
	require.NoError(t, err)

	cfg, err := Decode(values, defaultSession())
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.IntervalMinutes)
	assert.True(t, cfg.AnnounceViaSpeech)

	require.NoError(t, os.WriteFile(store.Path, []byte("pref_interval: [unclosed"), 0o644))
	_, err = store.Load(context.Background())
	assert.True(t, errors.Is(err, ErrPreferencesUnavailable))
}

type fakeHash struct {
	fields map[string]string
	err    error
	key    string
}

func (f *fakeHash) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	f.key = key
	return redis.NewMapStringStringResult(f.fields, f.err)
}

func (f *fakeHash) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.key = key
	return redis.NewIntResult(int64(len(values)), f.err)
}

func TestRedisStore(t *testing.T) {
	hash := &fakeHash{fields: map[string]string{KeyInterval: "30", KeySound: "tts", KeyEndingBell: ""}}
	store := newRedisStore(hash, "")

	values, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultRedisKey, hash.key)

	cfg, err := Decode(values, defaultSession())
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.IntervalMinutes)
	assert.Equal(t, timer.BellSpoken, cfg.BellSound)
	assert.Equal(t, timer.BellSpoken, cfg.LastBellSound)

	require.NoError(t, store.Save(context.Background(), map[string]any{KeyRepeat: "4"}))
}

func TestRedisStoreUnavailable(t *testing.T) {
	store := newRedisStore(&fakeHash{err: errors.New("connection refused")}, "custom")

	_, err := store.Load(context.Background())
	assert.True(t, errors.Is(err, ErrPreferencesUnavailable))
}

func TestStaticStoreCopies(t *testing.T) {
	store := StaticStore{KeyInterval: 10}
	values, err := store.Load(context.Background())
	require.NoError(t, err)
	values[KeyInterval] = 99
	assert.Equal(t, 10, store[KeyInterval])
}
