// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/meditimer/internal/app/asset"
	"github.com/osa030/meditimer/internal/domain/timer"
)

// EnvPrefix is the prefix of environment variables that override file values.
const EnvPrefix = "MEDITIMER_"

// Preference sources.
const (
	PrefsFromConfig = "config"
	PrefsFromFile   = "file"
	PrefsFromRedis  = "redis"
)

// Player backends.
const (
	BackendTimed = "timed"
	BackendExec  = "exec"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Control     ControlConfig     `yaml:"control" envPrefix:"CONTROL_"`
	Preferences PreferencesConfig `yaml:"preferences" envPrefix:"PREFERENCES_"`
	Session     SessionConfig     `yaml:"session"`
	Player      PlayerConfig      `yaml:"player" envPrefix:"PLAYER_"`
	Assets      AssetsConfig      `yaml:"assets" envPrefix:"ASSETS_"`
	Speech      SpeechConfig      `yaml:"speech" envPrefix:"SPEECH_"`
	Display     DisplayConfig     `yaml:"display"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" env:"ADDR" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ControlConfig represents remote control configuration.
type ControlConfig struct {
	Token string `yaml:"token" env:"TOKEN"`
}

// PreferencesConfig selects where session preferences are read from.
type PreferencesConfig struct {
	Source string      `yaml:"source" env:"SOURCE" default:"config" validate:"oneof=config file redis"`
	File   string      `yaml:"file" env:"FILE" validate:"required_if=Source file"`
	Redis  RedisConfig `yaml:"redis" envPrefix:"REDIS_"`
}

// RedisConfig represents the Redis preference store.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR" default:"localhost:6379"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB" validate:"gte=0"`
	Key      string `yaml:"key" env:"KEY" default:"meditimer:prefs"`
}

// SessionConfig holds the session defaults used when no preference is stored.
type SessionConfig struct {
	IntervalMinutes   int    `yaml:"interval_minutes" default:"15" validate:"gt=0"`
	RepeatCount       int    `yaml:"repeat_count" default:"2" validate:"gt=0"`
	BellSound         string `yaml:"bell_sound" default:"small" validate:"oneof=tiny small large none spoken"`
	LastBellSound     string `yaml:"last_bell_sound" validate:"omitempty,oneof=tiny small large none spoken"`
	ClickPattern      *int   `yaml:"click_pattern" default:"1" validate:"required,gte=0,lte=6"`
	Preparation       string `yaml:"preparation" default:"click" validate:"oneof=none click melody gong"`
	AnnounceViaSpeech bool   `yaml:"announce_via_speech"`
}

// PlayerConfig represents cue playback configuration.
type PlayerConfig struct {
	Backend              string `yaml:"backend" env:"BACKEND" default:"timed" validate:"oneof=timed exec"`
	AudioCommand         string `yaml:"audio_command" env:"AUDIO_COMMAND"`   // e.g. "paplay {file}"
	SpeechCommand        string `yaml:"speech_command" env:"SPEECH_COMMAND"` // e.g. "espeak-ng -v {lang} {text}"
	SpeechWordsPerMinute int    `yaml:"speech_words_per_minute" default:"150" validate:"gt=0"`
	TickMs               int    `yaml:"tick_ms" default:"100" validate:"gte=10,lte=1000"`
}

// AssetsConfig represents the sound asset library.
type AssetsConfig struct {
	Dir     string                 `yaml:"dir" env:"DIR"`
	Entries map[string]AssetConfig `yaml:"entries" validate:"dive"`
}

// AssetConfig overrides one library entry.
type AssetConfig struct {
	File       string `yaml:"file"`
	DurationMs int    `yaml:"duration_ms" validate:"gte=0"`
}

// SpeechConfig represents spoken announcement configuration.
type SpeechConfig struct {
	Language string `yaml:"language" env:"LANGUAGE" default:"en" validate:"required,bcp47_language_tag"`
}

// DisplayConfig represents progress display configuration.
type DisplayConfig struct {
	RefreshMs int `yaml:"refresh_ms" default:"500" validate:"gte=100,lte=5000"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return parse(data)
}

// LoadOrDefault loads the configuration from path, or builds it from
// environment variables and defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return parse(nil)
	}
	return Load(path)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "failed to parse environment")
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Player.Backend == BackendExec && strings.TrimSpace(c.Player.AudioCommand) == "" {
		return errors.New("player.audio_command is required for the exec backend")
	}

	// The session defaults must form a valid session on their own.
	if err := c.SessionDefaults().Validate(); err != nil {
		return err
	}
	return nil
}

// RequireControlToken reports an error when no control token is configured.
func (c *Config) RequireControlToken() error {
	if c.Control.Token == "" {
		return errors.New("control.token is required (or set " + EnvPrefix + "CONTROL_TOKEN)")
	}
	return nil
}

// SessionDefaults returns the session section as a session config.
func (c *Config) SessionDefaults() timer.Config {
	s := c.Session
	click := 0
	if s.ClickPattern != nil {
		click = *s.ClickPattern
	}
	return timer.Config{
		IntervalMinutes:   s.IntervalMinutes,
		RepeatCount:       s.RepeatCount,
		BellSound:         timer.BellSound(s.BellSound),
		LastBellSound:     timer.BellSound(s.LastBellSound),
		ClickPattern:      click,
		Preparation:       timer.Preparation(s.Preparation),
		AnnounceViaSpeech: s.AnnounceViaSpeech,
	}.Normalize()
}

// Library returns the default asset library with the configured overrides.
func (c *Config) Library() asset.Library {
	overrides := make(asset.Library, len(c.Assets.Entries))
	for ref, e := range c.Assets.Entries {
		overrides[ref] = asset.Entry{
			File:     e.File,
			Duration: time.Duration(e.DurationMs) * time.Millisecond,
		}
	}
	return asset.DefaultLibrary().Merge(overrides)
}

// RefreshInterval returns the display refresh interval.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Display.RefreshMs) * time.Millisecond
}

// Tick returns the player polling interval.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Player.TickMs) * time.Millisecond
}
