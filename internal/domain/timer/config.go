// Package timer provides the meditation session domain types.
package timer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// OneMinute is the length of one interval minute.
const OneMinute = time.Minute

// BellSound identifies the sound that marks the end of an interval.
type BellSound string

const (
	BellTiny   BellSound = "tiny"
	BellSmall  BellSound = "small"
	BellLarge  BellSound = "large"
	BellNone   BellSound = "none"
	BellSpoken BellSound = "spoken" // Announce the elapsed time instead of ringing
)

// Preparation identifies the lead-in played before the first interval.
type Preparation string

const (
	PreparationNone   Preparation = "none"
	PreparationClick  Preparation = "click"
	PreparationMelody Preparation = "melody"
	PreparationGong   Preparation = "gong"
)

// MaxClickPattern is the largest supported click group size.
const MaxClickPattern = 6

// Config is the immutable configuration of one session.
type Config struct {
	IntervalMinutes   int         `yaml:"interval_minutes" mapstructure:"interval_minutes" validate:"gt=0"`
	RepeatCount       int         `yaml:"repeat_count" mapstructure:"repeat_count" validate:"gt=0"`
	BellSound         BellSound   `yaml:"bell_sound" mapstructure:"bell_sound" validate:"oneof=tiny small large none spoken"`
	LastBellSound     BellSound   `yaml:"last_bell_sound" mapstructure:"last_bell_sound" validate:"omitempty,oneof=tiny small large none spoken"`
	ClickPattern      int         `yaml:"click_pattern" mapstructure:"click_pattern" validate:"gte=0,lte=6"`
	Preparation       Preparation `yaml:"preparation" mapstructure:"preparation" validate:"oneof=none click melody gong"`
	AnnounceViaSpeech bool        `yaml:"announce_via_speech" mapstructure:"announce_via_speech"`
}

// Normalize returns a copy with unset optional fields filled in.
// LastBellSound falls back to BellSound.
func (c Config) Normalize() Config {
	if c.LastBellSound == "" {
		c.LastBellSound = c.BellSound
	}
	return c
}

// Validate validates the configuration.
func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid session config")
	}
	return nil
}

// HasPreparation reports whether the session starts with a preparation segment.
func (c Config) HasPreparation() bool {
	return c.Preparation != "" && c.Preparation != PreparationNone
}

// PrepDuration returns the nominal length of the preparation segment.
func (c Config) PrepDuration() time.Duration {
	switch c.Preparation {
	case PreparationGong:
		return 20 * time.Second
	case PreparationClick, PreparationMelody:
		return 10 * time.Second
	default:
		return 0
	}
}

// Interval returns the length of one silence interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * OneMinute
}

// TotalDuration returns the nominal length of the whole session.
func (c Config) TotalDuration() time.Duration {
	return c.PrepDuration() + time.Duration(c.RepeatCount)*c.Interval()
}

// FirstRepeat returns the repeat index a session starts at.
// Repeat 0 is the preparation segment.
func (c Config) FirstRepeat() int {
	if c.HasPreparation() {
		return 0
	}
	return 1
}

// IsFinal reports whether repeat is the last one of the session.
func (c Config) IsFinal(repeat int) bool {
	return repeat == c.RepeatCount
}

// SoundFor returns the bell sound that ends the given repeat.
func (c Config) SoundFor(repeat int) BellSound {
	c = c.Normalize()
	if c.IsFinal(repeat) {
		return c.LastBellSound
	}
	return c.BellSound
}

// SpeaksAt reports whether the signal of the given repeat is a spoken announcement.
func (c Config) SpeaksAt(repeat int) bool {
	return c.AnnounceViaSpeech || c.SoundFor(repeat) == BellSpoken
}

// SegmentStart returns the nominal offset from session start at which the lead
// segment of repeat begins.
func (c Config) SegmentStart(repeat int) time.Duration {
	if repeat <= 0 {
		return 0
	}
	return c.PrepDuration() + time.Duration(repeat-1)*c.Interval()
}

// SegmentLength returns the nominal length of the lead segment of repeat.
func (c Config) SegmentLength(repeat int) time.Duration {
	if repeat <= 0 {
		return c.PrepDuration()
	}
	return c.Interval()
}

// NextSegmentLength returns the nominal length of the first segment a fresh
// session would play.
func (c Config) NextSegmentLength() time.Duration {
	return c.SegmentLength(c.FirstRepeat())
}
