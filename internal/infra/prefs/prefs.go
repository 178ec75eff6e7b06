// Package prefs loads persisted session preferences.
//
// Preferences are flat string-keyed values in the pref_* namespace, stored in
// a YAML file, a Redis hash, or the application config.
package prefs

import (
	"context"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/meditimer/internal/domain/timer"
)

// ErrPreferencesUnavailable is returned when a store cannot be read.
var ErrPreferencesUnavailable = errors.New("preferences unavailable")

// Preference keys.
const (
	KeyInterval    = "pref_interval"
	KeyRepeat      = "pref_repeat"
	KeySound       = "pref_sound"
	KeyEndingBell  = "pref_ending_bell"
	KeyClick       = "pref_click"
	KeyPreparation = "pref_preparation"
	KeyTTSMarker   = "pref_ttsmarker"
)

// spokenPrefix marks sound values that select a spoken announcement.
const spokenPrefix = "tts"

// Store loads raw preference values.
type Store interface {
	Load(ctx context.Context) (map[string]any, error)
}

// Preferences is the decoded form of the pref_* values.
type Preferences struct {
	Interval    int    `mapstructure:"pref_interval"`
	Repeat      int    `mapstructure:"pref_repeat"`
	Sound       string `mapstructure:"pref_sound"`
	EndingBell  string `mapstructure:"pref_ending_bell"`
	Click       int    `mapstructure:"pref_click"`
	Preparation string `mapstructure:"pref_preparation"`
	TTSMarker   bool   `mapstructure:"pref_ttsmarker"`
}

// FromConfig returns the preferences equivalent of cfg.
// An ending bell equal to the regular bell is left empty so that it keeps
// following the regular bell.
func FromConfig(cfg timer.Config) Preferences {
	ending := string(cfg.LastBellSound)
	if cfg.LastBellSound == cfg.BellSound {
		ending = ""
	}
	return Preferences{
		Interval:    cfg.IntervalMinutes,
		Repeat:      cfg.RepeatCount,
		Sound:       string(cfg.BellSound),
		EndingBell:  ending,
		Click:       cfg.ClickPattern,
		Preparation: string(cfg.Preparation),
		TTSMarker:   cfg.AnnounceViaSpeech,
	}
}

// Decode overlays values on base and returns the resulting session config.
// Keys absent from values keep the base setting. Values are weakly typed, so
// "15" and 15 both decode to an interval of 15 minutes.
func Decode(values map[string]any, base timer.Config) (timer.Config, error) {
	p := FromConfig(base)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return timer.Config{}, errors.Wrap(err, "failed to create preference decoder")
	}
	if err := decoder.Decode(values); err != nil {
		return timer.Config{}, errors.Wrap(err, "failed to decode preferences")
	}

	cfg := p.Config()
	if err := cfg.Validate(); err != nil {
		return timer.Config{}, err
	}
	return cfg, nil
}

// Config converts the preferences to a session config.
func (p Preferences) Config() timer.Config {
	sound := parseSound(p.Sound)
	ending := sound
	if strings.TrimSpace(p.EndingBell) != "" {
		ending = parseSound(p.EndingBell)
	}

	return timer.Config{
		IntervalMinutes:   p.Interval,
		RepeatCount:       p.Repeat,
		BellSound:         sound,
		LastBellSound:     ending,
		ClickPattern:      p.Click,
		Preparation:       parsePreparation(p.Preparation),
		AnnounceViaSpeech: p.TTSMarker,
	}
}

func parseSound(s string) timer.BellSound {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, spokenPrefix) {
		return timer.BellSpoken
	}
	return timer.BellSound(s)
}

// parsePreparation accepts both style names and the legacy on/off flag,
// which selected the gong.
func parsePreparation(s string) timer.Preparation {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "clicks":
		return timer.PreparationClick
	case "":
		return timer.PreparationNone
	}
	if on, err := strconv.ParseBool(s); err == nil {
		if on {
			return timer.PreparationGong
		}
		return timer.PreparationNone
	}
	return timer.Preparation(s)
}
