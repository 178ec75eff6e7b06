// Package asset maps symbolic cue references to playable units.
package asset

import (
	"fmt"
	"sort"
	"time"

	"github.com/osa030/meditimer/internal/domain/timer"
)

// Asset reference names.
const (
	RefSilence      = "silence"
	RefClick        = "click"
	bellPrefix      = "bell-"
	preparePrefix   = "prepare-"
	SpeechRefPrefix = "tts:"
)

// Entry is one sound asset known to the library.
type Entry struct {
	File     string
	Duration time.Duration
}

// Library maps asset references to sound files.
type Library map[string]Entry

// BellRef returns the asset reference for a bell sound.
func BellRef(sound timer.BellSound) string {
	return bellPrefix + string(sound)
}

// PrepareRef returns the asset reference for a preparation style.
func PrepareRef(p timer.Preparation) string {
	return preparePrefix + string(p)
}

// SpeechRef returns the asset reference for a spoken phrase.
func SpeechRef(phrase string) string {
	return SpeechRefPrefix + phrase
}

// DefaultLibrary returns the built-in asset set.
// bell-none and bell-spoken have no entry.
func DefaultLibrary() Library {
	return Library{
		BellRef(timer.BellTiny):             {File: "bell_tiny.ogg", Duration: 4 * time.Second},
		BellRef(timer.BellSmall):            {File: "bell_small.ogg", Duration: 6 * time.Second},
		BellRef(timer.BellLarge):            {File: "bell_large.ogg", Duration: 12 * time.Second},
		RefClick:                            {File: "click.ogg", Duration: time.Second},
		PrepareRef(timer.PreparationClick):  {File: "prepare_click.ogg", Duration: 10 * time.Second},
		PrepareRef(timer.PreparationMelody): {File: "prepare_melody.ogg", Duration: 10 * time.Second},
		PrepareRef(timer.PreparationGong):   {File: "prepare_gong.ogg", Duration: 20 * time.Second},
	}
}

// Merge returns a copy of l with entries from override replacing or adding to it.
// Override entries with an empty file keep the base file.
func (l Library) Merge(override Library) Library {
	merged := make(Library, len(l)+len(override))
	for ref, e := range l {
		merged[ref] = e
	}
	for ref, e := range override {
		base := merged[ref]
		if e.File == "" {
			e.File = base.File
		}
		if e.Duration <= 0 {
			e.Duration = base.Duration
		}
		merged[ref] = e
	}
	return merged
}

// Refs returns the sorted asset references.
func (l Library) Refs() []string {
	refs := make([]string, 0, len(l))
	for ref := range l {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// String returns a human-readable description of an entry.
func (e Entry) String() string {
	return fmt.Sprintf("%s (%s)", e.File, e.Duration)
}
