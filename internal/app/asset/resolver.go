package asset

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/meditimer/internal/domain/timer"
)

// ErrUnknownAssetKind is returned when a cue reference has no playable asset.
var ErrUnknownAssetKind = errors.New("unknown asset kind")

// Unit is a concrete playable resource.
type Unit struct {
	Ref      string
	Kind     timer.CueKind
	Source   string        // Absolute file path, or the phrase for speech. Empty for silence.
	Speech   bool          // Source is text to speak
	Duration time.Duration // 0 when only known at runtime
}

// IsSilence reports whether the unit plays nothing for its duration.
func (u Unit) IsSilence() bool {
	return u.Source == "" && !u.Speech
}

// Resolver maps cues to playable units.
type Resolver struct {
	dir     string
	library Library
}

// NewResolver creates a new resolver over library, with relative files rooted at dir.
func NewResolver(dir string, library Library) *Resolver {
	return &Resolver{
		dir:     dir,
		library: library,
	}
}

// Library returns the resolver's library.
func (r *Resolver) Library() Library {
	return r.library
}

// Resolve returns the playable unit for a cue.
// References that do not match the cue kind, or that have no library entry,
// fail with ErrUnknownAssetKind.
func (r *Resolver) Resolve(cue timer.Cue) (Unit, error) {
	unit := Unit{Ref: cue.AssetRef, Kind: cue.Kind}

	switch cue.Kind {
	case timer.CueIntervalSilence:
		if cue.AssetRef != RefSilence || cue.ExpectedDuration <= 0 {
			return Unit{}, r.unknown(cue)
		}
		unit.Duration = cue.ExpectedDuration
		return unit, nil

	case timer.CueAnnouncement:
		phrase, ok := strings.CutPrefix(cue.AssetRef, SpeechRefPrefix)
		if !ok || strings.TrimSpace(phrase) == "" {
			return Unit{}, r.unknown(cue)
		}
		unit.Source = phrase
		unit.Speech = true
		return unit, nil

	case timer.CuePreparation:
		if !strings.HasPrefix(cue.AssetRef, preparePrefix) {
			return Unit{}, r.unknown(cue)
		}
	case timer.CueClickIntro:
		if cue.AssetRef != RefClick {
			return Unit{}, r.unknown(cue)
		}
	case timer.CueBell:
		if !strings.HasPrefix(cue.AssetRef, bellPrefix) {
			return Unit{}, r.unknown(cue)
		}
	default:
		return Unit{}, r.unknown(cue)
	}

	entry, ok := r.library[cue.AssetRef]
	if !ok || entry.File == "" {
		return Unit{}, r.unknown(cue)
	}
	unit.Source = r.path(entry.File)
	unit.Duration = entry.Duration
	if cue.ExpectedDuration > 0 {
		unit.Duration = cue.ExpectedDuration
	}
	return unit, nil
}

// ResolveRef resolves a bare bell or click reference outside of a session.
func (r *Resolver) ResolveRef(kind timer.CueKind, ref string) (Unit, error) {
	return r.Resolve(timer.Cue{Kind: kind, AssetRef: ref})
}

func (r *Resolver) path(file string) string {
	if filepath.IsAbs(file) || r.dir == "" {
		return file
	}
	return filepath.Join(r.dir, file)
}

func (r *Resolver) unknown(cue timer.Cue) error {
	return errors.Wrapf(ErrUnknownAssetKind, "kind=%s ref=%q", cue.Kind, cue.AssetRef)
}
