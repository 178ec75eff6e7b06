package timer

import "time"

// CueKind represents the kind of a playable cue.
type CueKind int

const (
	CuePreparation     CueKind = iota // Lead-in before the first interval
	CueIntervalSilence                // Silent interval
	CueClickIntro                     // Single click of a click group
	CueBell                           // Bell that ends an interval
	CueAnnouncement                   // Spoken phrase
)

// String returns the string representation of the cue kind.
func (k CueKind) String() string {
	switch k {
	case CuePreparation:
		return "preparation"
	case CueIntervalSilence:
		return "interval_silence"
	case CueClickIntro:
		return "click_intro"
	case CueBell:
		return "bell"
	case CueAnnouncement:
		return "announcement"
	default:
		return "unknown"
	}
}

// IsSignal reports whether cues of this kind belong to the signaling phase.
func (k CueKind) IsSignal() bool {
	return k == CueClickIntro || k == CueBell || k == CueAnnouncement
}

// Cue is one playable unit produced by the sequencer.
type Cue struct {
	Kind             CueKind
	AssetRef         string        // Symbolic asset name, e.g. "bell-small" or "tts:15 minutes "
	ExpectedDuration time.Duration // 0 when only known at runtime (speech)
	Ordinal          int           // Position within the current repeat
	RepeatIndex      int           // 0 is the preparation segment
}
