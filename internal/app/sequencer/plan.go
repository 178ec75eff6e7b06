package sequencer

import (
	"github.com/osa030/meditimer/internal/app/asset"
	"github.com/osa030/meditimer/internal/domain/timer"
)

// Phrasebook renders spoken announcements.
type Phrasebook interface {
	Prepare() string
	Elapsed(minutes int, final bool) string
}

// ClickCount returns how many lead-in clicks precede the signal of repeat.
//
// A pattern of 1 plays a two-click lead-in before the final signal only.
// A pattern of n > 1 cycles over the zero-based repeat ordinal, with a zero
// remainder mapped to the full group: n=2 gives 2, 1, 2, 1, ... This is
// deliberately not repeat%n, which would give 1, 2, 1, 2, ... and open the
// session with a single click.
func ClickCount(cfg timer.Config, repeat int) int {
	switch {
	case repeat <= 0 || cfg.ClickPattern <= 0:
		return 0
	case cfg.ClickPattern == 1:
		if cfg.IsFinal(repeat) {
			return 2
		}
		return 0
	default:
		n := (repeat - 1) % cfg.ClickPattern
		if n == 0 {
			n = cfg.ClickPattern
		}
		return n
	}
}

// LeadCue returns the timed cue that opens repeat: the preparation segment
// for repeat 0 and the interval silence otherwise.
func LeadCue(cfg timer.Config, repeat int) timer.Cue {
	if repeat == 0 {
		return timer.Cue{
			Kind:             timer.CuePreparation,
			AssetRef:         asset.PrepareRef(cfg.Preparation),
			ExpectedDuration: cfg.PrepDuration(),
			RepeatIndex:      0,
		}
	}
	return timer.Cue{
		Kind:             timer.CueIntervalSilence,
		AssetRef:         asset.RefSilence,
		ExpectedDuration: cfg.Interval(),
		RepeatIndex:      repeat,
	}
}

// SignalCues returns the signaling group played after the lead cue of repeat.
// The group may be empty.
func SignalCues(cfg timer.Config, repeat int, phrases Phrasebook) []timer.Cue {
	cfg = cfg.Normalize()
	var cues []timer.Cue

	if repeat == 0 {
		if cfg.AnnounceViaSpeech || cfg.BellSound == timer.BellSpoken {
			cues = append(cues, timer.Cue{
				Kind:     timer.CueAnnouncement,
				AssetRef: asset.SpeechRef(phrases.Prepare()),
			})
		}
		return number(cues, 0)
	}

	for i := 0; i < ClickCount(cfg, repeat); i++ {
		cues = append(cues, timer.Cue{Kind: timer.CueClickIntro, AssetRef: asset.RefClick})
	}
	if cfg.SpeaksAt(repeat) {
		phrase := phrases.Elapsed(repeat*cfg.IntervalMinutes, cfg.IsFinal(repeat))
		cues = append(cues, timer.Cue{Kind: timer.CueAnnouncement, AssetRef: asset.SpeechRef(phrase)})
	} else {
		cues = append(cues, timer.Cue{Kind: timer.CueBell, AssetRef: asset.BellRef(cfg.SoundFor(repeat))})
	}
	return number(cues, repeat)
}

// Segment returns the full cue run for repeat: the lead cue followed by its
// signaling group.
func Segment(cfg timer.Config, repeat int, phrases Phrasebook) []timer.Cue {
	cues := append([]timer.Cue{LeadCue(cfg, repeat)}, SignalCues(cfg, repeat, phrases)...)
	return number(cues, repeat)
}

// Plan returns every cue of a session in playing order.
func Plan(cfg timer.Config, phrases Phrasebook) []timer.Cue {
	var cues []timer.Cue
	for repeat := cfg.FirstRepeat(); repeat <= cfg.RepeatCount; repeat++ {
		cues = append(cues, Segment(cfg, repeat, phrases)...)
	}
	return cues
}

func number(cues []timer.Cue, repeat int) []timer.Cue {
	for i := range cues {
		cues[i].Ordinal = i
		cues[i].RepeatIndex = repeat
	}
	return cues
}
