package sequencer

import "github.com/osa030/meditimer/internal/domain/timer"

// EventType represents a sequencer event type.
type EventType int

const (
	EventCueStarted      EventType = iota // Cue dispatched to the player
	EventCueCompleted                     // Cue finished playing
	EventCueSkipped                       // Cue could not be resolved or played
	EventStateChanged                     // Phase changed or session paused/resumed
	EventRepeatCompleted                  // Signaling group of a repeat finished
	EventFinished                         // All repeats completed
	EventStopped                          // Session stopped by request
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventCueStarted:
		return "cue_started"
	case EventCueCompleted:
		return "cue_completed"
	case EventCueSkipped:
		return "cue_skipped"
	case EventStateChanged:
		return "state_changed"
	case EventRepeatCompleted:
		return "repeat_completed"
	case EventFinished:
		return "finished"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event represents a sequencer event.
type Event struct {
	Type      EventType
	SessionID string
	Cue       *timer.Cue  // Cue the event refers to (nil for some events)
	Phase     timer.Phase // Phase after the event
	Repeat    int         // Current repeat after the event
	Paused    bool
	Err       error // Cause of a skipped cue
}
