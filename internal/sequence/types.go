package sequence

import (
	"time"

	"github.com/coreman2200/openscb/internal/event"
)

// DefaultFrameName is used when a frame is added without a name.
const DefaultFrameName = "Frm"

// EventKind enumerates sequence notifications.
type EventKind int

const (
	SequenceChanged EventKind = iota
	FrameChanged
	SelectionChanged
	HighlightChanged
	VisibilityChanged
)

func (k EventKind) String() string {
	switch k {
	case SequenceChanged:
		return "sequence_changed"
	case FrameChanged:
		return "frame_changed"
	case SelectionChanged:
		return "selection_changed"
	case HighlightChanged:
		return "highlight_changed"
	case VisibilityChanged:
		return "visibility_changed"
	}
	return "unknown"
}

// Event is delivered to sequence subscribers. Frame is set for
// FrameChanged, Output for VisibilityChanged.
type Event struct {
	Kind   EventKind
	Frame  *Frame
	Output int
}

// Frame is a named instant with target positions for a subset of outputs.
type Frame struct {
	seq   *Sequence
	name  string
	time  float64
	point map[int]float64
	dirty bool
}

// Sequence is a time ordered list of frames. It is not safe for
// concurrent use.
type Sequence struct {
	desc        string
	frames      []*Frame
	visible     map[int]bool
	selection   []*Frame
	highlighted *Frame
	events      event.List[Event]
}

// PlayerState enumerates playback states.
type PlayerState string

const (
	Stopped PlayerState = "stopped"
	Playing PlayerState = "playing"
)

// Hooks connect the player to whatever moves the outputs.
type Hooks struct {
	// LoadFrame moves the outputs to points, arriving after remaining.
	LoadFrame func(remaining time.Duration, points map[int]float64) error
	// DisableFrame hands the outputs back to goal tracking.
	DisableFrame func() error
	StateChanged func(s PlayerState)
}

type keyframe struct {
	at     time.Duration
	points map[int]float64
}

// Player walks a snapshot of a sequence against the wall clock.
type Player struct {
	State PlayerState

	frames []keyframe
	loop   bool
	start  time.Time
	next   time.Duration

	hooks Hooks
}
