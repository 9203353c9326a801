// Package touch recognises multi-finger touch-screen gestures: one-finger edge swipes,
// two-finger pinches and three-finger slides. Pointer samples are fed one at a time
// into Detector, normally through a Runner that moves the work off the input thread.
package touch

import "fmt"

// PointerAction is the raw action of one pointer sample.
type PointerAction int

const (
	ActionDown PointerAction = iota
	ActionMove
	ActionUp
	ActionCancel
)

func (a PointerAction) String() string {
	switch a {
	case ActionDown:
		return "down"
	case ActionMove:
		return "move"
	case ActionUp:
		return "up"
	case ActionCancel:
		return "cancel"
	}
	return fmt.Sprintf("PointerAction(%d)", int(a))
}

// PointerSample is one event for one contact, in screen pixels.
type PointerSample struct {
	PointerID int
	Action    PointerAction
	X, Y      int
	DownTime  int64 // microseconds
}

// FingerEvent is a pointer action interpreted against the live finger count.
type FingerEvent int

const (
	FirstFingerDown FingerEvent = iota
	OtherFingerDown
	OtherFingerUp
	AllFingersUp
	FingerMove
	FingerCancel
)

func (e FingerEvent) String() string {
	switch e {
	case FirstFingerDown:
		return "FIRST_FINGER_DOWN"
	case OtherFingerDown:
		return "OTHER_FINGER_DOWN"
	case OtherFingerUp:
		return "OTHER_FINGER_UP"
	case AllFingersUp:
		return "ALL_FINGERS_UP"
	case FingerMove:
		return "MOVE"
	case FingerCancel:
		return "CANCEL"
	}
	return fmt.Sprintf("FingerEvent(%d)", int(e))
}

// State is the state of the multi-touch detector.
type State int

const (
	StateIdle State = iota
	StateOneFingerDown
	StateOneFingerMove
	StateSwipe
	StateTwoFingersDown
	StateTwoFingersMove
	StatePinch
	StateThreeFingersDown
	StateThreeFingersMove
	StateSlide
	StateEnd
	StateError
)

var stateNames = [...]string{
	StateIdle:             "IDLE",
	StateOneFingerDown:    "ONE_FINGER_DOWN",
	StateOneFingerMove:    "ONE_FINGER_MOVE",
	StateSwipe:            "SWIPE",
	StateTwoFingersDown:   "TWO_FINGERS_DOWN",
	StateTwoFingersMove:   "TWO_FINGERS_MOVE",
	StatePinch:            "PINCH",
	StateThreeFingersDown: "THREE_FINGERS_DOWN",
	StateThreeFingersMove: "THREE_FINGERS_MOVE",
	StateSlide:            "SLIDE",
	StateEnd:              "END",
	StateError:            "ERROR",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config holds screen geometry and recognition thresholds.
// Boundaries are fractions of the screen dimension.
type Config struct {
	ScreenWidth         int     `toml:"screen_width" yaml:"screen_width" json:"screen_width"`
	ScreenHeight        int     `toml:"screen_height" yaml:"screen_height" json:"screen_height"`
	SwipeDistance       float64 `toml:"swipe_distance" yaml:"swipe_distance" json:"swipe_distance"`
	PinchScaleDeviation float64 `toml:"pinch_scale_deviation" yaml:"pinch_scale_deviation" json:"pinch_scale_deviation"`
	PinchAngle          float64 `toml:"pinch_angle" yaml:"pinch_angle" json:"pinch_angle"`
	SlideDistance       float64 `toml:"slide_distance" yaml:"slide_distance" json:"slide_distance"`
	LeftBoundary        float64 `toml:"left_boundary" yaml:"left_boundary" json:"left_boundary"`
	RightBoundary       float64 `toml:"right_boundary" yaml:"right_boundary" json:"right_boundary"`
	DownBoundary        float64 `toml:"down_boundary" yaml:"down_boundary" json:"down_boundary"`
	QueueSize           int     `toml:"queue_size" yaml:"queue_size" json:"queue_size"`
}

// DefaultConfig returns the defaults for a 1080x2340 panel.
func DefaultConfig() Config {
	return Config{
		ScreenWidth:         1080,
		ScreenHeight:        2340,
		SwipeDistance:       100,
		PinchScaleDeviation: 0.15,
		PinchAngle:          30,
		SlideDistance:       120,
		LeftBoundary:        0.05,
		RightBoundary:       0.95,
		DownBoundary:        0.95,
		QueueSize:           256,
	}
}
