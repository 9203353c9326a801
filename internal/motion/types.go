// Package motion contains the gesture-recognition logic for sensor driven gestures.
// Detectors are pure state machines (no sensors, MQTT, OS, or time.Sleep): samples are
// delivered in arrival order and detectors never look at wall-clock time.
package motion

import "fmt"

// GestureType identifies a gesture family.
type GestureType int

const (
	TypeInvalid GestureType = iota - 1
	TypePickup
	TypeFlip
	TypeRotate
	TypeShake
	TypePocket
	TypeNearEar
	TypeOneFingerSwipe
	TypeTwoFingersPinch
	TypeThreeFingersSlide
)

var gestureTypeNames = map[GestureType]string{
	TypeInvalid:           "INVALID",
	TypePickup:            "PICKUP",
	TypeFlip:              "FLIP",
	TypeRotate:            "ROTATE",
	TypeShake:             "SHAKE",
	TypePocket:            "POCKET",
	TypeNearEar:           "NEAR_EAR",
	TypeOneFingerSwipe:    "ONE_FINGER_SWIPE",
	TypeTwoFingersPinch:   "TWO_FINGERS_PINCH",
	TypeThreeFingersSlide: "THREE_FINGERS_SLIDE",
}

func (t GestureType) String() string {
	if s, ok := gestureTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("GestureType(%d)", int(t))
}

// ParseGestureType is the inverse of GestureType.String.
func ParseGestureType(s string) (GestureType, error) {
	for t, name := range gestureTypeNames {
		if name == s && t != TypeInvalid {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("unknown gesture type %q", s)
}

// Value reports whether a gesture was entered or left.
type Value int

const (
	ValueInvalid Value = iota - 1
	ValueEnter
	ValueExit
)

func (v Value) String() string {
	switch v {
	case ValueEnter:
		return "ENTER"
	case ValueExit:
		return "EXIT"
	}
	return "INVALID"
}

// Status is the progress of a continuous gesture.
type Status int

const (
	StatusInvalid Status = iota - 1
	StatusCancel
	StatusStart
	StatusProcess
	StatusFinish
)

func (s Status) String() string {
	switch s {
	case StatusCancel:
		return "CANCEL"
	case StatusStart:
		return "START"
	case StatusProcess:
		return "PROCESS"
	case StatusFinish:
		return "FINISH"
	}
	return "INVALID"
}

// Action is the direction or kind of a touch gesture.
type Action int

const (
	ActionInvalid Action = iota - 1
	ActionEnlarge
	ActionReduce
	ActionUp
	ActionLeft
	ActionDown
	ActionRight
)

func (a Action) String() string {
	switch a {
	case ActionEnlarge:
		return "ENLARGE"
	case ActionReduce:
		return "REDUCE"
	case ActionUp:
		return "UP"
	case ActionLeft:
		return "LEFT"
	case ActionDown:
		return "DOWN"
	case ActionRight:
		return "RIGHT"
	}
	return "INVALID"
}

// RotateAction is the display orientation bucket reported by the rotate detector.
type RotateAction int

const (
	RotateInvalid RotateAction = -1
	Rotate0       RotateAction = 0
	Rotate90      RotateAction = 90
	Rotate180     RotateAction = 180
	Rotate270     RotateAction = 270
)

func (r RotateAction) String() string {
	if r == RotateInvalid {
		return "INVALID"
	}
	return fmt.Sprintf("%d", int(r))
}

// Result is the motion data emitted on a detector state transition.
// Results are plain values; two results are duplicates iff they compare equal.
type Result struct {
	Type         GestureType
	Value        Value
	Status       Status
	Action       Action
	RotateAction RotateAction
	Move         float64
}

// InvalidResult returns a result of the given type with every field invalid.
func InvalidResult(t GestureType) Result {
	return Result{
		Type:         t,
		Value:        ValueInvalid,
		Status:       StatusInvalid,
		Action:       ActionInvalid,
		RotateAction: RotateInvalid,
	}
}

func (r Result) String() string {
	return fmt.Sprintf("%s value=%s status=%s action=%s rotate=%s move=%.3f",
		r.Type, r.Value, r.Status, r.Action, r.RotateAction, r.Move)
}

// SampleKind tags which sensor produced a sample.
type SampleKind int

const (
	KindAccelerometer SampleKind = iota
	KindProximity
	KindAmbientLight
)

func (k SampleKind) String() string {
	switch k {
	case KindAccelerometer:
		return "accelerometer"
	case KindProximity:
		return "proximity"
	case KindAmbientLight:
		return "ambient_light"
	}
	return "unknown"
}

// SensorSample is one reading from a sensor. Only the fields of its Kind are meaningful.
type SensorSample struct {
	Kind     SampleKind
	X, Y, Z  float64 // m/s², accelerometer only
	Distance float64 // cm, proximity only
	Lux      float64 // ambient light only
}

// Accel builds an accelerometer sample.
func Accel(x, y, z float64) SensorSample {
	return SensorSample{Kind: KindAccelerometer, X: x, Y: y, Z: z}
}

// Proximity builds a proximity sample.
func Proximity(distance float64) SensorSample {
	return SensorSample{Kind: KindProximity, Distance: distance}
}

// AmbientLight builds an ambient light sample.
func AmbientLight(lux float64) SensorSample {
	return SensorSample{Kind: KindAmbientLight, Lux: lux}
}

// Callback receives results from a detector.
type Callback func(Result)

// Detector is the contract shared by every sensor gesture detector.
type Detector interface {
	// Init resets the detector to its initial state.
	Init()
	// HandleSample advances the state machine by one sample and may report.
	HandleSample(SensorSample)
	// Report builds the current result and delivers it to the callback.
	Report() Result
	// RegisterCallback sets the function receiving reports.
	RegisterCallback(Callback)
	// Type is the gesture family handled by the detector.
	Type() GestureType
	// StateName is the current state for status output.
	StateName() string
}
