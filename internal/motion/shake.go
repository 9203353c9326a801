package motion

import "math"

// ShakeState is the state of the shake detector.
type ShakeState int

const (
	ShakeStill ShakeState = iota
	ShakeShaking
)

func (s ShakeState) String() string {
	if s == ShakeShaking {
		return "SHAKING"
	}
	return "STILL"
}

// Shake reports when the acceleration magnitude leaves and re-enters the gravity band.
// Both edges pass through a debounce counter; with DebounceCount 0 every edge commits
// on the first sample.
type Shake struct {
	reporter
	cfg      ShakeConfig
	state    ShakeState
	enter    Debouncer
	exit     Debouncer
	reported bool
}

// NewShake creates a shake detector.
func NewShake(cfg ShakeConfig) *Shake {
	s := &Shake{cfg: cfg}
	s.Init()
	return s
}

func (s *Shake) Init() {
	s.state = ShakeStill
	s.enter = NewDebouncer(s.cfg.DebounceCount)
	s.exit = NewDebouncer(s.cfg.DebounceCount)
	s.reported = false
}

func (s *Shake) Type() GestureType { return TypeShake }

func (s *Shake) StateName() string { return s.state.String() }

// State returns the current state.
func (s *Shake) State() ShakeState { return s.state }

func (s *Shake) HandleSample(sample SensorSample) {
	if sample.Kind != KindAccelerometer {
		return
	}
	deviation := math.Abs(computeAttitude(sample).module - StandardGravity)
	shaking := deviation > s.cfg.Threshold

	previous := s.state
	switch s.state {
	case ShakeStill:
		if s.enter.Observe(shaking) {
			s.state = ShakeShaking
		}
	case ShakeShaking:
		if s.exit.Observe(!shaking) {
			s.state = ShakeStill
		}
	}
	if previous != s.state {
		s.reported = true
		s.Report()
	}
}

// Report emits Enter while shaking and Exit once the device has settled.
func (s *Shake) Report() Result {
	res := InvalidResult(TypeShake)
	if s.reported {
		res.Status = StatusStart
		if s.state == ShakeShaking {
			res.Value = ValueEnter
		} else {
			res.Value = ValueExit
			res.Status = StatusFinish
		}
	}
	return s.emit(res)
}
