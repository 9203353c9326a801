package motion

// FlipState is the state of the flip detector.
type FlipState int

const (
	FlipIdle FlipState = iota
	FlipStill
	FlipFlipping
	FlipFlipped
)

func (s FlipState) String() string {
	switch s {
	case FlipIdle:
		return "IDLE"
	case FlipStill:
		return "STILL"
	case FlipFlipping:
		return "FLIPPING"
	case FlipFlipped:
		return "FLIPPED"
	}
	return "UNKNOWN"
}

type face int

const (
	faceNone face = iota
	faceUpward
	faceDownward
)

// reporter carries the callback plumbing shared by the sensor detectors.
type reporter struct {
	cb Callback
}

func (r *reporter) RegisterCallback(cb Callback) {
	r.cb = cb
}

func (r *reporter) emit(res Result) Result {
	if r.cb != nil {
		r.cb(res)
	}
	return res
}

// Flip detects the device being turned over between screen-up and screen-down.
// It reports once, on entering Flipped. A flip not completed within the flipping
// timer is abandoned and the detector returns to Idle.
type Flip struct {
	reporter
	cfg       FlipConfig
	state     FlipState
	startFace face
	endFace   face
	timerMs   int
}

// NewFlip creates a flip detector.
func NewFlip(cfg FlipConfig) *Flip {
	f := &Flip{cfg: cfg}
	f.Init()
	return f
}

func (f *Flip) Init() {
	f.state = FlipIdle
	f.startFace = faceNone
	f.endFace = faceNone
	f.timerMs = 0
}

func (f *Flip) Type() GestureType { return TypeFlip }

func (f *Flip) StateName() string { return f.state.String() }

// State returns the current state.
func (f *Flip) State() FlipState { return f.state }

func (f *Flip) classify(a attitude) face {
	if !inBand(a.module, f.cfg.ModuleLow, f.cfg.ModuleHigh) {
		return faceNone
	}
	switch {
	case a.faceUp(f.cfg.PitchHorizontal, f.cfg.RollHorizontal):
		return faceUpward
	case a.faceDown(f.cfg.PitchHorizontal, f.cfg.RollHorizontal):
		return faceDownward
	}
	return faceNone
}

func (f *Flip) HandleSample(s SensorSample) {
	if s.Kind != KindAccelerometer {
		return
	}
	current := f.classify(computeAttitude(s))

	switch f.state {
	case FlipIdle:
		if current != faceNone {
			f.startFace = current
			f.state = FlipStill
		}
	case FlipStill:
		if current != f.startFace {
			f.state = FlipFlipping
			f.timerMs = 0
			f.stepFlipping(current)
		}
	case FlipFlipping:
		f.stepFlipping(current)
	case FlipFlipped:
		f.Init()
		if current != faceNone {
			f.startFace = current
			f.state = FlipStill
		}
	}
}

func (f *Flip) stepFlipping(current face) {
	if current != faceNone && current != f.startFace {
		f.endFace = current
		f.state = FlipFlipped
		f.Report()
		return
	}
	f.timerMs += f.cfg.FlippingIntervalMs
	if f.timerMs >= f.cfg.FlippingTimerMs {
		f.Init()
	}
}

// Report emits the flip result. Enter means the screen now faces up.
func (f *Flip) Report() Result {
	res := InvalidResult(TypeFlip)
	if f.state == FlipFlipped {
		res.Status = StatusStart
		if f.endFace == faceUpward {
			res.Value = ValueEnter
		} else {
			res.Value = ValueExit
		}
	}
	return f.emit(res)
}
