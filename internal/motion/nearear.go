package motion

import "math"

// NearEarState is the state of the near-ear detector.
type NearEarState int

const (
	NearEarIdle NearEarState = iota
	NearEarHorizontal
	NearEarShortVertical
	NearEarLongVertical
	NearEarFlipped
	NearEarNonAbsoluteStill
	NearEarEar
)

func (s NearEarState) String() string {
	switch s {
	case NearEarIdle:
		return "IDLE"
	case NearEarHorizontal:
		return "HORIZONTAL"
	case NearEarShortVertical:
		return "SHORT_VERTICAL"
	case NearEarLongVertical:
		return "LONG_VERTICAL"
	case NearEarFlipped:
		return "FLIPPED"
	case NearEarNonAbsoluteStill:
		return "NON_ABSOLUTE_STILL"
	case NearEarEar:
		return "EAR"
	}
	return "UNKNOWN"
}

// NearEar recognises the device being raised to the ear. Orientation sub-states are
// committed only after their condition holds for CounterThreshold consecutive
// accelerometer samples; the ear itself is entered on a proximity sample.
type NearEar struct {
	reporter
	cfg   NearEarConfig
	state NearEarState

	horizontalCounter    Debouncer
	verticalShortCounter Debouncer
	verticalLongCounter  Debouncer
	flippedCounter       Debouncer
	nonStillCounter      Debouncer
}

// NewNearEar creates a near-ear detector.
func NewNearEar(cfg NearEarConfig) *NearEar {
	n := &NearEar{cfg: cfg}
	n.Init()
	return n
}

func (n *NearEar) Init() {
	n.state = NearEarIdle
	n.resetCounters()
}

func (n *NearEar) resetCounters() {
	n.horizontalCounter = NewDebouncer(n.cfg.CounterThreshold)
	n.verticalShortCounter = NewDebouncer(n.cfg.CounterThreshold)
	n.verticalLongCounter = NewDebouncer(n.cfg.CounterThreshold)
	n.flippedCounter = NewDebouncer(n.cfg.CounterThreshold)
	n.nonStillCounter = NewDebouncer(n.cfg.CounterThreshold)
}

func (n *NearEar) Type() GestureType { return TypeNearEar }

func (n *NearEar) StateName() string { return n.state.String() }

// State returns the current state.
func (n *NearEar) State() NearEarState { return n.state }

func (n *NearEar) HandleSample(s SensorSample) {
	switch s.Kind {
	case KindAccelerometer:
		n.handleAccel(computeAttitude(s))
	case KindProximity:
		n.handleProximity(s.Distance < n.cfg.NearDistance)
	}
}

func (n *NearEar) handleProximity(near bool) {
	switch n.state {
	case NearEarShortVertical, NearEarLongVertical, NearEarNonAbsoluteStill:
		if near {
			n.enter(NearEarEar)
			n.Report()
		}
	case NearEarEar:
		if !near {
			n.enter(NearEarIdle)
			n.Report()
		}
	}
}

func (n *NearEar) handleAccel(a attitude) {
	if n.state == NearEarEar {
		return
	}
	horizontal := math.Abs(a.pitch) < n.cfg.HorizontalPitch && math.Abs(a.roll) <= n.cfg.RollHorizontal
	vertical := a.pitch >= n.cfg.VerticalPitch
	flipped := a.faceDown(n.cfg.HorizontalPitch, n.cfg.RollHorizontal)
	nonStill := math.Abs(a.module-StandardGravity) > n.cfg.StillTolerance

	if n.state != NearEarFlipped && n.flippedCounter.Observe(flipped) {
		n.enter(NearEarFlipped)
		return
	}

	switch n.state {
	case NearEarIdle:
		if n.horizontalCounter.Observe(horizontal) {
			n.enter(NearEarHorizontal)
		} else if n.nonStillCounter.Observe(nonStill && !horizontal) {
			n.enter(NearEarNonAbsoluteStill)
		}
	case NearEarHorizontal:
		if n.verticalShortCounter.Observe(vertical) {
			n.enter(NearEarShortVertical)
		} else if n.nonStillCounter.Observe(nonStill && !horizontal && !vertical) {
			n.enter(NearEarNonAbsoluteStill)
		}
	case NearEarShortVertical:
		if n.verticalLongCounter.Observe(vertical) {
			n.enter(NearEarLongVertical)
		} else if n.horizontalCounter.Observe(horizontal) {
			n.enter(NearEarHorizontal)
		}
	case NearEarLongVertical:
		if n.horizontalCounter.Observe(horizontal) {
			n.enter(NearEarHorizontal)
		}
	case NearEarFlipped, NearEarNonAbsoluteStill:
		if n.horizontalCounter.Observe(horizontal) {
			n.enter(NearEarHorizontal)
		} else if n.state == NearEarNonAbsoluteStill && n.verticalShortCounter.Observe(vertical && !nonStill) {
			n.enter(NearEarShortVertical)
		}
	}
}

// enter commits a state and re-arms every counter so each sub-state starts counting afresh.
func (n *NearEar) enter(s NearEarState) {
	n.state = s
	n.resetCounters()
}

// Report emits Enter while the device is at the ear and Exit after it leaves.
func (n *NearEar) Report() Result {
	res := InvalidResult(TypeNearEar)
	switch n.state {
	case NearEarEar:
		res.Value = ValueEnter
		res.Status = StatusStart
	case NearEarIdle:
		res.Value = ValueExit
		res.Status = StatusFinish
	}
	return n.emit(res)
}
