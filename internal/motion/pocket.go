package motion

import "math"

// PocketState is the state of the pocket detector.
type PocketState int

const (
	PocketOut PocketState = iota
	PocketIn
)

func (s PocketState) String() string {
	if s == PocketIn {
		return "IN_POCKET"
	}
	return "OUT_OF_POCKET"
}

// Pocket fuses proximity, ambient light and the z axis. The device is in a pocket
// when something covers the proximity sensor, it is dark, and the device is not
// lying flat. No decision is made until each of the three sensors has reported.
type Pocket struct {
	reporter
	cfg   PocketConfig
	state PocketState
	enter Debouncer
	exit  Debouncer

	haveProximity, haveLight, haveAccel bool
	distance, lux, z                    float64
	changed                             bool
}

// NewPocket creates a pocket detector.
func NewPocket(cfg PocketConfig) *Pocket {
	p := &Pocket{cfg: cfg}
	p.Init()
	return p
}

func (p *Pocket) Init() {
	p.state = PocketOut
	p.enter = NewDebouncer(p.cfg.DebounceCount)
	p.exit = NewDebouncer(p.cfg.DebounceCount)
	p.haveProximity, p.haveLight, p.haveAccel = false, false, false
	p.distance, p.lux, p.z = 0, 0, 0
	p.changed = false
}

func (p *Pocket) Type() GestureType { return TypePocket }

func (p *Pocket) StateName() string { return p.state.String() }

// State returns the current state.
func (p *Pocket) State() PocketState { return p.state }

func (p *Pocket) HandleSample(s SensorSample) {
	switch s.Kind {
	case KindProximity:
		p.distance, p.haveProximity = s.Distance, true
	case KindAmbientLight:
		p.lux, p.haveLight = s.Lux, true
	case KindAccelerometer:
		p.z, p.haveAccel = s.Z, true
	default:
		return
	}
	if !p.haveProximity || !p.haveLight || !p.haveAccel {
		return
	}

	inPocket := p.distance < p.cfg.NearDistance &&
		p.lux < p.cfg.DarkLux &&
		math.Abs(p.z) < p.cfg.FlatZ

	previous := p.state
	switch p.state {
	case PocketOut:
		if p.enter.Observe(inPocket) {
			p.state = PocketIn
		}
	case PocketIn:
		if p.exit.Observe(!inPocket) {
			p.state = PocketOut
		}
	}
	if previous != p.state {
		p.changed = true
		p.Report()
	}
}

// Report emits Enter when the device went into a pocket and Exit when it came out.
func (p *Pocket) Report() Result {
	res := InvalidResult(TypePocket)
	if p.changed {
		res.Status = StatusStart
		res.Value = ValueExit
		if p.state == PocketIn {
			res.Value = ValueEnter
		}
	}
	return p.emit(res)
}
