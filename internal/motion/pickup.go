package motion

import "math"

// PickupState is the state of the pickup detector.
type PickupState int

const (
	PickupIdle PickupState = iota
	PickupResting
	PickupPickedUp
)

func (s PickupState) String() string {
	switch s {
	case PickupIdle:
		return "IDLE"
	case PickupResting:
		return "RESTING"
	case PickupPickedUp:
		return "PICKED_UP"
	}
	return "UNKNOWN"
}

// Pickup detects a device lifted off a surface. The device must first rest face up
// and still for RestCount samples. A sample whose magnitude jumps by MoveThreshold
// arms a window of WindowSamples; raising the top edge past RaisedPitch inside the
// window reports Enter. Laying the device back down to rest reports Exit.
// Tilting slowly without movement abandons the rest and reports nothing.
type Pickup struct {
	reporter
	cfg   PickupConfig
	state PickupState
	rest  Debouncer
	armed int

	havePrev   bool
	prevModule float64
}

// NewPickup creates a pickup detector.
func NewPickup(cfg PickupConfig) *Pickup {
	p := &Pickup{cfg: cfg}
	p.Init()
	return p
}

func (p *Pickup) Init() {
	p.state = PickupIdle
	p.rest = NewDebouncer(p.cfg.RestCount)
	p.armed = 0
	p.havePrev = false
	p.prevModule = 0
}

func (p *Pickup) Type() GestureType { return TypePickup }

func (p *Pickup) StateName() string { return p.state.String() }

// State returns the current state.
func (p *Pickup) State() PickupState { return p.state }

func (p *Pickup) HandleSample(s SensorSample) {
	if s.Kind != KindAccelerometer {
		return
	}
	a := computeAttitude(s)
	moving := p.havePrev && math.Abs(a.module-p.prevModule) >= p.cfg.MoveThreshold
	p.prevModule, p.havePrev = a.module, true

	resting := !moving &&
		inBand(a.module, p.cfg.ModuleLow, p.cfg.ModuleHigh) &&
		a.faceUp(p.cfg.FlatAngle, p.cfg.FlatAngle)
	raised := a.pitch >= p.cfg.RaisedPitch

	switch p.state {
	case PickupIdle:
		if p.rest.Observe(resting) {
			p.state = PickupResting
		}
	case PickupResting:
		if moving {
			p.armed = p.cfg.WindowSamples
		}
		if p.armed > 0 {
			if raised {
				p.armed = 0
				p.rest.Reset()
				p.state = PickupPickedUp
				p.Report()
				return
			}
			p.armed--
			return
		}
		if !resting {
			p.rest.Reset()
			p.state = PickupIdle
		}
	case PickupPickedUp:
		if p.rest.Observe(resting) {
			p.state = PickupResting
			p.Report()
		}
	}
}

// Report emits Enter while picked up and Exit once laid back down.
func (p *Pickup) Report() Result {
	res := InvalidResult(TypePickup)
	switch p.state {
	case PickupPickedUp:
		res.Value = ValueEnter
		res.Status = StatusStart
	case PickupResting:
		res.Value = ValueExit
		res.Status = StatusStart
	}
	return p.emit(res)
}
