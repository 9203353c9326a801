package motion

import "math"

// RotateState is the state of the rotate detector.
type RotateState int

const (
	RotateIdle RotateState = iota
	RotateRotating
	RotateRotated
)

func (s RotateState) String() string {
	switch s {
	case RotateIdle:
		return "IDLE"
	case RotateRotating:
		return "ROTATING"
	case RotateRotated:
		return "ROTATED"
	}
	return "UNKNOWN"
}

// Rotate tracks the display orientation. Unlike Flip it has no terminal state:
// every stable sample moves Rotating to Rotated and reports the orientation bucket,
// and the following sample drops back to Rotating.
type Rotate struct {
	reporter
	cfg    RotateConfig
	state  RotateState
	bucket RotateAction
}

// NewRotate creates a rotate detector.
func NewRotate(cfg RotateConfig) *Rotate {
	r := &Rotate{cfg: cfg}
	r.Init()
	return r
}

func (r *Rotate) Init() {
	r.state = RotateIdle
	r.bucket = RotateInvalid
}

func (r *Rotate) Type() GestureType { return TypeRotate }

func (r *Rotate) StateName() string { return r.state.String() }

// State returns the current state.
func (r *Rotate) State() RotateState { return r.state }

// Orientation returns the last committed bucket.
func (r *Rotate) Orientation() RotateAction { return r.bucket }

// displayAngle returns atan2(-y, x) normalised into [0, 360).
func displayAngle(x, y float64) float64 {
	angle := degrees(math.Atan2(-y, x))
	if angle < 0 {
		angle += 360
	}
	return angle
}

// bucketFor snaps an angle to the nearest orientation if it lies within tolerance.
func bucketFor(angle, tolerance float64) RotateAction {
	rotation := math.Mod(270-angle+360, 360)
	for _, b := range []RotateAction{Rotate0, Rotate90, Rotate180, Rotate270} {
		diff := math.Abs(rotation - float64(b))
		if diff > 180 {
			diff = 360 - diff
		}
		if diff <= tolerance {
			return b
		}
	}
	return RotateInvalid
}

func (r *Rotate) HandleSample(s SensorSample) {
	if s.Kind != KindAccelerometer {
		return
	}
	a := computeAttitude(s)
	stable := inBand(a.module, r.cfg.ModuleLow, r.cfg.ModuleHigh)

	switch r.state {
	case RotateIdle:
		if stable {
			r.state = RotateRotating
		}
	case RotateRotating:
		if !stable || math.Abs(a.nz) > r.cfg.FlatThreshold {
			return
		}
		b := bucketFor(displayAngle(s.X, s.Y), r.cfg.AngleTolerance)
		if b == RotateInvalid {
			return
		}
		r.bucket = b
		r.state = RotateRotated
		r.Report()
	case RotateRotated:
		r.state = RotateRotating
	}
}

// Report emits the current orientation bucket.
func (r *Rotate) Report() Result {
	res := InvalidResult(TypeRotate)
	if r.bucket != RotateInvalid {
		res.Value = ValueEnter
		res.Status = StatusProcess
		res.RotateAction = r.bucket
	}
	return r.emit(res)
}
