package touch

import (
	"math"

	"github.com/sweeney/devicestatus/internal/motion"
)

type positionTag int

const (
	tagDown positionTag = iota
	tagMove
)

// fingerKey indexes the position map. Every pressed finger has exactly one tagDown
// entry and at most one tagMove entry; lifted fingers have none.
type fingerKey struct {
	id  int
	tag positionTag
}

// Detector is the multi-touch gesture state machine. It is not safe for concurrent
// use; Runner serialises access to it.
type Detector struct {
	cfg   Config
	state State
	cb    motion.Callback

	pressed   []int // pointer ids in press order
	positions map[fingerKey]point

	initialDistance float64
	initialAngle    float64
	action          motion.Action
}

// NewDetector creates an idle detector.
func NewDetector(cfg Config) *Detector {
	d := &Detector{cfg: cfg}
	d.Reset()
	return d
}

// Reset drops all fingers and returns to Idle without reporting.
func (d *Detector) Reset() {
	d.state = StateIdle
	d.pressed = nil
	d.positions = make(map[fingerKey]point)
	d.initialDistance = 0
	d.initialAngle = 0
	d.action = motion.ActionInvalid
}

// RegisterCallback sets the function receiving gesture results.
func (d *Detector) RegisterCallback(cb motion.Callback) {
	d.cb = cb
}

// SetConfig replaces the thresholds. The current gesture continues under the new values.
func (d *Detector) SetConfig(cfg Config) {
	d.cfg = cfg
}

// State returns the current state.
func (d *Detector) State() State { return d.state }

// Fingers returns the number of pressed fingers.
func (d *Detector) Fingers() int { return len(d.pressed) }

// Handle feeds one pointer sample into the state machine. A non-nil error means the
// sample could not be evaluated and the detector moved to Error; it stays there until
// every finger is lifted.
func (d *Detector) Handle(s PointerSample) error {
	ev, ok := d.track(s)
	if !ok {
		return nil
	}
	return d.step(ev)
}

func (d *Detector) isPressed(id int) bool {
	for _, p := range d.pressed {
		if p == id {
			return true
		}
	}
	return false
}

func (d *Detector) release(id int) {
	for i, p := range d.pressed {
		if p == id {
			d.pressed = append(d.pressed[:i], d.pressed[i+1:]...)
			return
		}
	}
}

// track updates finger bookkeeping and derives the finger event. Samples for
// unknown pointers are ignored.
func (d *Detector) track(s PointerSample) (FingerEvent, bool) {
	pt := point{float64(s.X), float64(s.Y)}
	switch s.Action {
	case ActionDown:
		if d.isPressed(s.PointerID) {
			d.positions[fingerKey{s.PointerID, tagMove}] = pt
			return FingerMove, true
		}
		ev := OtherFingerDown
		if len(d.pressed) == 0 {
			ev = FirstFingerDown
		}
		d.pressed = append(d.pressed, s.PointerID)
		d.rebase()
		d.positions[fingerKey{s.PointerID, tagDown}] = pt
		return ev, true
	case ActionMove:
		if !d.isPressed(s.PointerID) {
			return 0, false
		}
		d.positions[fingerKey{s.PointerID, tagMove}] = pt
		return FingerMove, true
	case ActionUp:
		if !d.isPressed(s.PointerID) {
			return 0, false
		}
		d.release(s.PointerID)
		d.rebase()
		if len(d.pressed) == 0 {
			return AllFingersUp, true
		}
		return OtherFingerUp, true
	case ActionCancel:
		return FingerCancel, true
	}
	return 0, false
}

// rebase runs whenever the finger count changes: entries of lifted fingers are
// removed and each remaining finger's latest position becomes its new origin.
func (d *Detector) rebase() {
	for k := range d.positions {
		if !d.isPressed(k.id) {
			delete(d.positions, k)
		}
	}
	for _, id := range d.pressed {
		mv := fingerKey{id, tagMove}
		if p, ok := d.positions[mv]; ok {
			d.positions[fingerKey{id, tagDown}] = p
			delete(d.positions, mv)
		}
	}
}

func (d *Detector) origin(id int) (point, error) {
	p, ok := d.positions[fingerKey{id, tagDown}]
	if !ok {
		return point{}, errMissingFinger
	}
	return p, nil
}

func (d *Detector) current(id int) (point, error) {
	if p, ok := d.positions[fingerKey{id, tagMove}]; ok {
		return p, nil
	}
	return d.origin(id)
}

func (d *Detector) displacement(id int) (origin, delta point, err error) {
	origin, err = d.origin(id)
	if err != nil {
		return point{}, point{}, err
	}
	cur, err := d.current(id)
	if err != nil {
		return point{}, point{}, err
	}
	return origin, cur.sub(origin), nil
}

func (d *Detector) step(ev FingerEvent) error {
	if ev == FingerCancel {
		if d.inGesture() {
			d.emit(motion.ValueExit, motion.StatusCancel, 0)
		}
		d.Reset()
		return nil
	}

	switch d.state {
	case StateIdle:
		if ev == FirstFingerDown {
			d.state = StateOneFingerDown
		}
	case StateOneFingerDown, StateOneFingerMove:
		switch ev {
		case FingerMove:
			d.state = StateOneFingerMove
			return d.oneFingerMove()
		case OtherFingerDown:
			d.state = StateTwoFingersDown
		case AllFingersUp:
			d.Reset()
		}
	case StateSwipe:
		switch ev {
		case AllFingersUp:
			d.emit(motion.ValueExit, motion.StatusFinish, 0)
			d.Reset()
		case OtherFingerDown:
			d.emit(motion.ValueExit, motion.StatusCancel, 0)
			d.state = StateEnd
		}
	case StateTwoFingersDown, StateTwoFingersMove:
		switch ev {
		case FingerMove:
			if d.state == StateTwoFingersDown {
				if err := d.beginPinch(); err != nil {
					return d.fail(err)
				}
				d.state = StateTwoFingersMove
			}
			return d.pinchMove()
		case OtherFingerDown:
			d.state = StateThreeFingersDown
		case OtherFingerUp:
			d.state = StateOneFingerDown
		case AllFingersUp:
			d.Reset()
		}
	case StatePinch:
		switch ev {
		case FingerMove:
			return d.pinchMove()
		case OtherFingerDown:
			d.emit(motion.ValueExit, motion.StatusCancel, 0)
			d.state = StateEnd
		case AllFingersUp:
			d.emit(motion.ValueExit, motion.StatusFinish, 0)
			d.Reset()
		}
	case StateThreeFingersDown, StateThreeFingersMove:
		switch ev {
		case FingerMove:
			d.state = StateThreeFingersMove
			return d.threeFingersMove()
		case OtherFingerDown:
			d.state = StateEnd
		case OtherFingerUp:
			d.state = StateTwoFingersDown
		case AllFingersUp:
			d.Reset()
		}
	case StateSlide:
		switch ev {
		case AllFingersUp:
			d.emit(motion.ValueExit, motion.StatusFinish, 0)
			d.Reset()
		case OtherFingerDown:
			d.emit(motion.ValueExit, motion.StatusCancel, 0)
			d.state = StateEnd
		}
	case StateEnd, StateError:
		if ev == AllFingersUp {
			d.Reset()
		}
	}
	return nil
}

func (d *Detector) fail(err error) error {
	d.state = StateError
	return err
}

func (d *Detector) inGesture() bool {
	return d.state == StateSwipe || d.state == StatePinch || d.state == StateSlide
}

func (d *Detector) oneFingerMove() error {
	if len(d.pressed) != 1 {
		return nil
	}
	origin, delta, err := d.displacement(d.pressed[0])
	if err != nil {
		return d.fail(err)
	}
	if delta.norm() <= d.cfg.SwipeDistance {
		return nil
	}

	action := d.swipeAction(origin, delta)
	if action == motion.ActionInvalid {
		d.state = StateEnd
		d.report(motion.Result{
			Type:         motion.TypeOneFingerSwipe,
			Value:        motion.ValueInvalid,
			Status:       motion.StatusCancel,
			Action:       motion.ActionInvalid,
			RotateAction: motion.RotateInvalid,
		})
		return nil
	}
	d.action = action
	d.state = StateSwipe
	d.emit(motion.ValueEnter, motion.StatusStart, delta.norm())
	return nil
}

// swipeAction accepts a swipe only when it starts at a screen edge and moves inwards.
func (d *Detector) swipeAction(origin, delta point) motion.Action {
	w, h := float64(d.cfg.ScreenWidth), float64(d.cfg.ScreenHeight)
	switch {
	case origin.x <= w*d.cfg.LeftBoundary && delta.x > 0:
		return motion.ActionRight
	case origin.x >= w*d.cfg.RightBoundary && delta.x < 0:
		return motion.ActionLeft
	case origin.y >= h*d.cfg.DownBoundary && delta.y < 0:
		return motion.ActionUp
	}
	return motion.ActionInvalid
}

func (d *Detector) pair() (a, b int, ok bool) {
	if len(d.pressed) != 2 {
		return 0, 0, false
	}
	return d.pressed[0], d.pressed[1], true
}

func (d *Detector) beginPinch() error {
	a, b, ok := d.pair()
	if !ok {
		return nil
	}
	pa, err := d.origin(a)
	if err != nil {
		return err
	}
	pb, err := d.origin(b)
	if err != nil {
		return err
	}
	v := pb.sub(pa)
	d.initialDistance = v.norm()
	d.initialAngle = angleOf(v)
	return nil
}

func (d *Detector) pinchMove() error {
	a, b, ok := d.pair()
	if !ok {
		return nil
	}
	pa, err := d.current(a)
	if err != nil {
		return d.fail(err)
	}
	pb, err := d.current(b)
	if err != nil {
		return d.fail(err)
	}
	v := pb.sub(pa)

	scale, err := pinchScale(d.initialDistance, v.norm())
	if err != nil {
		return d.fail(err)
	}
	if angleDrift(angleOf(v), d.initialAngle) > d.cfg.PinchAngle {
		if d.state == StatePinch {
			d.emit(motion.ValueExit, motion.StatusCancel, scale)
		}
		d.state = StateEnd
		return nil
	}

	action := motion.ActionReduce
	if scale > 1 {
		action = motion.ActionEnlarge
	}
	if d.state == StatePinch {
		d.action = action
		d.emit(motion.ValueEnter, motion.StatusProcess, scale)
		return nil
	}
	if math.Abs(scale-1) < d.cfg.PinchScaleDeviation {
		return nil
	}
	d.action = action
	d.state = StatePinch
	d.emit(motion.ValueEnter, motion.StatusStart, scale)
	return nil
}

func (d *Detector) threeFingersMove() error {
	if len(d.pressed) != 3 {
		return nil
	}
	var sum float64
	var dirs [3]motion.Action
	for i, id := range d.pressed {
		_, delta, err := d.displacement(id)
		if err != nil {
			return d.fail(err)
		}
		sum += delta.norm()
		dirs[i] = direction(delta)
	}
	mean := sum / 3
	if mean <= d.cfg.SlideDistance {
		return nil
	}
	if dirs[0] == motion.ActionInvalid || dirs[0] != dirs[1] || dirs[1] != dirs[2] {
		d.state = StateEnd
		return nil
	}
	d.action = dirs[0]
	d.state = StateSlide
	d.emit(motion.ValueEnter, motion.StatusStart, mean)
	return nil
}

func (d *Detector) gestureType() motion.GestureType {
	switch d.state {
	case StateSwipe:
		return motion.TypeOneFingerSwipe
	case StatePinch:
		return motion.TypeTwoFingersPinch
	case StateSlide:
		return motion.TypeThreeFingersSlide
	}
	return motion.TypeInvalid
}

// emit reports the gesture of the current state with the remembered action.
func (d *Detector) emit(v motion.Value, st motion.Status, move float64) {
	d.report(motion.Result{
		Type:         d.gestureType(),
		Value:        v,
		Status:       st,
		Action:       d.action,
		RotateAction: motion.RotateInvalid,
		Move:         move,
	})
}

func (d *Detector) report(res motion.Result) {
	if d.cb != nil {
		d.cb(res)
	}
}
