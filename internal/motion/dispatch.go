package motion

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Listener receives motion results. Implementations must not block for long.
type Listener interface {
	OnMotionChanged(Result)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Result)

// OnMotionChanged calls f(res).
func (f ListenerFunc) OnMotionChanged(res Result) { f(res) }

// Stats counts dispatcher activity since startup.
type Stats struct {
	Delivered  map[GestureType]int
	Duplicates int
	Samples    int
}

type subscription struct {
	id       int
	listener Listener
}

// Dispatcher owns the detector instances for every enabled gesture type and fans
// results out to subscribed listeners. A result equal to the previous result
// delivered for the same type is suppressed until the type's detector passes
// back through its initial state or a terminal result (CANCEL or FINISH) ends
// the gesture. Rotate never leaves its cycle, so each new bucket is delivered once.
//
// Touch gestures are recognised elsewhere and enter through Publish.
type Dispatcher struct {
	log *zap.SugaredLogger

	mu        sync.Mutex
	cfg       Config
	detectors map[GestureType]Detector
	initial   map[GestureType]string // detector state name right after Init
	enabled   map[GestureType]bool
	listeners map[GestureType][]subscription
	last      map[GestureType]Result
	pending   []Result
	nextID    int
	stats     Stats
}

// NewDispatcher creates a dispatcher with nothing enabled.
func NewDispatcher(cfg Config, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		log:       log,
		cfg:       cfg,
		detectors: make(map[GestureType]Detector),
		initial:   make(map[GestureType]string),
		enabled:   make(map[GestureType]bool),
		listeners: make(map[GestureType][]subscription),
		last:      make(map[GestureType]Result),
		stats:     Stats{Delivered: make(map[GestureType]int)},
	}
}

// newDetector builds the sensor detector for t, or nil for touch-driven types.
func newDetector(t GestureType, cfg Config) (Detector, error) {
	switch t {
	case TypePickup:
		return NewPickup(cfg.Pickup), nil
	case TypeFlip:
		return NewFlip(cfg.Flip), nil
	case TypeRotate:
		return NewRotate(cfg.Rotate), nil
	case TypeShake:
		return NewShake(cfg.Shake), nil
	case TypePocket:
		return NewPocket(cfg.Pocket), nil
	case TypeNearEar:
		return NewNearEar(cfg.NearEar), nil
	case TypeOneFingerSwipe, TypeTwoFingersPinch, TypeThreeFingersSlide:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported gesture type %s", t)
}

// Enable starts recognising t. Enabling an enabled type is a no-op.
func (d *Dispatcher) Enable(t GestureType) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.enabled[t] {
		return nil
	}
	det, err := newDetector(t, d.cfg)
	if err != nil {
		return err
	}
	if det != nil {
		d.install(t, det)
	}
	d.enabled[t] = true
	delete(d.last, t)
	d.log.Infow("motion: gesture enabled", "type", t)
	return nil
}

// Disable stops recognising t and drops its detector state.
func (d *Dispatcher) Disable(t GestureType) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled[t] {
		return
	}
	delete(d.enabled, t)
	delete(d.detectors, t)
	delete(d.initial, t)
	delete(d.last, t)
	d.log.Infow("motion: gesture disabled", "type", t)
}

// IsEnabled reports whether t is enabled.
func (d *Dispatcher) IsEnabled(t GestureType) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled[t]
}

// Subscribe registers l for results of type t and returns a handle for Unsubscribe.
func (d *Dispatcher) Subscribe(t GestureType, l Listener) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.listeners[t] = append(d.listeners[t], subscription{id: d.nextID, listener: l})
	return d.nextID
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (d *Dispatcher) Unsubscribe(t GestureType, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.listeners[t]
	for i, s := range subs {
		if s.id == id {
			d.listeners[t] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(d.listeners[t]) == 0 {
		delete(d.listeners, t)
	}
}

func (d *Dispatcher) install(t GestureType, det Detector) {
	det.RegisterCallback(d.collect)
	d.detectors[t] = det
	d.initial[t] = det.StateName()
}

// collect runs inside HandleSensor with d.mu held.
func (d *Dispatcher) collect(res Result) {
	d.pending = append(d.pending, res)
}

// HandleSensor feeds one sample to every enabled sensor detector, then delivers
// whatever they reported. It runs on the sensor delivery goroutine and never blocks
// beyond listener execution.
func (d *Dispatcher) HandleSensor(s SensorSample) {
	d.mu.Lock()
	d.stats.Samples++
	for t, det := range d.detectors {
		det.HandleSample(s)
		if det.StateName() == d.initial[t] {
			delete(d.last, t)
		}
	}
	results := d.pending
	d.pending = nil
	deliveries := d.filterLocked(results)
	d.mu.Unlock()

	deliver(deliveries)
}

// Publish delivers a result produced outside the dispatcher (the touch detector).
// Results for disabled types are dropped.
func (d *Dispatcher) Publish(res Result) {
	d.mu.Lock()
	if !d.enabled[res.Type] {
		d.mu.Unlock()
		return
	}
	deliveries := d.filterLocked([]Result{res})
	d.mu.Unlock()

	deliver(deliveries)
}

type delivery struct {
	res       Result
	listeners []Listener
}

func (d *Dispatcher) filterLocked(results []Result) []delivery {
	var out []delivery
	for _, res := range results {
		if prev, ok := d.last[res.Type]; ok && prev == res {
			d.stats.Duplicates++
			continue
		}
		if res.Status == StatusCancel || res.Status == StatusFinish {
			delete(d.last, res.Type)
		} else {
			d.last[res.Type] = res
		}
		d.stats.Delivered[res.Type]++

		subs := d.listeners[res.Type]
		ls := make([]Listener, 0, len(subs))
		for _, s := range subs {
			ls = append(ls, s.listener)
		}
		out = append(out, delivery{res: res, listeners: ls})
	}
	return out
}

func deliver(deliveries []delivery) {
	for _, dv := range deliveries {
		for _, l := range dv.listeners {
			l.OnMotionChanged(dv.res)
		}
	}
}

// ApplyConfig replaces the detector tunables. Enabled sensor detectors are rebuilt
// from their initial state.
func (d *Dispatcher) ApplyConfig(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cfg = cfg
	for t := range d.detectors {
		det, err := newDetector(t, cfg)
		if err != nil || det == nil {
			continue
		}
		d.install(t, det)
		delete(d.last, t)
	}
	d.log.Infow("motion: config applied", "detectors", len(d.detectors))
}

// States returns the current state name of each enabled sensor detector.
func (d *Dispatcher) States() map[GestureType]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[GestureType]string, len(d.detectors))
	for t, det := range d.detectors {
		out[t] = det.StateName()
	}
	return out
}

// StatsSnapshot returns a copy of the counters.
func (d *Dispatcher) StatsSnapshot() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{
		Delivered:  make(map[GestureType]int, len(d.stats.Delivered)),
		Duplicates: d.stats.Duplicates,
		Samples:    d.stats.Samples,
	}
	for k, v := range d.stats.Delivered {
		s.Delivered[k] = v
	}
	return s
}
