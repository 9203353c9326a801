// Package status provides a thread-safe status tracker for the devicestatus daemon.
// It is read by the HTTP handlers and written from the run loops.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/devicestatus/internal/motion"
)

// Config contains daemon configuration for display.
type Config struct {
	Device   string
	PollMs   int64
	Broker   string
	HTTPAddr string
	Gestures []string
	Evdev    string // empty = touch input disabled
}

// Gesture is the last result reported for one gesture type.
type Gesture struct {
	Result motion.Result
	At     time.Time
	Count  int
}

// Cooperate is the current cooperate state as seen by an observer.
type Cooperate struct {
	Enabled bool
	State   string
	Role    string
	Peer    string
	Changes int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Gestures      map[motion.GestureType]Gesture
	Cooperate     Cooperate
	TouchDropped  uint64
	SensorErrors  int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// TotalGestures is the number of results recorded across all types.
func (s Snapshot) TotalGestures() int {
	n := 0
	for _, g := range s.Gestures {
		n += g.Count
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Gestures:  make(map[motion.GestureType]Gesture),
			Cooperate: Cooperate{State: "DISABLED", Role: "NONE"},
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordGesture stores a delivered result and bumps its type's counter.
func (t *Tracker) RecordGesture(res motion.Result, at time.Time) {
	t.mu.Lock()
	g := t.snap.Gestures[res.Type]
	g.Result = res
	g.At = at
	g.Count++
	t.snap.Gestures[res.Type] = g
	t.mu.Unlock()
}

// SetCooperate records a cooperate state transition.
func (t *Tracker) SetCooperate(state, role, peer string) {
	t.mu.Lock()
	t.snap.Cooperate.State = state
	t.snap.Cooperate.Role = role
	t.snap.Cooperate.Peer = peer
	t.snap.Cooperate.Enabled = state != "DISABLED"
	t.snap.Cooperate.Changes++
	t.mu.Unlock()
}

// SetTouchDropped sets the number of pointer samples dropped by the touch queue.
func (t *Tracker) SetTouchDropped(n uint64) {
	t.mu.Lock()
	t.snap.TouchDropped = n
	t.mu.Unlock()
}

// AddSensorError counts a failed sensor read.
func (t *Tracker) AddSensorError() {
	t.mu.Lock()
	t.snap.SensorErrors++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Gestures = make(map[motion.GestureType]Gesture, len(t.snap.Gestures))
	for k, v := range t.snap.Gestures {
		s.Gestures[k] = v
	}
	s.Config.Gestures = append([]string(nil), t.snap.Config.Gestures...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
