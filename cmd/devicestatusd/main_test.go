package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/devicestatus/internal/config"
	"github.com/sweeney/devicestatus/internal/cooperate"
	"github.com/sweeney/devicestatus/internal/dsoftbus"
	"github.com/sweeney/devicestatus/internal/input"
	"github.com/sweeney/devicestatus/internal/motion"
	"github.com/sweeney/devicestatus/internal/mqtt"
	"github.com/sweeney/devicestatus/internal/profile"
	"github.com/sweeney/devicestatus/internal/sensor"
	"github.com/sweeney/devicestatus/internal/status"
	"github.com/sweeney/devicestatus/internal/touch"
)

var (
	screenDown = motion.Accel(0, 0, -9.8)
	screenUp   = motion.Accel(0, 0, 9.8)
)

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fixedClock always returns t. Safe for concurrent use.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// repeat returns n copies of sample.
func repeat(sample motion.SensorSample, n int) []motion.SensorSample {
	out := make([]motion.SensorSample, n)
	for i := range out {
		out[i] = sample
	}
	return out
}

// faultReader wraps a FakeReader and returns errors for a range of Read() calls.
type faultReader struct {
	inner      *sensor.FakeReader
	call       int
	faultStart int // first call index that returns error (inclusive)
	faultEnd   int // last call index that returns error (exclusive)
}

func (r *faultReader) Read() ([]motion.SensorSample, error) {
	i := r.call
	r.call++
	if i >= r.faultStart && i < r.faultEnd {
		return nil, errors.New("sensor fault")
	}
	return r.inner.Read()
}

func (r *faultReader) Close() error { return r.inner.Close() }

// newTestDaemon wires a dispatcher with the given gesture types to a fake publisher
// and a tracker, the same way run does.
func newTestDaemon(t *testing.T, reader sensor.Reader, types ...motion.GestureType) (*daemon, *mqtt.FakePublisher) {
	t.Helper()
	log := zap.NewNop().Sugar()
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(testStart, status.Config{Device: "test"})

	dispatcher, err := newDispatcher(motion.DefaultConfig(), types, log)
	if err != nil {
		t.Fatalf("newDispatcher: %v", err)
	}
	sink := &gestureSink{publisher: pub, tracker: tracker, now: fixedClock(testStart), log: log}
	for _, gt := range types {
		dispatcher.Subscribe(gt, sink)
	}
	return &daemon{
		log:        log,
		sensors:    reader,
		dispatcher: dispatcher,
		publisher:  pub,
		mqttStatus: pub,
		tracker:    tracker,
	}, pub
}

// runServe drives serve for nTicks and then delivers signal.
func runServe(t *testing.T, d *daemon, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(context.Background(), d, fixedClock(testStart), tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
	return nil
}

func TestRunLoopNoGestureWhenStill(t *testing.T) {
	reader := sensor.NewFakeReader(repeat(screenDown, 10)...)
	d, pub := newTestDaemon(t, reader, motion.TypeFlip)

	if err := runServe(t, d, 10, syscall.SIGTERM); err != nil {
		t.Fatalf("serve returned error: %v", err)
	}

	if len(pub.Events) != 0 {
		t.Errorf("expected 0 gesture events, got %d", len(pub.Events))
	}
	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	if pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN event, got %q", pub.SystemEvents[0].Event)
	}
}

func TestRunLoopFlipPublished(t *testing.T) {
	samples := append(repeat(screenDown, 5), repeat(screenUp, 20)...)
	reader := sensor.NewFakeReader(samples...)
	d, pub := newTestDaemon(t, reader, motion.TypeFlip)

	if err := runServe(t, d, len(samples), syscall.SIGTERM); err != nil {
		t.Fatalf("serve returned error: %v", err)
	}

	if len(pub.Events) != 1 {
		t.Fatalf("expected 1 gesture event, got %d", len(pub.Events))
	}
	ev := pub.Events[0]
	if ev.Result.Type != motion.TypeFlip || ev.Result.Value != motion.ValueEnter {
		t.Errorf("unexpected event: %s", ev.Result)
	}
	if !ev.Timestamp.Equal(testStart) {
		t.Errorf("timestamp: got %v, want %v", ev.Timestamp, testStart)
	}

	snap := d.tracker.Snapshot()
	if got := snap.Gestures[motion.TypeFlip].Count; got != 1 {
		t.Errorf("tracker flip count: got %d, want 1", got)
	}
	if !snap.MQTTConnected {
		t.Error("tracker should report MQTT connected")
	}
}

func TestRunLoopShutdownReason(t *testing.T) {
	tests := []struct {
		signal os.Signal
		want   string
	}{
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			d, pub := newTestDaemon(t, sensor.NewFakeReader(screenDown), motion.TypeFlip)
			if err := runServe(t, d, 1, tt.signal); err != nil {
				t.Fatalf("serve returned error: %v", err)
			}
			if len(pub.SystemEvents) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
			}
			ev := pub.SystemEvents[0]
			if ev.Reason != tt.want {
				t.Errorf("reason: got %q, want %q", ev.Reason, tt.want)
			}
			if !ev.Retained {
				t.Error("SHUTDOWN should be retained")
			}
		})
	}
}

func TestRunLoopSensorErrorsContinue(t *testing.T) {
	samples := append(repeat(screenDown, 5), repeat(screenUp, 20)...)
	reader := &faultReader{inner: sensor.NewFakeReader(samples...), faultStart: 0, faultEnd: 3}
	d, pub := newTestDaemon(t, reader, motion.TypeFlip)

	if err := runServe(t, d, 3+len(samples), syscall.SIGTERM); err != nil {
		t.Fatalf("serve returned error: %v", err)
	}

	if got := d.tracker.Snapshot().SensorErrors; got != 3 {
		t.Errorf("sensor errors: got %d, want 3", got)
	}
	if len(pub.Events) != 1 {
		t.Errorf("expected flip after recovery, got %d events", len(pub.Events))
	}
}

func TestRunLoopPublishErrorDoesNotStop(t *testing.T) {
	samples := append(repeat(screenDown, 5), repeat(screenUp, 20)...)
	d, pub := newTestDaemon(t, sensor.NewFakeReader(samples...), motion.TypeFlip)
	pub.PublishError = errors.New("broker down")
	pub.PublishSystemError = errors.New("broker down")

	if err := runServe(t, d, len(samples), syscall.SIGTERM); err != nil {
		t.Fatalf("serve returned error: %v", err)
	}

	// The tracker still sees the gesture even though MQTT rejected it.
	if got := d.tracker.Snapshot().Gestures[motion.TypeFlip].Count; got != 1 {
		t.Errorf("tracker flip count: got %d, want 1", got)
	}
}

func TestServeInputFailureShutsDown(t *testing.T) {
	d, pub := newTestDaemon(t, sensor.NewFakeReader(screenDown), motion.TypeFlip)
	d.input = &input.FakeSource{RunError: errors.New("device gone")}

	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(context.Background(), d, fixedClock(testStart), make(chan time.Time), make(chan os.Signal))
	}()

	var err error
	select {
	case err = <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
	if err == nil || !strings.Contains(err.Error(), "device gone") {
		t.Fatalf("expected input error, got %v", err)
	}
	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Reason != "FAILURE" {
		t.Errorf("expected SHUTDOWN with reason FAILURE, got %+v", pub.SystemEvents)
	}
}

type cursorRecorder struct {
	mu  sync.Mutex
	pos [][2]int32
}

func (c *cursorRecorder) move(x, y int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = append(c.pos, [2]int32{x, y})
}

func (c *cursorRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pos)
}

func TestServeTouchSwipe(t *testing.T) {
	d, pub := newTestDaemon(t, sensor.NewFakeReader(screenDown), motion.TypeOneFingerSwipe)

	det := touch.NewDetector(touch.DefaultConfig())
	det.RegisterCallback(d.dispatcher.Publish)
	d.touch = touch.NewRunner(det, 16, d.log)

	cursor := &cursorRecorder{}
	d.cursor = cursor.move
	d.input = &input.FakeSource{Steps: []input.Step{
		{Touch: touch.PointerSample{PointerID: 0, Action: touch.ActionDown, X: 20, Y: 1000}},
		{Touch: touch.PointerSample{PointerID: 0, Action: touch.ActionMove, X: 200, Y: 1000}},
		{Touch: touch.PointerSample{PointerID: 0, Action: touch.ActionUp}},
		{IsCursor: true, X: 5, Y: 500},
	}}

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(context.Background(), d, fixedClock(testStart), tick, sig)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for (pub.EventCount() < 2 || cursor.count() < 1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sig <- syscall.SIGTERM
	if err := <-errCh; err != nil {
		t.Fatalf("serve returned error: %v", err)
	}

	if len(pub.Events) != 2 {
		t.Fatalf("expected swipe start and finish, got %d events", len(pub.Events))
	}
	if got := pub.Events[0].Result; got.Type != motion.TypeOneFingerSwipe || got.Action != motion.ActionRight {
		t.Errorf("first event: got %s", got)
	}
	if pub.Events[1].Result.Status != motion.StatusFinish {
		t.Errorf("second event: got %s", pub.Events[1].Result)
	}
	if cursor.count() != 1 {
		t.Errorf("cursor moves: got %d, want 1", cursor.count())
	}
}

func TestCooperateSinkPublishesTransition(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(testStart, status.Config{})
	sink := &cooperateSink{publisher: pub, tracker: tracker, now: fixedClock(testStart), log: zap.NewNop().Sugar()}

	sink.OnStateChanged(cooperate.StateChange{
		From:      cooperate.StateDisabled,
		To:        cooperate.StateIdle,
		Role:      cooperate.RoleNone,
		NetworkID: "",
	})

	if len(pub.CooperateEvents) != 1 {
		t.Fatalf("expected 1 cooperate event, got %d", len(pub.CooperateEvents))
	}
	ev := pub.CooperateEvents[0]
	if ev.From != "DISABLED" || ev.To != "IDLE" {
		t.Errorf("transition: got %s -> %s, want DISABLED -> IDLE", ev.From, ev.To)
	}
	snap := tracker.Snapshot()
	if !snap.Cooperate.Enabled || snap.Cooperate.State != "IDLE" {
		t.Errorf("tracker cooperate: got %+v", snap.Cooperate)
	}
}

type stateWaiter struct {
	ch chan cooperate.State
}

func (w *stateWaiter) OnStateChanged(c cooperate.StateChange) {
	select {
	case w.ch <- c.To:
	default:
	}
}

func TestRestoreSwitchEnables(t *testing.T) {
	store, err := profile.Open(filepath.Join(t.TempDir(), "profile.db"))
	if err != nil {
		t.Fatalf("profile.Open: %v", err)
	}
	defer store.Close()
	if err := store.SetCooperateSwitch("udid-a", "net-a", true); err != nil {
		t.Fatalf("SetCooperateSwitch: %v", err)
	}

	ep, err := dsoftbus.NewMemBus().Attach("net-a")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer ep.Close()

	coop, err := cooperate.New(cooperate.Options{
		Transport: ep,
		Profiles:  store,
		LocalUdID: "udid-a",
		Log:       zap.NewNop().Sugar(),
	})
	if err != nil {
		t.Fatalf("cooperate.New: %v", err)
	}
	defer coop.Close()
	w := &stateWaiter{ch: make(chan cooperate.State, 4)}
	coop.AddObserver(w)

	restoreSwitch(coop, store, "udid-a", zap.NewNop().Sugar())

	select {
	case s := <-w.ch:
		if s != cooperate.StateIdle {
			t.Errorf("state: got %s, want IDLE", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cooperation was not re-enabled")
	}
}

func TestRestoreSwitchLeavesDisabled(t *testing.T) {
	store, err := profile.Open(filepath.Join(t.TempDir(), "profile.db"))
	if err != nil {
		t.Fatalf("profile.Open: %v", err)
	}
	defer store.Close()

	ep, err := dsoftbus.NewMemBus().Attach("net-a")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer ep.Close()
	coop, err := cooperate.New(cooperate.Options{Transport: ep, Profiles: store, LocalUdID: "udid-a"})
	if err != nil {
		t.Fatalf("cooperate.New: %v", err)
	}
	defer coop.Close()
	w := &stateWaiter{ch: make(chan cooperate.State, 4)}
	coop.AddObserver(w)

	restoreSwitch(coop, store, "udid-a", zap.NewNop().Sugar())
	restoreSwitch(coop, store, "", zap.NewNop().Sugar())

	select {
	case s := <-w.ch:
		t.Errorf("unexpected transition to %s", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewDispatcherEnablesTypes(t *testing.T) {
	d, err := newDispatcher(motion.DefaultConfig(), []motion.GestureType{motion.TypeFlip, motion.TypeShake}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("newDispatcher: %v", err)
	}
	if !d.IsEnabled(motion.TypeFlip) || !d.IsEnabled(motion.TypeShake) {
		t.Error("configured types should be enabled")
	}
	if d.IsEnabled(motion.TypeRotate) {
		t.Error("ROTATE was not configured")
	}
}

func TestNewDispatcherRejectsUnknownType(t *testing.T) {
	_, err := newDispatcher(motion.DefaultConfig(), []motion.GestureType{motion.GestureType(99)}, zap.NewNop().Sugar())
	if err == nil {
		t.Fatal("expected error for unknown gesture type")
	}
}

func TestOverridesApply(t *testing.T) {
	cfg := config.DefaultConfig()
	overrides{broker: "tcp://broker:1883", httpAddr: "off", logLevel: "debug"}.apply(cfg)

	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("broker: got %q", cfg.MQTT.Broker)
	}
	if cfg.HTTP.Addr != "" {
		t.Errorf("http: got %q, want disabled", cfg.HTTP.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level: got %q", cfg.Log.Level)
	}

	cfg = config.DefaultConfig()
	overrides{}.apply(cfg)
	if cfg.HTTP.Addr != ":8080" || cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("empty overrides changed config: %+v %+v", cfg.HTTP, cfg.MQTT)
	}
}

func TestOpenSensorsNoneConfigured(t *testing.T) {
	cfg := config.DefaultConfig().Sensors
	r, err := openSensors(cfg)
	if err != nil {
		t.Fatalf("openSensors: %v", err)
	}
	samples, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("expected no samples, got %d", len(samples))
	}
}

func TestFormatSample(t *testing.T) {
	tests := []struct {
		sample motion.SensorSample
		want   string
	}{
		{motion.Accel(0, 0, 9.8), "accelerometer: x=0.00 y=0.00 z=9.80"},
		{motion.Proximity(0), "proximity: distance=0.0cm"},
		{motion.AmbientLight(120), "ambient_light: lux=120.0"},
	}
	for _, tt := range tests {
		if got := formatSample(tt.sample); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
