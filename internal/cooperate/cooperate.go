// Package cooperate implements cross-device cooperation (screen hopping). A single
// worker goroutine owns the StateMachine and processes events from a bounded channel
// one at a time; the Cooperate methods only check permissions and enqueue.
package cooperate

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/devicestatus/internal/dsoftbus"
	"github.com/sweeney/devicestatus/internal/permission"
)

// DefaultChannelCapacity is the event channel size when Options leaves it zero.
const DefaultChannelCapacity = 64

// Options configures a Cooperate.
type Options struct {
	Transport   dsoftbus.Transport
	Profiles    Profiles
	Permissions permission.Checker
	Notifier    Notifier
	Injector    Injector

	LocalUdID       string
	ResponseTimeout time.Duration
	ChannelCapacity int

	ScreenWidth  int32
	ScreenHeight int32
	HotAreaWidth int32

	Log *zap.SugaredLogger
}

// Cooperate is the request surface. Methods are safe for concurrent use.
type Cooperate struct {
	log      *zap.SugaredLogger
	perms    permission.Checker
	profiles Profiles
	bus      dsoftbus.Transport
	ch       *Channel
	sm       *StateMachine
	reg      *registry

	hotMu sync.Mutex
	hot   *HotArea

	// lifecycle guards started and closed. Enqueue paths hold it for reading so Quit
	// is always the last event a worker sees.
	lifecycle    sync.RWMutex
	started      bool
	closed       bool
	done         chan struct{}
	workerStarts int
}

// New wires a Cooperate to its collaborators. The worker starts on the first Enable.
func New(opts Options) (*Cooperate, error) {
	if opts.Transport == nil {
		return nil, errors.New("cooperate: transport is required")
	}
	if opts.Permissions == nil {
		opts.Permissions = permission.AllowAll{}
	}
	if opts.ChannelCapacity <= 0 {
		opts.ChannelCapacity = DefaultChannelCapacity
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}

	c := &Cooperate{
		log:      opts.Log,
		perms:    opts.Permissions,
		profiles: opts.Profiles,
		bus:      opts.Transport,
		ch:       NewChannel(opts.ChannelCapacity),
		reg:      newRegistry(),
		hot:      NewHotArea(opts.ScreenWidth, opts.ScreenHeight, opts.HotAreaWidth),
	}
	c.sm = newStateMachine(machineConfig{
		transport: opts.Transport,
		profiles:  opts.Profiles,
		notifier:  opts.Notifier,
		injector:  opts.Injector,
		registry:  c.reg,
		localUdID: opts.LocalUdID,
		timeout:   opts.ResponseTimeout,
		post:      func(ev Event) { _ = c.submit(context.Background(), ev, nil) },
		log:       opts.Log,
	})
	opts.Transport.SetHandler(busHandler{c})
	return c, nil
}

func (c *Cooperate) checkPermission(caller Caller) error {
	if !c.perms.IsSystemCalling(caller.TokenID) {
		return CommonNotSystemApp
	}
	if !c.perms.CheckCooperatePermission(caller.TokenID) {
		return CommonPermissionCheckError
	}
	return nil
}

// submit enqueues ev while the worker runs. Otherwise direct is applied on the
// caller's goroutine, or ErrNotEnabled returned when direct is nil.
func (c *Cooperate) submit(ctx context.Context, ev Event, direct func()) error {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if !c.started {
		if direct == nil {
			return ErrNotEnabled
		}
		direct()
		return nil
	}
	return c.ch.Send(ctx, ev)
}

func (c *Cooperate) startWorkerLocked() {
	if c.started {
		return
	}
	c.started = true
	c.workerStarts++
	done := make(chan struct{})
	c.done = done
	go func() {
		defer close(done)
		c.loop()
	}()
	c.log.Infow("cooperate: worker started")
}

// stopWorkerLocked queues Quit behind all pending events and joins the worker.
func (c *Cooperate) stopWorkerLocked() {
	if !c.started {
		return
	}
	if err := c.ch.Send(context.Background(), QuitEvent{}); err != nil {
		c.log.Warnw("cooperate: quit not delivered", "error", err)
	}
	<-c.done
	c.started = false
	c.log.Infow("cooperate: worker stopped")
}

func (c *Cooperate) loop() {
	ctx := context.Background()
	for {
		ev, err := c.ch.Recv(ctx)
		if err != nil {
			c.sm.shutdown()
			return
		}
		switch ev.(type) {
		case NoopEvent:
			continue
		case QuitEvent:
			c.sm.shutdown()
			return
		}
		c.sm.OnEvent(ctx, ev)
	}
}

// Enable allows cooperation for the caller and starts the worker if needed.
func (c *Cooperate) Enable(caller Caller, userData int32) error {
	if err := c.checkPermission(caller); err != nil {
		return err
	}
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	c.startWorkerLocked()
	return c.ch.Send(context.Background(), EnableEvent{TokenID: caller.TokenID, Pid: caller.Pid, UserData: userData})
}

// Disable ends any session and joins the worker before returning. No-op when not enabled.
func (c *Cooperate) Disable(caller Caller, userData int32) error {
	if err := c.checkPermission(caller); err != nil {
		return err
	}
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.started {
		return nil
	}
	if err := c.ch.Send(context.Background(), DisableEvent{Pid: caller.Pid, UserData: userData}); err != nil {
		return err
	}
	c.stopWorkerLocked()
	return nil
}

// Start begins a hop to networkID and blocks until the worker has handled the request.
// A nil error means the request is on the wire; the outcome arrives through listeners.
func (c *Cooperate) Start(ctx context.Context, caller Caller, userData int32, networkID string, startDeviceID int32) error {
	if err := c.checkPermission(caller); err != nil {
		return err
	}
	result := make(chan error, 1)
	ev := StartEvent{
		Pid:             caller.Pid,
		UserData:        userData,
		RemoteNetworkID: networkID,
		StartDeviceID:   startDeviceID,
		Result:          result,
	}
	if err := c.submit(ctx, ev, nil); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the current session. isUnchained also closes the link to the peer.
func (c *Cooperate) Stop(caller Caller, userData int32, isUnchained bool) error {
	if err := c.checkPermission(caller); err != nil {
		return err
	}
	return c.submit(context.Background(), StopEvent{Pid: caller.Pid, UserData: userData, IsUnchained: isUnchained}, nil)
}

func (c *Cooperate) RegisterListener(caller Caller) error {
	if err := c.checkPermission(caller); err != nil {
		return err
	}
	return c.submit(context.Background(), RegisterListenerEvent{Pid: caller.Pid},
		func() { c.reg.addListener(caller.Pid) })
}

func (c *Cooperate) UnregisterListener(caller Caller) error {
	if err := c.checkPermission(caller); err != nil {
		return err
	}
	return c.submit(context.Background(), UnregisterListenerEvent{Pid: caller.Pid},
		func() { c.reg.removeListener(caller.Pid) })
}

func (c *Cooperate) RegisterHotAreaListener(caller Caller) error {
	if err := c.checkPermission(caller); err != nil {
		return err
	}
	return c.submit(context.Background(), RegisterHotAreaListenerEvent{Pid: caller.Pid},
		func() { c.reg.addHotAreaListener(caller.Pid) })
}

func (c *Cooperate) UnregisterHotAreaListener(caller Caller) error {
	if err := c.checkPermission(caller); err != nil {
		return err
	}
	return c.submit(context.Background(), UnregisterHotAreaListenerEvent{Pid: caller.Pid},
		func() { c.reg.removeHotAreaListener(caller.Pid) })
}

// RegisterEventListener subscribes the caller to messages about one peer.
func (c *Cooperate) RegisterEventListener(caller Caller, networkID string) error {
	if err := c.checkPermission(caller); err != nil {
		return err
	}
	if networkID == "" {
		return CommonParameterError
	}
	return c.submit(context.Background(), RegisterEventListenerEvent{Pid: caller.Pid, NetworkID: networkID},
		func() { c.reg.addEventListener(networkID, caller.Pid) })
}

func (c *Cooperate) UnregisterEventListener(caller Caller, networkID string) error {
	if err := c.checkPermission(caller); err != nil {
		return err
	}
	return c.submit(context.Background(), UnregisterEventListenerEvent{Pid: caller.Pid, NetworkID: networkID},
		func() { c.reg.removeEventListener(networkID, caller.Pid) })
}

// GetCooperateState asks for the switch state of networkID. The answer is delivered
// through Notifier.OnCoordinationState.
func (c *Cooperate) GetCooperateState(caller Caller, userData int32, networkID string) error {
	if err := c.checkPermission(caller); err != nil {
		return err
	}
	return c.submit(context.Background(), GetCooperateStateEvent{Pid: caller.Pid, UserData: userData, NetworkID: networkID},
		func() { c.sm.reportCooperateState(caller.Pid, userData, networkID) })
}

// GetCooperateStateSync reads the switch state of a device from the profile store.
func (c *Cooperate) GetCooperateStateSync(caller Caller, udid string) (bool, error) {
	if err := c.checkPermission(caller); err != nil {
		return false, err
	}
	if udid == "" {
		return false, CommonParameterError
	}
	if c.profiles == nil {
		return false, RetErr
	}
	return c.profiles.CooperateSwitchByUdID(udid)
}

// AddObserver registers an in-process observer of state transitions.
func (c *Cooperate) AddObserver(o Observer) {
	_ = c.submit(context.Background(), AddObserverEvent{Observer: o}, func() { c.reg.addObserver(o) })
}

func (c *Cooperate) RemoveObserver(o Observer) {
	_ = c.submit(context.Background(), RemoveObserverEvent{Observer: o}, func() { c.reg.removeObserver(o) })
}

// HandlePointer feeds local pointer motion: hot-area crossings are reported and,
// while this device is the active source, positions are relayed to the peer.
func (c *Cooperate) HandlePointer(x, y int32) {
	c.hotMu.Lock()
	area, isEdge, changed := c.hot.Update(x, y)
	c.hotMu.Unlock()

	if changed {
		_ = c.submit(context.Background(), HotAreaEvent{X: x, Y: y, Area: area, IsEdge: isEdge}, nil)
	}
	if c.sm.Relaying() {
		_ = c.submit(context.Background(), PointerEvent{X: x, Y: y}, nil)
	}
}

// Dump writes a snapshot of the state machine to w. w must stay usable until the
// worker has written to it, even if ctx ends first.
func (c *Cooperate) Dump(ctx context.Context, w io.Writer) error {
	c.lifecycle.RLock()
	if !c.started {
		writeDump(w, c.sm.Snapshot())
		c.lifecycle.RUnlock()
		return nil
	}
	done := make(chan struct{})
	err := c.ch.Send(ctx, DumpEvent{W: w, Done: done})
	c.lifecycle.RUnlock()
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker, closes any open session and then the event channel.
// The enabled switch is kept. A closed Cooperate cannot be enabled again.
func (c *Cooperate) Close() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stopWorkerLocked()
	c.ch.Close()
	c.closed = true
	return nil
}

// busHandler feeds transport traffic into the channel.
type busHandler struct {
	c *Cooperate
}

func (h busHandler) OnPacket(from string, pkt dsoftbus.Packet) {
	_ = h.c.submit(context.Background(), RemotePacketEvent{From: from, Packet: pkt},
		func() { h.c.rejectWhileStopped(from, pkt) })
}

func (h busHandler) OnSessionClosed(networkID string) {
	_ = h.c.submit(context.Background(), SessionClosedEvent{NetworkID: networkID}, func() {})
}

// rejectWhileStopped answers requests that arrive with no worker running so the peer
// does not wait for its response timeout.
func (c *Cooperate) rejectWhileStopped(from string, pkt dsoftbus.Packet) {
	var ack dsoftbus.PacketType
	switch pkt.Type {
	case dsoftbus.PacketPrepareRequest:
		ack = dsoftbus.PacketPrepareAck
	case dsoftbus.PacketActivateRequest:
		ack = dsoftbus.PacketActivateAck
	default:
		return
	}
	reply := dsoftbus.Packet{Type: ack, Seq: pkt.Seq, Code: int32(ErrNotEnabled)}
	if err := c.bus.Send(from, reply); err != nil {
		c.log.Debugw("cooperate: reject failed", "to", from, "error", err)
	}
}
