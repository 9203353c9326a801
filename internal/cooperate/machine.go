package cooperate

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/devicestatus/internal/dsoftbus"
)

// DefaultResponseTimeout bounds how long the machine waits for a peer ack.
const DefaultResponseTimeout = 5 * time.Second

type machineConfig struct {
	transport dsoftbus.Transport
	profiles  Profiles
	notifier  Notifier
	injector  Injector
	registry  *registry
	localUdID string
	timeout   time.Duration
	// post delivers timer events back into the actor's channel.
	post func(Event)
	log  *zap.SugaredLogger
}

// StateMachine owns the cooperate session. It is confined to the actor goroutine;
// only relaying may be read elsewhere.
type StateMachine struct {
	machineConfig

	state State
	role  Role
	peer  string

	// owner is the pid whose Start or Stop drives the session; 0 when remote driven.
	owner         int32
	ownerData     int32
	startDeviceID int32
	unchained     bool

	seq      uint64
	awaitSeq uint64
	timer    *time.Timer

	relaying    atomic.Bool
	transitions uint64
	lastCode    ErrorCode
}

func newStateMachine(cfg machineConfig) *StateMachine {
	if cfg.timeout <= 0 {
		cfg.timeout = DefaultResponseTimeout
	}
	if cfg.registry == nil {
		cfg.registry = newRegistry()
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop().Sugar()
	}
	return &StateMachine{machineConfig: cfg}
}

// State returns the current state. Actor goroutine only.
func (m *StateMachine) State() State {
	return m.state
}

// Relaying reports whether pointer motion should be forwarded to the peer.
func (m *StateMachine) Relaying() bool {
	return m.relaying.Load()
}

// OnEvent performs one transition. Events are handled to completion, one at a time.
func (m *StateMachine) OnEvent(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case EnableEvent:
		m.enable(e)
	case DisableEvent:
		m.disable(e)
	case StartEvent:
		err := m.start(ctx, e)
		if err != nil {
			m.lastCode = codeOrErr(err)
		}
		if e.Result != nil {
			e.Result <- err
		}
	case StopEvent:
		m.stop(e)
	case GetCooperateStateEvent:
		m.reportCooperateState(e.Pid, e.UserData, e.NetworkID)
	case RegisterListenerEvent:
		m.registry.addListener(e.Pid)
	case UnregisterListenerEvent:
		m.registry.removeListener(e.Pid)
	case RegisterHotAreaListenerEvent:
		m.registry.addHotAreaListener(e.Pid)
	case UnregisterHotAreaListenerEvent:
		m.registry.removeHotAreaListener(e.Pid)
	case RegisterEventListenerEvent:
		m.registry.addEventListener(e.NetworkID, e.Pid)
	case UnregisterEventListenerEvent:
		m.registry.removeEventListener(e.NetworkID, e.Pid)
	case AddObserverEvent:
		m.registry.addObserver(e.Observer)
	case RemoveObserverEvent:
		m.registry.removeObserver(e.Observer)
	case DumpEvent:
		writeDump(e.W, m.Snapshot())
		if e.Done != nil {
			close(e.Done)
		}
	case RemotePacketEvent:
		m.onPacket(e.From, e.Packet)
	case SessionClosedEvent:
		m.onSessionClosed(e.NetworkID)
	case HotAreaEvent:
		m.onHotArea(e)
	case TimeoutEvent:
		m.onTimeout(e.Seq)
	case PointerEvent:
		m.relayPointer(e.X, e.Y)
	default:
		m.log.Warnw("cooperate: unhandled event", "event", ev.Name())
	}
}

func codeOrErr(err error) ErrorCode {
	return ErrorCode(CodeOf(err))
}

func (m *StateMachine) enable(e EnableEvent) {
	if m.state != StateDisabled {
		m.log.Debugw("cooperate: already enabled", "pid", e.Pid)
		return
	}
	m.transition(StateIdle)
	m.persistSwitch(true)
	m.notifyMessage(e.Pid, e.UserData, "", MsgPrepare, RetOK)
}

func (m *StateMachine) disable(e DisableEvent) {
	if m.state == StateDisabled {
		return
	}
	m.teardown()
	m.transition(StateDisabled)
	m.clearSession()
	m.persistSwitch(false)
	m.notifyMessage(e.Pid, e.UserData, "", MsgUnprepare, RetOK)
}

// shutdown runs when the worker quits. Sessions are closed; the enabled flag is kept.
func (m *StateMachine) shutdown() {
	m.teardown()
	if m.state != StateDisabled {
		m.transition(StateIdle)
	}
	m.clearSession()
}

// teardown best-effort ends the session with the peer.
func (m *StateMachine) teardown() {
	m.stopTimer()
	if m.peer == "" {
		return
	}
	switch m.state {
	case StatePreparing, StatePrepared, StateActivating, StateActivated:
		m.seq++
		pkt := dsoftbus.Packet{Type: dsoftbus.PacketDeactivateRequest, Seq: m.seq, UdID: m.localUdID, IsUnchained: true}
		if err := m.transport.Send(m.peer, pkt); err != nil {
			m.log.Debugw("cooperate: deactivate on teardown failed", "peer", m.peer, "error", err)
		}
	}
	m.transport.CloseSession(m.peer)
}

func (m *StateMachine) start(ctx context.Context, e StartEvent) error {
	if e.RemoteNetworkID == "" {
		return CommonParameterError
	}
	switch m.state {
	case StateDisabled:
		return ErrNotEnabled
	case StateIdle:
	case StatePrepared:
		if m.peer != e.RemoteNetworkID {
			return ErrBusy
		}
		m.role = RoleSource
		m.owner, m.ownerData, m.startDeviceID = e.Pid, e.UserData, e.StartDeviceID
		if err := m.request(dsoftbus.PacketActivateRequest, e.StartDeviceID, false); err != nil {
			m.log.Warnw("cooperate: activate request failed", "peer", m.peer, "error", err)
			m.closeAndReset()
			return ErrSessionFailed
		}
		m.transition(StateActivating)
		return nil
	default:
		return ErrBusy
	}

	openCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.transport.OpenSession(openCtx, e.RemoteNetworkID); err != nil {
		m.log.Warnw("cooperate: open session failed", "peer", e.RemoteNetworkID, "error", err)
		return ErrSessionFailed
	}
	m.peer, m.role = e.RemoteNetworkID, RoleSource
	m.owner, m.ownerData, m.startDeviceID = e.Pid, e.UserData, e.StartDeviceID
	if err := m.request(dsoftbus.PacketPrepareRequest, e.StartDeviceID, false); err != nil {
		m.log.Warnw("cooperate: prepare request failed", "peer", m.peer, "error", err)
		m.closeAndReset()
		return ErrSessionFailed
	}
	m.transition(StatePreparing)
	return nil
}

func (m *StateMachine) stop(e StopEvent) {
	switch m.state {
	case StatePreparing, StateActivating, StateActivated:
		m.owner, m.ownerData = e.Pid, e.UserData
		m.unchained = e.IsUnchained
		if err := m.request(dsoftbus.PacketDeactivateRequest, 0, e.IsUnchained); err != nil {
			m.log.Warnw("cooperate: deactivate request failed", "peer", m.peer, "error", err)
			m.abort(MsgDeactivateFail, ErrSessionFailed)
			return
		}
		m.transition(StateDeactivating)
	case StatePrepared:
		peer := m.peer
		if e.IsUnchained {
			m.closeAndReset()
		}
		m.notifyMessage(e.Pid, e.UserData, peer, MsgDeactivateSuccess, RetOK)
	case StateDeactivating:
		m.notifyMessage(e.Pid, e.UserData, m.peer, MsgDeactivateFail, ErrBusy)
	default:
		m.notifyMessage(e.Pid, e.UserData, "", MsgDeactivateFail, ErrNotActivated)
	}
}

func (m *StateMachine) onPacket(from string, pkt dsoftbus.Packet) {
	switch pkt.Type {
	case dsoftbus.PacketPrepareRequest:
		m.onPrepareRequest(from, pkt)
	case dsoftbus.PacketActivateRequest:
		m.onActivateRequest(from, pkt)
	case dsoftbus.PacketDeactivateRequest:
		m.onDeactivateRequest(from, pkt)
	case dsoftbus.PacketPrepareAck, dsoftbus.PacketActivateAck, dsoftbus.PacketDeactivateAck:
		m.onAck(from, pkt)
	case dsoftbus.PacketPointerRelay:
		if m.state == StateActivated && m.role == RoleSink && from == m.peer && m.injector != nil {
			m.injector.Inject(pkt.X, pkt.Y)
		}
	default:
		m.log.Debugw("cooperate: ignoring packet", "type", pkt.Type, "from", from)
	}
}

func (m *StateMachine) onPrepareRequest(from string, pkt dsoftbus.Packet) {
	switch {
	case m.state == StateDisabled:
		m.reply(from, dsoftbus.PacketPrepareAck, pkt.Seq, ErrNotEnabled)
	case m.state == StateIdle:
		m.peer, m.role = from, RoleSink
		m.owner, m.ownerData = 0, 0
		m.startDeviceID = pkt.StartDeviceID
		m.transition(StatePrepared)
		m.reply(from, dsoftbus.PacketPrepareAck, pkt.Seq, RetOK)
	case m.state == StatePrepared && m.peer == from:
		m.reply(from, dsoftbus.PacketPrepareAck, pkt.Seq, RetOK)
	default:
		m.reply(from, dsoftbus.PacketPrepareAck, pkt.Seq, ErrBusy)
	}
}

func (m *StateMachine) onActivateRequest(from string, pkt dsoftbus.Packet) {
	switch {
	case m.state == StatePrepared && m.peer == from:
		m.role = RoleSink
		m.startDeviceID = pkt.StartDeviceID
		m.transition(StateActivated)
		m.reply(from, dsoftbus.PacketActivateAck, pkt.Seq, RetOK)
		m.notifyMessage(m.owner, m.ownerData, from, MsgActivate, RetOK)
	case m.state == StateDisabled:
		m.reply(from, dsoftbus.PacketActivateAck, pkt.Seq, ErrNotEnabled)
	case m.peer != "" && m.peer != from:
		m.reply(from, dsoftbus.PacketActivateAck, pkt.Seq, ErrBusy)
	default:
		m.reply(from, dsoftbus.PacketActivateAck, pkt.Seq, ErrSessionFailed)
	}
}

func (m *StateMachine) onDeactivateRequest(from string, pkt dsoftbus.Packet) {
	if from != m.peer || m.state == StateIdle || m.state == StateDisabled {
		m.reply(from, dsoftbus.PacketDeactivateAck, pkt.Seq, ErrNotActivated)
		return
	}
	owner, data := m.owner, m.ownerData
	m.stopTimer()
	m.reply(from, dsoftbus.PacketDeactivateAck, pkt.Seq, RetOK)
	if pkt.IsUnchained {
		m.transition(StateIdle)
		m.clearSession()
	} else {
		m.transition(StatePrepared)
	}
	m.notifyMessage(owner, data, from, MsgDeactivateSuccess, RetOK)
}

func expectedAck(s State) dsoftbus.PacketType {
	switch s {
	case StatePreparing:
		return dsoftbus.PacketPrepareAck
	case StateActivating:
		return dsoftbus.PacketActivateAck
	case StateDeactivating:
		return dsoftbus.PacketDeactivateAck
	}
	return dsoftbus.PacketUnknown
}

func (m *StateMachine) onAck(from string, pkt dsoftbus.Packet) {
	if from != m.peer || m.awaitSeq == 0 || pkt.Seq != m.awaitSeq || pkt.Type != expectedAck(m.state) {
		m.log.Debugw("cooperate: stale ack", "type", pkt.Type, "seq", pkt.Seq, "from", from, "state", m.state)
		return
	}
	m.stopTimer()
	if !pkt.OK {
		code := codeFromWire(pkt.Code)
		if m.state == StateDeactivating {
			m.abort(MsgDeactivateFail, code)
		} else {
			m.abort(MsgActivateFail, code)
		}
		return
	}

	switch m.state {
	case StatePreparing:
		m.transition(StatePrepared)
		if err := m.request(dsoftbus.PacketActivateRequest, m.startDeviceID, false); err != nil {
			m.log.Warnw("cooperate: activate request failed", "peer", m.peer, "error", err)
			m.abort(MsgActivateFail, ErrSessionFailed)
			return
		}
		m.transition(StateActivating)
	case StateActivating:
		m.transition(StateActivated)
		m.notifyMessage(m.owner, m.ownerData, m.peer, MsgActivateSuccess, RetOK)
	case StateDeactivating:
		peer, owner, data := m.peer, m.owner, m.ownerData
		if m.unchained {
			m.closeAndReset()
		} else {
			m.transition(StatePrepared)
		}
		m.notifyMessage(owner, data, peer, MsgDeactivateSuccess, RetOK)
	}
}

func (m *StateMachine) onTimeout(seq uint64) {
	if m.awaitSeq == 0 || seq != m.awaitSeq {
		return
	}
	m.log.Warnw("cooperate: peer response timeout", "peer", m.peer, "state", m.state, "seq", seq)
	if m.state == StateDeactivating {
		m.abort(MsgDeactivateFail, ErrTimeout)
		return
	}
	m.abort(MsgActivateFail, ErrTimeout)
}

func (m *StateMachine) onSessionClosed(networkID string) {
	if m.peer == "" || networkID != m.peer {
		return
	}
	owner, data := m.owner, m.ownerData
	m.stopTimer()
	m.transition(StateIdle)
	m.clearSession()
	m.notifyMessage(owner, data, networkID, MsgSessionClosed, RetOK)
}

func (m *StateMachine) onHotArea(e HotAreaEvent) {
	if m.notifier == nil {
		return
	}
	for _, pid := range m.registry.hotAreaListeners() {
		m.notifier.OnHotAreaMessage(pid, e.X, e.Y, e.Area, e.IsEdge)
	}
}

func (m *StateMachine) relayPointer(x, y int32) {
	if m.state != StateActivated || m.role != RoleSource {
		return
	}
	pkt := dsoftbus.Packet{Type: dsoftbus.PacketPointerRelay, X: x, Y: y}
	if err := m.transport.Send(m.peer, pkt); err != nil {
		m.log.Debugw("cooperate: pointer relay failed", "peer", m.peer, "error", err)
	}
}

func (m *StateMachine) reportCooperateState(pid, userData int32, networkID string) {
	on := false
	if m.profiles != nil {
		v, err := m.profiles.CooperateSwitchByNetworkID(networkID)
		if err != nil {
			m.log.Debugw("cooperate: profile lookup failed", "network_id", networkID, "error", err)
		} else {
			on = v
		}
	}
	if m.notifier != nil {
		m.notifier.OnCoordinationState(pid, userData, on)
	}
}

// abort closes the session and reports msg with code to everyone interested.
func (m *StateMachine) abort(msg CoordinationMessage, code ErrorCode) {
	peer, owner, data := m.peer, m.owner, m.ownerData
	m.lastCode = code
	m.closeAndReset()
	m.notifyMessage(owner, data, peer, msg, code)
}

func (m *StateMachine) closeAndReset() {
	m.stopTimer()
	if m.peer != "" {
		m.transport.CloseSession(m.peer)
	}
	m.transition(StateIdle)
	m.clearSession()
}

func (m *StateMachine) clearSession() {
	m.peer, m.role = "", RoleNone
	m.owner, m.ownerData, m.startDeviceID = 0, 0, 0
	m.unchained = false
}

// request sends a packet that expects an ack and arms the response timer.
func (m *StateMachine) request(t dsoftbus.PacketType, startDeviceID int32, unchained bool) error {
	m.stopTimer()
	m.seq++
	pkt := dsoftbus.Packet{
		Type:          t,
		Seq:           m.seq,
		UdID:          m.localUdID,
		StartDeviceID: startDeviceID,
		IsUnchained:   unchained,
	}
	if err := m.transport.Send(m.peer, pkt); err != nil {
		return err
	}
	m.awaitSeq = m.seq
	m.armTimer(m.seq)
	return nil
}

func (m *StateMachine) reply(to string, t dsoftbus.PacketType, seq uint64, code ErrorCode) {
	pkt := dsoftbus.Packet{Type: t, Seq: seq, UdID: m.localUdID, OK: code == RetOK, Code: int32(code)}
	if err := m.transport.Send(to, pkt); err != nil {
		m.log.Warnw("cooperate: reply failed", "type", t, "to", to, "error", err)
	}
}

func (m *StateMachine) armTimer(seq uint64) {
	if m.post == nil {
		return
	}
	post := m.post
	m.timer = time.AfterFunc(m.timeout, func() { post(TimeoutEvent{Seq: seq}) })
}

func (m *StateMachine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.awaitSeq = 0
}

func (m *StateMachine) transition(to State) {
	if to == m.state {
		return
	}
	change := StateChange{From: m.state, To: to, Role: m.role, NetworkID: m.peer}
	m.state = to
	m.transitions++
	m.relaying.Store(to == StateActivated && m.role == RoleSource)
	m.log.Infow("cooperate: state changed", "from", change.From, "to", to, "role", m.role, "peer", m.peer)
	for _, o := range m.registry.observerList() {
		o.OnStateChanged(change)
	}
}

func (m *StateMachine) persistSwitch(on bool) {
	if m.profiles == nil || m.localUdID == "" {
		return
	}
	if err := m.profiles.SetCooperateSwitch(m.localUdID, m.transport.LocalNetworkID(), on); err != nil {
		m.log.Warnw("cooperate: persisting switch failed", "on", on, "error", err)
	}
}

// notifyMessage reports to pid (0 for none) with its userData, then to every other
// listener of networkID with zero userData.
func (m *StateMachine) notifyMessage(pid, userData int32, networkID string, msg CoordinationMessage, code ErrorCode) {
	if m.notifier == nil {
		return
	}
	if pid != 0 {
		m.notifier.OnCoordinationMessage(pid, userData, networkID, msg, code)
	}
	for _, other := range m.registry.recipients(networkID, pid) {
		m.notifier.OnCoordinationMessage(other, 0, networkID, msg, code)
	}
}
