package cooperate

import "fmt"

// State is the cooperate session state owned by the actor.
type State int

const (
	StateDisabled State = iota
	StateIdle
	StatePreparing
	StatePrepared
	StateActivating
	StateActivated
	StateDeactivating
)

var stateNames = [...]string{
	StateDisabled:     "DISABLED",
	StateIdle:         "IDLE",
	StatePreparing:    "PREPARING",
	StatePrepared:     "PREPARED",
	StateActivating:   "ACTIVATING",
	StateActivated:    "ACTIVATED",
	StateDeactivating: "DEACTIVATING",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Role is this device's side of a session.
type Role int

const (
	RoleNone Role = iota
	RoleSource
	RoleSink
)

func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleSink:
		return "sink"
	}
	return "none"
}

// CoordinationMessage is the progress notification delivered to listeners.
type CoordinationMessage int32

const (
	MsgPrepare CoordinationMessage = iota
	MsgUnprepare
	MsgActivate
	MsgActivateSuccess
	MsgActivateFail
	MsgDeactivateSuccess
	MsgDeactivateFail
	MsgSessionClosed
)

func (m CoordinationMessage) String() string {
	switch m {
	case MsgPrepare:
		return "PREPARE"
	case MsgUnprepare:
		return "UNPREPARE"
	case MsgActivate:
		return "ACTIVATE"
	case MsgActivateSuccess:
		return "ACTIVATE_SUCCESS"
	case MsgActivateFail:
		return "ACTIVATE_FAIL"
	case MsgDeactivateSuccess:
		return "DEACTIVATE_SUCCESS"
	case MsgDeactivateFail:
		return "DEACTIVATE_FAIL"
	case MsgSessionClosed:
		return "SESSION_CLOSED"
	}
	return fmt.Sprintf("CoordinationMessage(%d)", int32(m))
}

// HotAreaType is the screen edge band the pointer is in.
type HotAreaType int32

const (
	HotAreaNone HotAreaType = iota - 1
	HotAreaLeft
	HotAreaRight
	HotAreaTop
	HotAreaBottom
)

func (h HotAreaType) String() string {
	switch h {
	case HotAreaLeft:
		return "LEFT"
	case HotAreaRight:
		return "RIGHT"
	case HotAreaTop:
		return "TOP"
	case HotAreaBottom:
		return "BOTTOM"
	}
	return "NONE"
}

// Notifier is the outbound IPC surface: it delivers notifications to client processes.
// Calls are made on the actor goroutine and must not block for long or call back into
// Cooperate synchronously.
type Notifier interface {
	OnCoordinationMessage(pid, userData int32, networkID string, msg CoordinationMessage, code ErrorCode)
	OnCoordinationState(pid, userData int32, on bool)
	OnHotAreaMessage(pid, x, y int32, area HotAreaType, isEdge bool)
}

// StateChange is an immutable snapshot of one transition.
type StateChange struct {
	From      State
	To        State
	Role      Role
	NetworkID string
}

// Observer receives state transitions in process. Same calling rules as Notifier.
// Observers are compared with == on removal, so implementations must be comparable
// (pointer receivers are).
type Observer interface {
	OnStateChanged(StateChange)
}

// Injector replays pointer positions relayed from the source device.
type Injector interface {
	Inject(x, y int32)
}

// Profiles is the device profile collaborator.
type Profiles interface {
	SetCooperateSwitch(udid, networkID string, on bool) error
	CooperateSwitchByUdID(udid string) (bool, error)
	CooperateSwitchByNetworkID(networkID string) (bool, error)
}

// Caller identifies the process behind a request.
type Caller struct {
	TokenID uint32
	Pid     int32
}
