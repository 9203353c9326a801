package cooperate

import (
	"io"

	"github.com/sweeney/devicestatus/internal/dsoftbus"
)

// Event is a message consumed by the actor. Each public call creates one event.
type Event interface {
	Name() string
}

type (
	NoopEvent struct{}
	QuitEvent struct{}

	AddObserverEvent    struct{ Observer Observer }
	RemoveObserverEvent struct{ Observer Observer }

	RegisterListenerEvent          struct{ Pid int32 }
	UnregisterListenerEvent        struct{ Pid int32 }
	RegisterHotAreaListenerEvent   struct{ Pid int32 }
	UnregisterHotAreaListenerEvent struct{ Pid int32 }

	EnableEvent struct {
		TokenID  uint32
		Pid      int32
		UserData int32
	}
	DisableEvent struct {
		Pid      int32
		UserData int32
	}

	// StartEvent carries a one-shot result channel the actor fulfils exactly once.
	StartEvent struct {
		Pid             int32
		UserData        int32
		RemoteNetworkID string
		StartDeviceID   int32
		Result          chan<- error
	}
	StopEvent struct {
		Pid         int32
		UserData    int32
		IsUnchained bool
	}

	GetCooperateStateEvent struct {
		Pid       int32
		UserData  int32
		NetworkID string
	}
	RegisterEventListenerEvent struct {
		Pid       int32
		NetworkID string
	}
	UnregisterEventListenerEvent struct {
		Pid       int32
		NetworkID string
	}

	// DumpEvent closes Done after writing.
	DumpEvent struct {
		W    io.Writer
		Done chan<- struct{}
	}

	RemotePacketEvent struct {
		From   string
		Packet dsoftbus.Packet
	}
	SessionClosedEvent struct{ NetworkID string }
	HotAreaEvent       struct {
		X, Y   int32
		Area   HotAreaType
		IsEdge bool
	}
	TimeoutEvent struct{ Seq uint64 }
	PointerEvent struct{ X, Y int32 }
)

func (NoopEvent) Name() string                      { return "noop" }
func (QuitEvent) Name() string                      { return "quit" }
func (AddObserverEvent) Name() string               { return "add-observer" }
func (RemoveObserverEvent) Name() string            { return "remove-observer" }
func (RegisterListenerEvent) Name() string          { return "register-listener" }
func (UnregisterListenerEvent) Name() string        { return "unregister-listener" }
func (RegisterHotAreaListenerEvent) Name() string   { return "register-hotarea-listener" }
func (UnregisterHotAreaListenerEvent) Name() string { return "unregister-hotarea-listener" }
func (EnableEvent) Name() string                    { return "enable" }
func (DisableEvent) Name() string                   { return "disable" }
func (StartEvent) Name() string                     { return "start" }
func (StopEvent) Name() string                      { return "stop" }
func (GetCooperateStateEvent) Name() string         { return "get-cooperate-state" }
func (RegisterEventListenerEvent) Name() string     { return "register-event-listener" }
func (UnregisterEventListenerEvent) Name() string   { return "unregister-event-listener" }
func (DumpEvent) Name() string                      { return "dump" }
func (RemotePacketEvent) Name() string              { return "remote-packet" }
func (SessionClosedEvent) Name() string             { return "session-closed" }
func (HotAreaEvent) Name() string                   { return "hotarea" }
func (TimeoutEvent) Name() string                   { return "timeout" }
func (PointerEvent) Name() string                   { return "pointer" }
