package cooperate

import (
	"io"

	"github.com/davecgh/go-spew/spew"
)

// Snapshot is a copy of the machine's state for diagnostics.
type Snapshot struct {
	State            string
	Role             string
	Peer             string
	Owner            int32
	Seq              uint64
	AwaitSeq         uint64
	Relaying         bool
	Transitions      uint64
	LastCode         int32
	Listeners        []int32
	HotAreaListeners []int32
	EventListeners   map[string][]int32
	Observers        int
}

// Snapshot copies the machine state. Actor goroutine only, or while the worker is stopped.
func (m *StateMachine) Snapshot() Snapshot {
	reg := m.registry.snapshot()
	return Snapshot{
		State:            m.state.String(),
		Role:             m.role.String(),
		Peer:             m.peer,
		Owner:            m.owner,
		Seq:              m.seq,
		AwaitSeq:         m.awaitSeq,
		Relaying:         m.relaying.Load(),
		Transitions:      m.transitions,
		LastCode:         int32(m.lastCode),
		Listeners:        reg.Listeners,
		HotAreaListeners: reg.HotAreaListeners,
		EventListeners:   reg.EventListeners,
		Observers:        reg.Observers,
	}
}

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

func writeDump(w io.Writer, s Snapshot) {
	if w == nil {
		return
	}
	dumpConfig.Fdump(w, s)
}
