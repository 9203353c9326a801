package dbusapi

import (
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/sweeney/devicestatus/internal/cooperate"
)

// Emitter sends a signal. *dbus.Conn implements it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Signals implements cooperate.Notifier by broadcasting signals. The target pid is
// the first argument; clients filter on their own pid.
type Signals struct {
	emit Emitter
	log  *zap.SugaredLogger
}

var _ cooperate.Notifier = (*Signals)(nil)

// NewSignals emits through e.
func NewSignals(e Emitter, log *zap.SugaredLogger) *Signals {
	return &Signals{emit: e, log: log}
}

func (s *Signals) send(name string, values ...interface{}) {
	if err := s.emit.Emit(ObjectPath, Interface+"."+name, values...); err != nil {
		s.log.Warnw("dbusapi: emit signal", "signal", name, "error", err)
	}
}

// OnCoordinationMessage emits CoordinationMessage(pid, userData, networkID, msg, code).
func (s *Signals) OnCoordinationMessage(pid, userData int32, networkID string, msg cooperate.CoordinationMessage, code cooperate.ErrorCode) {
	s.send("CoordinationMessage", pid, userData, networkID, int32(msg), int32(code))
}

// OnCoordinationState emits CoordinationState(pid, userData, on).
func (s *Signals) OnCoordinationState(pid, userData int32, on bool) {
	s.send("CoordinationState", pid, userData, on)
}

// OnHotAreaMessage emits HotAreaMessage(pid, x, y, area, isEdge).
func (s *Signals) OnHotAreaMessage(pid, x, y int32, area cooperate.HotAreaType, isEdge bool) {
	s.send("HotAreaMessage", pid, x, y, int32(area), isEdge)
}
