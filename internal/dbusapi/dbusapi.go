// Package dbusapi exports the cooperate request surface on D-Bus and turns
// cooperate notifications into signals.
package dbusapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/sweeney/devicestatus/internal/cooperate"
)

const (
	ServiceName = "org.devicestatus.Cooperate1"
	ObjectPath  = dbus.ObjectPath("/org/devicestatus/Cooperate1")
	Interface   = "org.devicestatus.Cooperate1"

	// ErrorPrefix names D-Bus errors; the cooperate code is appended.
	ErrorPrefix = Interface + ".Error."
)

// Cooperator is the part of cooperate.Cooperate exported on the bus.
type Cooperator interface {
	Enable(caller cooperate.Caller, userData int32) error
	Disable(caller cooperate.Caller, userData int32) error
	Start(ctx context.Context, caller cooperate.Caller, userData int32, networkID string, startDeviceID int32) error
	Stop(caller cooperate.Caller, userData int32, isUnchained bool) error
	RegisterListener(caller cooperate.Caller) error
	UnregisterListener(caller cooperate.Caller) error
	RegisterHotAreaListener(caller cooperate.Caller) error
	UnregisterHotAreaListener(caller cooperate.Caller) error
	RegisterEventListener(caller cooperate.Caller, networkID string) error
	UnregisterEventListener(caller cooperate.Caller, networkID string) error
	GetCooperateState(caller cooperate.Caller, userData int32, networkID string) error
	GetCooperateStateSync(caller cooperate.Caller, udid string) (bool, error)
	Dump(ctx context.Context, w io.Writer) error
}

// Credentials resolves the calling process of a bus message.
type Credentials interface {
	Caller(sender string) (cooperate.Caller, error)
}

// Service is the exported object. Method names and signatures form the bus API.
type Service struct {
	coop         Cooperator
	creds        Credentials
	startTimeout time.Duration
	log          *zap.SugaredLogger
}

// NewService creates the exported object. startTimeout bounds how long Start waits
// for the request to reach the worker.
func NewService(coop Cooperator, creds Credentials, startTimeout time.Duration, log *zap.SugaredLogger) *Service {
	if startTimeout <= 0 {
		startTimeout = cooperate.DefaultResponseTimeout
	}
	return &Service{coop: coop, creds: creds, startTimeout: startTimeout, log: log}
}

// toError maps a cooperate error onto a named D-Bus error carrying the numeric code.
func toError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	code := cooperate.CodeOf(err)
	return dbus.NewError(fmt.Sprintf("%s%d", ErrorPrefix, code), []interface{}{err.Error()})
}

func (s *Service) caller(sender dbus.Sender) (cooperate.Caller, *dbus.Error) {
	c, err := s.creds.Caller(string(sender))
	if err != nil {
		s.log.Warnw("dbusapi: resolve caller", "sender", string(sender), "error", err)
		return cooperate.Caller{}, dbus.MakeFailedError(err)
	}
	return c, nil
}

func (s *Service) call(sender dbus.Sender, method string, fn func(cooperate.Caller) error) *dbus.Error {
	c, busErr := s.caller(sender)
	if busErr != nil {
		return busErr
	}
	if err := fn(c); err != nil {
		s.log.Debugw("dbusapi: request failed", "method", method, "pid", c.Pid, "error", err)
		return toError(err)
	}
	return nil
}

func (s *Service) Enable(sender dbus.Sender, userData int32) *dbus.Error {
	return s.call(sender, "Enable", func(c cooperate.Caller) error {
		return s.coop.Enable(c, userData)
	})
}

func (s *Service) Disable(sender dbus.Sender, userData int32) *dbus.Error {
	return s.call(sender, "Disable", func(c cooperate.Caller) error {
		return s.coop.Disable(c, userData)
	})
}

func (s *Service) Start(sender dbus.Sender, userData int32, networkID string, startDeviceID int32) *dbus.Error {
	return s.call(sender, "Start", func(c cooperate.Caller) error {
		ctx, cancel := context.WithTimeout(context.Background(), s.startTimeout)
		defer cancel()
		err := s.coop.Start(ctx, c, userData, networkID, startDeviceID)
		if errors.Is(err, context.DeadlineExceeded) {
			return cooperate.ErrTimeout
		}
		return err
	})
}

func (s *Service) Stop(sender dbus.Sender, userData int32, isUnchained bool) *dbus.Error {
	return s.call(sender, "Stop", func(c cooperate.Caller) error {
		return s.coop.Stop(c, userData, isUnchained)
	})
}

func (s *Service) RegisterListener(sender dbus.Sender) *dbus.Error {
	return s.call(sender, "RegisterListener", s.coop.RegisterListener)
}

func (s *Service) UnregisterListener(sender dbus.Sender) *dbus.Error {
	return s.call(sender, "UnregisterListener", s.coop.UnregisterListener)
}

func (s *Service) RegisterHotAreaListener(sender dbus.Sender) *dbus.Error {
	return s.call(sender, "RegisterHotAreaListener", s.coop.RegisterHotAreaListener)
}

func (s *Service) UnregisterHotAreaListener(sender dbus.Sender) *dbus.Error {
	return s.call(sender, "UnregisterHotAreaListener", s.coop.UnregisterHotAreaListener)
}

func (s *Service) RegisterEventListener(sender dbus.Sender, networkID string) *dbus.Error {
	return s.call(sender, "RegisterEventListener", func(c cooperate.Caller) error {
		return s.coop.RegisterEventListener(c, networkID)
	})
}

func (s *Service) UnregisterEventListener(sender dbus.Sender, networkID string) *dbus.Error {
	return s.call(sender, "UnregisterEventListener", func(c cooperate.Caller) error {
		return s.coop.UnregisterEventListener(c, networkID)
	})
}

// GetCooperateState answers through the CoordinationState signal.
func (s *Service) GetCooperateState(sender dbus.Sender, userData int32, networkID string) *dbus.Error {
	return s.call(sender, "GetCooperateState", func(c cooperate.Caller) error {
		return s.coop.GetCooperateState(c, userData, networkID)
	})
}

func (s *Service) GetCooperateStateSync(sender dbus.Sender, udid string) (bool, *dbus.Error) {
	var on bool
	busErr := s.call(sender, "GetCooperateStateSync", func(c cooperate.Caller) error {
		var err error
		on, err = s.coop.GetCooperateStateSync(c, udid)
		return err
	})
	return on, busErr
}

// Dump returns the state machine dump as text. Not permission checked beyond
// the bus policy.
func (s *Service) Dump() (string, *dbus.Error) {
	var b strings.Builder
	ctx, cancel := context.WithTimeout(context.Background(), s.startTimeout)
	defer cancel()
	if err := s.coop.Dump(ctx, &b); err != nil {
		return "", toError(err)
	}
	return b.String(), nil
}

// Export requests the well-known name and exports svc on conn.
func Export(conn *dbus.Conn, svc *Service) error {
	if err := conn.Export(svc, ObjectPath, Interface); err != nil {
		return fmt.Errorf("export %s: %w", ObjectPath, err)
	}
	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", ServiceName)
	}
	return nil
}

// Connect opens the named bus: "system" or "session".
func Connect(bus string) (*dbus.Conn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch bus {
	case "system":
		conn, err = dbus.SystemBus()
	case "session", "":
		conn, err = dbus.SessionBus()
	default:
		return nil, fmt.Errorf("unknown bus %q", bus)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s bus: %w", bus, err)
	}
	return conn, nil
}
