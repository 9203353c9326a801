package dbusapi

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/devicestatus/internal/cooperate"
	"github.com/sweeney/devicestatus/internal/dsoftbus"
	"github.com/sweeney/devicestatus/internal/permission"
)

type emitted struct {
	path   dbus.ObjectPath
	name   string
	values []interface{}
}

type fakeEmitter struct {
	mu      sync.Mutex
	signals []emitted
	err     error
}

func (f *fakeEmitter) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, emitted{path, name, values})
	return f.err
}

func (f *fakeEmitter) find(name string) (emitted, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.signals {
		if s.name == name {
			return s, true
		}
	}
	return emitted{}, false
}

type fakeCreds map[string]cooperate.Caller

func (f fakeCreds) Caller(sender string) (cooperate.Caller, error) {
	c, ok := f[sender]
	if !ok {
		return cooperate.Caller{}, fmt.Errorf("unknown sender %s", sender)
	}
	return c, nil
}

const (
	systemSender = dbus.Sender(":1.10")
	appSender    = dbus.Sender(":1.11")
)

func newService(t *testing.T) (*Service, *fakeEmitter) {
	t.Helper()
	bus := dsoftbus.NewMemBus()
	ep, err := bus.Attach("node-a")
	require.NoError(t, err)

	em := &fakeEmitter{}
	coop, err := cooperate.New(cooperate.Options{
		Transport:       ep,
		Permissions:     permission.NewStatic([]uint32{0}, []uint32{0}),
		Notifier:        NewSignals(em, zap.NewNop().Sugar()),
		ResponseTimeout: time.Second,
		ScreenWidth:     1920,
		ScreenHeight:    1080,
		Log:             zap.NewNop().Sugar(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		coop.Close()
		ep.Close()
	})

	creds := fakeCreds{
		string(systemSender): {TokenID: 0, Pid: 42},
		string(appSender):    {TokenID: 1000, Pid: 43},
	}
	return NewService(coop, creds, time.Second, zap.NewNop().Sugar()), em
}

func TestEnableEmitsPrepare(t *testing.T) {
	svc, em := newService(t)

	require.Nil(t, svc.Enable(systemSender, 7))

	require.Eventually(t, func() bool {
		_, ok := em.find(Interface + ".CoordinationMessage")
		return ok
	}, time.Second, 5*time.Millisecond)

	s, _ := em.find(Interface + ".CoordinationMessage")
	assert.Equal(t, ObjectPath, s.path)
	assert.Equal(t, []interface{}{int32(42), int32(7), "", int32(cooperate.MsgPrepare), int32(0)}, s.values)
}

func TestNonSystemCallerRejected(t *testing.T) {
	svc, _ := newService(t)

	busErr := svc.Enable(appSender, 0)
	require.NotNil(t, busErr)
	assert.Equal(t, ErrorPrefix+"202", busErr.Name)
}

func TestUnknownSender(t *testing.T) {
	svc, _ := newService(t)

	busErr := svc.RegisterListener(dbus.Sender(":1.99"))
	require.NotNil(t, busErr)
	assert.Equal(t, "org.freedesktop.DBus.Error.Failed", busErr.Name)
}

func TestStartParameterError(t *testing.T) {
	svc, _ := newService(t)
	require.Nil(t, svc.Enable(systemSender, 0))

	busErr := svc.Start(systemSender, 1, "", 0)
	require.NotNil(t, busErr)
	assert.Equal(t, ErrorPrefix+"401", busErr.Name)
}

func TestStartUnreachablePeer(t *testing.T) {
	svc, _ := newService(t)
	require.Nil(t, svc.Enable(systemSender, 0))

	busErr := svc.Start(systemSender, 1, "node-missing", 0)
	require.NotNil(t, busErr)
	assert.Equal(t, fmt.Sprintf("%s%d", ErrorPrefix, int32(cooperate.ErrSessionFailed)), busErr.Name)
}

func TestRegisterEventListenerRequiresNetworkID(t *testing.T) {
	svc, _ := newService(t)

	busErr := svc.RegisterEventListener(systemSender, "")
	require.NotNil(t, busErr)
	assert.Equal(t, ErrorPrefix+"401", busErr.Name)
	assert.Nil(t, svc.RegisterEventListener(systemSender, "node-b"))
	assert.Nil(t, svc.UnregisterEventListener(systemSender, "node-b"))
}

func TestGetCooperateStateSignal(t *testing.T) {
	svc, em := newService(t)

	require.Nil(t, svc.GetCooperateState(systemSender, 3, "node-b"))

	// worker not running: answered directly
	s, ok := em.find(Interface + ".CoordinationState")
	require.True(t, ok)
	assert.Equal(t, int32(42), s.values[0])
	assert.Equal(t, int32(3), s.values[1])
}

func TestGetCooperateStateSyncWithoutStore(t *testing.T) {
	svc, _ := newService(t)

	_, busErr := svc.GetCooperateStateSync(systemSender, "")
	require.NotNil(t, busErr)
	assert.Equal(t, ErrorPrefix+"401", busErr.Name)

	_, busErr = svc.GetCooperateStateSync(systemSender, "udid-b")
	require.NotNil(t, busErr)
	assert.Equal(t, ErrorPrefix+"-1", busErr.Name)
}

func TestDump(t *testing.T) {
	svc, _ := newService(t)
	require.Nil(t, svc.Enable(systemSender, 0))

	out, busErr := svc.Dump()
	require.Nil(t, busErr)
	assert.Contains(t, out, "IDLE")
}

func TestToError(t *testing.T) {
	assert.Nil(t, toError(nil))

	e := toError(cooperate.ErrBusy)
	require.NotNil(t, e)
	assert.Equal(t, ErrorPrefix+"4002", e.Name)
	assert.Equal(t, []interface{}{cooperate.ErrBusy.Error()}, e.Body)

	assert.Equal(t, ErrorPrefix+"-1", toError(errors.New("boom")).Name)
}

func TestSignalsHotArea(t *testing.T) {
	em := &fakeEmitter{err: errors.New("bus gone")}
	s := NewSignals(em, zap.NewNop().Sugar())

	// emit errors are logged, not returned
	s.OnHotAreaMessage(9, 0, 500, cooperate.HotAreaLeft, true)

	got, ok := em.find(Interface + ".HotAreaMessage")
	require.True(t, ok)
	assert.Equal(t, []interface{}{int32(9), int32(0), int32(500), int32(cooperate.HotAreaLeft), true}, got.values)
}
