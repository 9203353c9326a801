package dsoftbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protowire"
)

type recordingHandler struct {
	mu      sync.Mutex
	packets []Packet
	froms   []string
	closed  []string
}

func (h *recordingHandler) OnPacket(from string, pkt Packet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.froms = append(h.froms, from)
	h.packets = append(h.packets, pkt)
}

func (h *recordingHandler) OnSessionClosed(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, id)
}

func (h *recordingHandler) packetCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.packets)
}

func (h *recordingHandler) closedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.closed)
}

func TestPacketRoundTripNegativeValues(t *testing.T) {
	in := Packet{
		Type:          PacketActivateAck,
		Seq:           42,
		From:          "net-a",
		UdID:          "udid-a",
		Code:          -1,
		StartDeviceID: -7,
		X:             -20,
		Y:             2339,
	}
	out, err := Unmarshal(in.Marshal())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	b := Packet{Type: PacketPrepareRequest, Seq: 3}.Marshal()
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = protowire.AppendTag(b, 100, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)

	p, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, PacketPrepareRequest, p.Type)
	assert.Equal(t, uint64(3), p.Seq)
}

func TestUnmarshalErrors(t *testing.T) {
	_, err := Unmarshal(nil)
	assert.ErrorIs(t, err, ErrMalformed, "empty packet has no type")

	truncated := Packet{Type: PacketPrepareAck, From: "peer"}.Marshal()
	_, err = Unmarshal(truncated[:len(truncated)-2])
	assert.ErrorIs(t, err, ErrMalformed)
}

func attach(t *testing.T, bus *MemBus, id string) (*MemEndpoint, *recordingHandler) {
	t.Helper()
	e, err := bus.Attach(id)
	require.NoError(t, err)
	h := &recordingHandler{}
	e.SetHandler(h)
	t.Cleanup(func() { e.Close() })
	return e, h
}

func TestMemBusSessionAndDelivery(t *testing.T) {
	bus := NewMemBus()
	a, _ := attach(t, bus, "a")
	b, hb := attach(t, bus, "b")

	err := a.Send("b", Packet{Type: PacketPrepareRequest})
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, a.OpenSession(context.Background(), "b"))
	assert.True(t, b.HasSession("a"), "peer side of the session must be open")

	for i := 1; i <= 3; i++ {
		require.NoError(t, a.Send("b", Packet{Type: PacketPointerRelay, Seq: uint64(i), X: int32(i)}))
	}
	require.Eventually(t, func() bool { return hb.packetCount() == 3 }, time.Second, 5*time.Millisecond)

	hb.mu.Lock()
	defer hb.mu.Unlock()
	for i, p := range hb.packets {
		assert.Equal(t, uint64(i+1), p.Seq, "delivery order")
		assert.Equal(t, "a", p.From)
		assert.Equal(t, "a", hb.froms[i])
	}
}

func TestMemBusReplyOverPeerSession(t *testing.T) {
	bus := NewMemBus()
	a, ha := attach(t, bus, "a")
	b, _ := attach(t, bus, "b")

	require.NoError(t, a.OpenSession(context.Background(), "b"))
	require.NoError(t, b.Send("a", Packet{Type: PacketPrepareAck, OK: true}))
	require.Eventually(t, func() bool { return ha.packetCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestMemBusCloseSessionNotifiesPeer(t *testing.T) {
	bus := NewMemBus()
	a, ha := attach(t, bus, "a")
	b, hb := attach(t, bus, "b")

	require.NoError(t, a.OpenSession(context.Background(), "b"))
	a.CloseSession("b")
	require.Eventually(t, func() bool { return hb.closedCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, b.HasSession("a"))
	assert.Equal(t, 0, ha.closedCount(), "closing side is not notified")

	// Closing again is a no-op.
	a.CloseSession("b")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, hb.closedCount())
}

func TestMemBusUnreachablePeer(t *testing.T) {
	bus := NewMemBus()
	a, _ := attach(t, bus, "a")
	assert.ErrorIs(t, a.OpenSession(context.Background(), "nobody"), ErrPeerUnreachable)
	assert.ErrorIs(t, a.OpenSession(context.Background(), "a"), ErrPeerUnreachable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.OpenSession(ctx, "nobody"), context.Canceled)
}

func TestMemBusEndpointCloseNotifiesPeers(t *testing.T) {
	bus := NewMemBus()
	a, err := bus.Attach("a")
	require.NoError(t, err)
	_, hb := attach(t, bus, "b")

	require.NoError(t, a.OpenSession(context.Background(), "b"))
	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return hb.closedCount() == 1 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, a.Send("b", Packet{Type: PacketPointerRelay}), ErrClosed)
	_, err = bus.Attach("a")
	assert.NoError(t, err, "network id is free again after close")
}

func TestMemBusDuplicateAttach(t *testing.T) {
	bus := NewMemBus()
	attach(t, bus, "a")
	_, err := bus.Attach("a")
	assert.Error(t, err)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestMQTTInboundSessionLifecycle(t *testing.T) {
	tr := newMQTTTransport("local", DefaultTopicPrefix+"/", zap.NewNop().Sugar())
	h := &recordingHandler{}
	tr.SetHandler(h)
	inbox := tr.topicFor("local")
	assert.Equal(t, "devicestatus/softbus/local", inbox)

	deliver := func(p Packet) {
		tr.onMessage(nil, fakeMessage{topic: inbox, payload: p.Marshal()})
	}

	deliver(Packet{Type: PacketPrepareRequest, From: "peer"})
	assert.Equal(t, 0, h.packetCount(), "packets outside a session are dropped")

	deliver(Packet{Type: PacketSessionOpen, From: "peer"})
	deliver(Packet{Type: PacketPrepareRequest, From: "peer", Seq: 1})
	assert.Equal(t, 1, h.packetCount())

	deliver(Packet{Type: PacketPrepareRequest, From: "local"})
	assert.Equal(t, 1, h.packetCount(), "own packets are ignored")

	tr.onMessage(nil, fakeMessage{topic: inbox, payload: []byte{0xff}})
	assert.Equal(t, 1, h.packetCount(), "garbage is dropped")

	deliver(Packet{Type: PacketSessionClose, From: "peer"})
	assert.Equal(t, []string{"peer"}, h.closed)

	err := tr.Send("peer", Packet{Type: PacketPrepareAck})
	assert.ErrorIs(t, err, ErrNoSession)
}
