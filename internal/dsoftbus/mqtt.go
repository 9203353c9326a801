package dsoftbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// DefaultTopicPrefix is prepended to the network id to form a device inbox topic.
const DefaultTopicPrefix = "devicestatus/softbus"

// MQTTConfig configures an MQTT-backed transport.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	NetworkID      string
	TopicPrefix    string
	ConnectTimeout time.Duration
}

// MQTTTransport links devices through a broker. Every device subscribes to its own
// inbox topic; sessions are opened optimistically since the broker offers no presence.
type MQTTTransport struct {
	client paho.Client
	local  string
	prefix string
	log    *zap.SugaredLogger

	mu       sync.Mutex
	handler  Handler
	sessions map[string]bool
	closed   bool
}

// NewMQTT connects to the broker and subscribes to the local inbox.
func NewMQTT(cfg MQTTConfig, log *zap.SugaredLogger) (*MQTTTransport, error) {
	if cfg.NetworkID == "" {
		return nil, fmt.Errorf("dsoftbus: network id required")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "devicestatus-softbus-" + cfg.NetworkID
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	t := newMQTTTransport(cfg.NetworkID, cfg.TopicPrefix, log)
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(t.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnw("softbus: connection lost", "err", err)
		})

	t.client = paho.NewClient(opts)
	token := t.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("softbus: connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("softbus: connect to broker: %w", err)
	}
	return t, nil
}

func newMQTTTransport(networkID, prefix string, log *zap.SugaredLogger) *MQTTTransport {
	return &MQTTTransport{
		local:    networkID,
		prefix:   strings.TrimSuffix(prefix, "/"),
		log:      log,
		sessions: make(map[string]bool),
	}
}

func (t *MQTTTransport) topicFor(networkID string) string {
	return t.prefix + "/" + networkID
}

// onConnect (re)subscribes after every connect, including automatic reconnects.
func (t *MQTTTransport) onConnect(c paho.Client) {
	topic := t.topicFor(t.local)
	token := c.Subscribe(topic, 1, t.onMessage)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			t.log.Warnw("softbus: subscribe timeout", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			t.log.Errorw("softbus: subscribe failed", "topic", topic, "err", err)
			return
		}
		t.log.Infow("softbus: listening", "topic", topic)
	}()
}

func (t *MQTTTransport) onMessage(_ paho.Client, msg paho.Message) {
	pkt, err := Unmarshal(msg.Payload())
	if err != nil {
		t.log.Warnw("softbus: dropping packet", "topic", msg.Topic(), "err", err)
		return
	}
	if pkt.From == "" || pkt.From == t.local {
		return
	}

	t.mu.Lock()
	h := t.handler
	switch pkt.Type {
	case PacketSessionOpen:
		t.sessions[pkt.From] = true
		t.mu.Unlock()
		t.log.Debugw("softbus: session opened by peer", "peer", pkt.From)
		return
	case PacketSessionClose:
		open := t.sessions[pkt.From]
		delete(t.sessions, pkt.From)
		t.mu.Unlock()
		if open && h != nil {
			h.OnSessionClosed(pkt.From)
		}
		return
	}
	open := t.sessions[pkt.From]
	t.mu.Unlock()

	if !open {
		t.log.Debugw("softbus: packet outside session", "peer", pkt.From, "type", pkt.Type)
		return
	}
	if h != nil {
		h.OnPacket(pkt.From, pkt)
	}
}

func (t *MQTTTransport) LocalNetworkID() string { return t.local }

func (t *MQTTTransport) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *MQTTTransport) OpenSession(ctx context.Context, networkID string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.sessions[networkID] {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if !t.client.IsConnectionOpen() {
		return fmt.Errorf("%w: broker not connected", ErrPeerUnreachable)
	}
	if err := t.publish(ctx, networkID, Packet{Type: PacketSessionOpen}); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
	}

	t.mu.Lock()
	t.sessions[networkID] = true
	t.mu.Unlock()
	return nil
}

func (t *MQTTTransport) CloseSession(networkID string) {
	t.mu.Lock()
	open := t.sessions[networkID]
	delete(t.sessions, networkID)
	t.mu.Unlock()
	if !open {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.publish(ctx, networkID, Packet{Type: PacketSessionClose}); err != nil {
		t.log.Warnw("softbus: close notify failed", "peer", networkID, "err", err)
	}
}

func (t *MQTTTransport) Send(networkID string, pkt Packet) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	open := t.sessions[networkID]
	t.mu.Unlock()
	if !open {
		return fmt.Errorf("%w: %s", ErrNoSession, networkID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.publish(ctx, networkID, pkt)
}

func (t *MQTTTransport) publish(ctx context.Context, networkID string, pkt Packet) error {
	pkt.From = t.local
	// QoS 1: protocol packets must not be lost silently.
	token := t.client.Publish(t.topicFor(networkID), 1, false, pkt.Marshal())
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("softbus: publish %s: %w", pkt.Type, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("softbus: publish %s: %w", pkt.Type, err)
	}
	return nil
}

// Close notifies open peers and disconnects from the broker.
func (t *MQTTTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	peers := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		peers = append(peers, id)
	}
	t.mu.Unlock()

	for _, id := range peers {
		t.CloseSession(id)
	}
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.client.Disconnect(1000)
	return nil
}
