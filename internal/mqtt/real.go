package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Config describes the broker connection.
type Config struct {
	Broker     string
	ClientID   string
	Device     string
	BufferSize int
}

// RealPublisher publishes to an actual MQTT broker. Messages published while the
// connection is down are held in a ring buffer and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	log    *zap.SugaredLogger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher connected to the given broker. If the broker
// is not reachable within the connect timeout the publisher keeps retrying in the
// background and buffers until then.
func NewRealPublisher(cfg Config, log *zap.SugaredLogger) (*RealPublisher, error) {
	p := &RealPublisher{
		topics: NewTopics(cfg.Device),
		log:    log,
		buf:    newRingBuffer(cfg.BufferSize, log),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnw("mqtt: connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warnw("mqtt: broker not reachable yet, buffering", "broker", cfg.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newRealPublisher(client paho.Client, device string, bufferSize int, log *zap.SugaredLogger) *RealPublisher {
	return &RealPublisher{
		client: client,
		topics: NewTopics(device),
		log:    log,
		buf:    newRingBuffer(bufferSize, log),
	}
}

// onConnect replays everything buffered while offline, oldest first.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()

	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	p.log.Infow("mqtt: connected", "replayed", len(pending))
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Publish sends a gesture result. QoS 0, not retained.
func (p *RealPublisher) Publish(event MotionEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(bufferedMsg{topic: p.topics.Motion, payload: payload})
}

// PublishCooperate sends a cooperate transition. QoS 1, retained so late
// subscribers see the current state.
func (p *RealPublisher) PublishCooperate(event CooperateEvent) error {
	payload, err := FormatCooperatePayload(event)
	if err != nil {
		return fmt.Errorf("format cooperate payload: %w", err)
	}
	return p.send(bufferedMsg{topic: p.topics.Cooperate, payload: payload, qos: 1, retained: true})
}

// PublishSystem sends a system lifecycle event. QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered is the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
