// Package mqtt publishes gesture and cooperate events to an MQTT broker, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/devicestatus/internal/motion"
)

// TopicRoot prefixes every topic.
const TopicRoot = "devicestatus"

// Topics are the per-device topics.
type Topics struct {
	Motion    string
	Cooperate string
	System    string
}

// NewTopics returns devicestatus/<device>/{motion,cooperate,system}.
func NewTopics(device string) Topics {
	base := TopicRoot + "/" + device + "/"
	return Topics{
		Motion:    base + "motion",
		Cooperate: base + "cooperate",
		System:    base + "system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a gesture result.
	// Returns error if publishing fails (should not crash the process).
	Publish(event MotionEvent) error

	// PublishCooperate sends a cooperate state transition.
	PublishCooperate(event CooperateEvent) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// MotionEvent is one gesture result with the time it was recognised.
type MotionEvent struct {
	Timestamp time.Time
	Result    motion.Result
}

// CooperateEvent is one cooperate state transition.
type CooperateEvent struct {
	Timestamp time.Time
	From      string
	To        string
	Role      string
	Peer      string
}

// SystemEvent represents a system lifecycle event (startup, shutdown, offline).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason    string // e.g., "SIGTERM" (shutdown only)
	Config    *SystemConfig
	Retained  bool
}

// SystemConfig is the runtime configuration announced at startup.
type SystemConfig struct {
	PollMs    int64    `json:"poll_ms"`
	Broker    string   `json:"broker"`
	Gestures  []string `json:"gestures"`
	Cooperate bool     `json:"cooperate"`
}

// Payload is the message body on the motion topic.
type Payload struct {
	Motion MotionPayload `json:"motion"`
}

// MotionPayload contains the gesture result fields.
type MotionPayload struct {
	Timestamp string  `json:"timestamp"`
	Type      string  `json:"type"`
	Value     string  `json:"value"`
	Status    string  `json:"status"`
	Action    string  `json:"action"`
	Rotate    string  `json:"rotate"`
	Move      float64 `json:"move"`
}

// FormatPayload creates the JSON payload for a gesture result.
func FormatPayload(event MotionEvent) ([]byte, error) {
	r := event.Result
	return json.Marshal(Payload{
		Motion: MotionPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Type:      r.Type.String(),
			Value:     r.Value.String(),
			Status:    r.Status.String(),
			Action:    r.Action.String(),
			Rotate:    r.RotateAction.String(),
			Move:      r.Move,
		},
	})
}

// CooperatePayload is the message body on the cooperate topic.
type CooperatePayload struct {
	Cooperate CooperatePayloadInner `json:"cooperate"`
}

// CooperatePayloadInner contains the transition details.
type CooperatePayloadInner struct {
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
	Role      string `json:"role"`
	Peer      string `json:"peer,omitempty"`
}

// FormatCooperatePayload creates the JSON payload for a cooperate transition.
func FormatCooperatePayload(event CooperateEvent) ([]byte, error) {
	return json.Marshal(CooperatePayload{
		Cooperate: CooperatePayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			From:      event.From,
			To:        event.To,
			Role:      event.Role,
			Peer:      event.Peer,
		},
	})
}

// SystemPayload is the message body on the system topic.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string        `json:"timestamp"`
	Event     string        `json:"event"`
	Reason    string        `json:"reason,omitempty"`
	Config    *SystemConfig `json:"config,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Config:    event.Config,
		},
	})
}
