package status

import (
	"encoding/json"
	"sort"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Device        string        `json:"device"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Gestures      []GestureJSON `json:"gestures"`
	Cooperate     CooperateJSON `json:"cooperate"`
	TouchDropped  uint64        `json:"touch_dropped"`
	SensorErrors  int           `json:"sensor_errors"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// GestureJSON is the last result and count for one gesture type.
type GestureJSON struct {
	Type   string  `json:"type"`
	Count  int     `json:"count"`
	Last   string  `json:"last"`
	Value  string  `json:"value"`
	Status string  `json:"status"`
	Action string  `json:"action"`
	Rotate string  `json:"rotate"`
	Move   float64 `json:"move"`
}

// CooperateJSON is the JSON representation of the cooperate state.
type CooperateJSON struct {
	Enabled bool   `json:"enabled"`
	State   string `json:"state"`
	Role    string `json:"role"`
	Peer    string `json:"peer,omitempty"`
	Changes int    `json:"changes"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs   int64    `json:"poll_ms"`
	Broker   string   `json:"broker"`
	HTTPAddr string   `json:"http_addr"`
	Gestures []string `json:"gestures"`
	Evdev    string   `json:"evdev,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	gestures := make([]GestureJSON, 0, len(snap.Gestures))
	for t, g := range snap.Gestures {
		gestures = append(gestures, GestureJSON{
			Type:   t.String(),
			Count:  g.Count,
			Last:   g.At.UTC().Format(time.RFC3339),
			Value:  g.Result.Value.String(),
			Status: g.Result.Status.String(),
			Action: g.Result.Action.String(),
			Rotate: g.Result.RotateAction.String(),
			Move:   g.Result.Move,
		})
	}
	sort.Slice(gestures, func(i, j int) bool { return gestures[i].Type < gestures[j].Type })

	cfgGestures := snap.Config.Gestures
	if cfgGestures == nil {
		cfgGestures = []string{}
	}

	return StatusInner{
		Device:        snap.Config.Device,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Gestures:      gestures,
		Cooperate: CooperateJSON{
			Enabled: snap.Cooperate.Enabled,
			State:   snap.Cooperate.State,
			Role:    snap.Cooperate.Role,
			Peer:    snap.Cooperate.Peer,
			Changes: snap.Cooperate.Changes,
		},
		TouchDropped: snap.TouchDropped,
		SensorErrors: snap.SensorErrors,
		Config: ConfigJSON{
			PollMs:   snap.Config.PollMs,
			Broker:   snap.Config.Broker,
			HTTPAddr: snap.Config.HTTPAddr,
			Gestures: cfgGestures,
			Evdev:    snap.Config.Evdev,
		},
	}
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
