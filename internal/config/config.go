// Package config handles configuration loading, validation and hot reload for
// the devicestatus daemon.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/devicestatus/internal/motion"
	"github.com/sweeney/devicestatus/internal/touch"
)

// Config is the full daemon configuration.
type Config struct {
	Device    string          `toml:"device" yaml:"device" json:"device"`
	Gestures  []string        `toml:"gestures" yaml:"gestures" json:"gestures"`
	Motion    motion.Config   `toml:"motion" yaml:"motion" json:"motion"`
	Touch     touch.Config    `toml:"touch" yaml:"touch" json:"touch"`
	Cooperate CooperateConfig `toml:"cooperate" yaml:"cooperate" json:"cooperate"`
	MQTT      MQTTConfig      `toml:"mqtt" yaml:"mqtt" json:"mqtt"`
	HTTP      HTTPConfig      `toml:"http" yaml:"http" json:"http"`
	Profile   ProfileConfig   `toml:"profile" yaml:"profile" json:"profile"`
	Sensors   SensorsConfig   `toml:"sensors" yaml:"sensors" json:"sensors"`
	Input     InputConfig     `toml:"input" yaml:"input" json:"input"`
	Log       LogConfig       `toml:"log" yaml:"log" json:"log"`
}

// CooperateConfig configures the cooperate service and its D-Bus surface.
type CooperateConfig struct {
	Enabled           bool     `toml:"enabled" yaml:"enabled" json:"enabled"`
	NetworkID         string   `toml:"network_id" yaml:"network_id" json:"network_id"`
	UdID              string   `toml:"udid" yaml:"udid" json:"udid"`
	ResponseTimeoutMs int      `toml:"response_timeout_ms" yaml:"response_timeout_ms" json:"response_timeout_ms"`
	ChannelCapacity   int      `toml:"channel_capacity" yaml:"channel_capacity" json:"channel_capacity"`
	HotAreaWidth      int      `toml:"hot_area_width" yaml:"hot_area_width" json:"hot_area_width"`
	SystemUIDs        []uint32 `toml:"system_uids" yaml:"system_uids" json:"system_uids"`
	GrantedUIDs       []uint32 `toml:"granted_uids" yaml:"granted_uids" json:"granted_uids"`
	DBus              string   `toml:"dbus" yaml:"dbus" json:"dbus"` // "system", "session" or "off"
}

// ResponseTimeout returns the peer response timeout as a duration.
func (c CooperateConfig) ResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeoutMs) * time.Millisecond
}

// MQTTConfig configures the broker used for events and for the softbus transport.
type MQTTConfig struct {
	Broker        string `toml:"broker" yaml:"broker" json:"broker"`
	ClientID      string `toml:"client_id" yaml:"client_id" json:"client_id"`
	SoftbusPrefix string `toml:"softbus_prefix" yaml:"softbus_prefix" json:"softbus_prefix"`
	BufferSize    int    `toml:"buffer_size" yaml:"buffer_size" json:"buffer_size"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `toml:"addr" yaml:"addr" json:"addr"`
}

// ProfileConfig locates the device profile database.
type ProfileConfig struct {
	Path string `toml:"path" yaml:"path" json:"path"`
}

// SensorsConfig selects the sensor sources. Empty directories disable a channel;
// GPIOLine < 0 disables the GPIO proximity line.
type SensorsConfig struct {
	PollMs           int    `toml:"poll_ms" yaml:"poll_ms" json:"poll_ms"`
	AccelDir         string `toml:"accel_dir" yaml:"accel_dir" json:"accel_dir"`
	LightDir         string `toml:"light_dir" yaml:"light_dir" json:"light_dir"`
	ProximityDir     string `toml:"proximity_dir" yaml:"proximity_dir" json:"proximity_dir"`
	ProximityNearRaw int    `toml:"proximity_near_raw" yaml:"proximity_near_raw" json:"proximity_near_raw"`
	GPIOChip         string `toml:"gpio_chip" yaml:"gpio_chip" json:"gpio_chip"`
	GPIOLine         int    `toml:"gpio_line" yaml:"gpio_line" json:"gpio_line"`
}

// Poll returns the sensor poll interval.
func (s SensorsConfig) Poll() time.Duration {
	return time.Duration(s.PollMs) * time.Millisecond
}

// InputConfig selects the touch input device. An empty Evdev disables touch.
type InputConfig struct {
	Evdev string `toml:"evdev" yaml:"evdev" json:"evdev"`
	Grab  bool   `toml:"grab" yaml:"grab" json:"grab"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `toml:"level" yaml:"level" json:"level"`
	JSON  bool   `toml:"json" yaml:"json" json:"json"`
}

// DefaultConfig returns a configuration that runs with no hardware attached.
func DefaultConfig() *Config {
	return &Config{
		Device:   "devicestatus",
		Gestures: []string{"FLIP", "ROTATE", "SHAKE", "POCKET", "NEAR_EAR"},
		Motion:   motion.DefaultConfig(),
		Touch:    touch.DefaultConfig(),
		Cooperate: CooperateConfig{
			ResponseTimeoutMs: 5000,
			ChannelCapacity:   64,
			HotAreaWidth:      10,
			SystemUIDs:        []uint32{0},
			GrantedUIDs:       []uint32{0},
			DBus:              "off",
		},
		MQTT: MQTTConfig{
			Broker:        "tcp://localhost:1883",
			SoftbusPrefix: "devicestatus/softbus",
			BufferSize:    256,
		},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Profile: ProfileConfig{Path: "/var/lib/devicestatus/profile.db"},
		Sensors: SensorsConfig{
			PollMs:           20,
			ProximityNearRaw: 1,
			GPIOChip:         "gpiochip0",
			GPIOLine:         -1,
		},
		Log: LogConfig{Level: "info"},
	}
}

// GestureTypes parses the enabled gesture names.
func (c *Config) GestureTypes() ([]motion.GestureType, error) {
	types := make([]motion.GestureType, 0, len(c.Gestures))
	for _, name := range c.Gestures {
		t, err := motion.ParseGestureType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// Validate checks the semantic constraints a schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Device == "" {
		errs = append(errs, errors.New("device must not be empty"))
	}
	if _, err := c.GestureTypes(); err != nil {
		errs = append(errs, fmt.Errorf("gestures: %w", err))
	}
	if c.Sensors.PollMs <= 0 {
		errs = append(errs, fmt.Errorf("sensors.poll_ms must be positive, got %d", c.Sensors.PollMs))
	}
	if c.Touch.ScreenWidth <= 0 || c.Touch.ScreenHeight <= 0 {
		errs = append(errs, fmt.Errorf("touch screen size must be positive, got %dx%d", c.Touch.ScreenWidth, c.Touch.ScreenHeight))
	}
	if c.Touch.LeftBoundary >= c.Touch.RightBoundary {
		errs = append(errs, errors.New("touch.left_boundary must be below touch.right_boundary"))
	}
	if c.Motion.Pickup.ModuleLow >= c.Motion.Pickup.ModuleHigh {
		errs = append(errs, errors.New("motion.pickup.module_low must be below module_high"))
	}
	if c.Motion.Flip.ModuleLow >= c.Motion.Flip.ModuleHigh {
		errs = append(errs, errors.New("motion.flip.module_low must be below module_high"))
	}
	if c.Motion.Rotate.ModuleLow >= c.Motion.Rotate.ModuleHigh {
		errs = append(errs, errors.New("motion.rotate.module_low must be below module_high"))
	}
	if c.Cooperate.Enabled {
		if c.Cooperate.NetworkID == "" {
			errs = append(errs, errors.New("cooperate.network_id required when cooperate is enabled"))
		}
		if c.Cooperate.ResponseTimeoutMs <= 0 {
			errs = append(errs, errors.New("cooperate.response_timeout_ms must be positive"))
		}
	}
	switch c.Cooperate.DBus {
	case "system", "session", "off", "":
	default:
		errs = append(errs, fmt.Errorf("cooperate.dbus must be system, session or off, got %q", c.Cooperate.DBus))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, fmt.Errorf("log.level %q not recognised", c.Log.Level))
	}
	return errors.Join(errs...)
}
