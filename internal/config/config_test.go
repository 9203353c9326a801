package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/devicestatus/internal/motion"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	types, err := cfg.GestureTypes()
	if err != nil {
		t.Fatalf("GestureTypes: %v", err)
	}
	if len(types) != 5 || types[0] != motion.TypeFlip {
		t.Errorf("GestureTypes: got %v", types)
	}
	if cfg.Sensors.Poll() != 20*time.Millisecond {
		t.Errorf("Poll: got %v, want 20ms", cfg.Sensors.Poll())
	}
	if cfg.Cooperate.ResponseTimeout() != 5*time.Second {
		t.Errorf("ResponseTimeout: got %v, want 5s", cfg.Cooperate.ResponseTimeout())
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent.toml")).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device != "devicestatus" {
		t.Errorf("Device: got %q, want devicestatus", cfg.Device)
	}
}

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	l := NewLoader("")
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Config() != cfg {
		t.Error("Config should return the loaded config")
	}
	if err := l.Watch(); err == nil {
		t.Error("Watch without a file should fail")
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "devicestatus.toml", `
device = "kitchen"
gestures = ["SHAKE"]

[motion.shake]
threshold = 9.5
debounce_count = 2

[touch]
screen_width = 800
screen_height = 1280

[cooperate]
enabled = true
network_id = "node-a"
system_uids = [0, 1000]

[log]
level = "debug"
`)

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device != "kitchen" {
		t.Errorf("Device: got %q, want kitchen", cfg.Device)
	}
	if len(cfg.Gestures) != 1 || cfg.Gestures[0] != "SHAKE" {
		t.Errorf("Gestures: got %v", cfg.Gestures)
	}
	if cfg.Motion.Shake.Threshold != 9.5 || cfg.Motion.Shake.DebounceCount != 2 {
		t.Errorf("Shake: got %+v", cfg.Motion.Shake)
	}
	// untouched sections keep their defaults
	if cfg.Motion.Flip != motion.DefaultConfig().Flip {
		t.Errorf("Flip: got %+v, want defaults", cfg.Motion.Flip)
	}
	if cfg.Touch.ScreenWidth != 800 || cfg.Touch.SwipeDistance != 100 {
		t.Errorf("Touch: got %+v", cfg.Touch)
	}
	if !cfg.Cooperate.Enabled || len(cfg.Cooperate.SystemUIDs) != 2 {
		t.Errorf("Cooperate: got %+v", cfg.Cooperate)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q, want debug", cfg.Log.Level)
	}
}

func TestLoadPickupGesture(t *testing.T) {
	path := writeFile(t, t.TempDir(), "devicestatus.toml", `
gestures = ["PICKUP"]

[motion.pickup]
raised_pitch = 45
window_samples = 5
`)

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	types, err := cfg.GestureTypes()
	if err != nil {
		t.Fatalf("GestureTypes: %v", err)
	}
	if len(types) != 1 || types[0] != motion.TypePickup {
		t.Fatalf("GestureTypes: got %v", types)
	}
	if cfg.Motion.Pickup.RaisedPitch != 45 || cfg.Motion.Pickup.WindowSamples != 5 {
		t.Errorf("Pickup: got %+v", cfg.Motion.Pickup)
	}
	if cfg.Motion.Pickup.RestCount != motion.DefaultConfig().Pickup.RestCount {
		t.Errorf("Pickup.RestCount: got %d, want default", cfg.Motion.Pickup.RestCount)
	}

	// A config that validates must start every gesture it names.
	d := motion.NewDispatcher(cfg.Motion, zap.NewNop().Sugar())
	for _, typ := range types {
		if err := d.Enable(typ); err != nil {
			t.Errorf("Enable(%s): %v", typ, err)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "devicestatus.yaml", `
device: hall
mqtt:
  broker: tcp://10.0.0.2:1883
  buffer_size: 16
input:
  evdev: /dev/input/event3
  grab: true
`)

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device != "hall" {
		t.Errorf("Device: got %q, want hall", cfg.Device)
	}
	if cfg.MQTT.Broker != "tcp://10.0.0.2:1883" || cfg.MQTT.BufferSize != 16 {
		t.Errorf("MQTT: got %+v", cfg.MQTT)
	}
	if cfg.MQTT.SoftbusPrefix != "devicestatus/softbus" {
		t.Errorf("SoftbusPrefix: got %q, want default", cfg.MQTT.SoftbusPrefix)
	}
	if cfg.Input.Evdev != "/dev/input/event3" || !cfg.Input.Grab {
		t.Errorf("Input: got %+v", cfg.Input)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "devicestatus.json", `{
  "device": "desk",
  "sensors": {"poll_ms": 50, "gpio_line": 17},
  "http": {"addr": ":9090"}
}`)

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sensors.PollMs != 50 || cfg.Sensors.GPIOLine != 17 {
		t.Errorf("Sensors: got %+v", cfg.Sensors)
	}
	if cfg.Sensors.GPIOChip != "gpiochip0" {
		t.Errorf("GPIOChip: got %q, want default", cfg.Sensors.GPIOChip)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("HTTP.Addr: got %q", cfg.HTTP.Addr)
	}
}

func TestLoadJSONSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", `{"devcie": "typo"}`},
		{"wrong type", `{"sensors": {"poll_ms": "fast"}}`},
		{"out of range", `{"touch": {"left_boundary": 1.5}}`},
		{"unknown gesture", `{"gestures": ["WAVE"]}`},
		{"bad dbus", `{"cooperate": {"dbus": "both"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "devicestatus.json", tt.body)
			_, err := NewLoader(path).Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "schema") {
				t.Errorf("error should come from the schema: %v", err)
			}
		})
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"cooperate without id", "[cooperate]\nenabled = true\n", "network_id"},
		{"unknown gesture", "gestures = [\"WAVE\"]\n", "gestures"},
		{"zero poll", "[sensors]\npoll_ms = 0\n", "poll_ms"},
		{"inverted boundaries", "[touch]\nleft_boundary = 0.9\nright_boundary = 0.1\n", "left_boundary"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "devicestatus.toml", tt.body)
			_, err := NewLoader(path).Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "devicestatus.ini", "device=x")
	if _, err := NewLoader(path).Load(); err == nil {
		t.Error("expected error for .ini")
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "devicestatus.toml", "device = \"one\"\n")

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changed <- c })
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer l.Close()

	writeFile(t, dir, "devicestatus.toml", "device = \"two\"\n")

	select {
	case c := <-changed:
		if c.Device != "two" {
			t.Errorf("reloaded Device: got %q, want two", c.Device)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}
	if l.Config().Device != "two" {
		t.Errorf("Config().Device: got %q, want two", l.Config().Device)
	}
}

func TestWatchKeepsOldConfigOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "devicestatus.toml", "device = \"one\"\n")

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer l.Close()

	writeFile(t, dir, "devicestatus.toml", "device = \n")

	select {
	case err := <-l.Errors():
		if err == nil {
			t.Error("expected a reload error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no error reported for bad file")
	}
	if l.Config().Device != "one" {
		t.Errorf("Config().Device: got %q, want one", l.Config().Device)
	}
}
