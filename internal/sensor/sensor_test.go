package sensor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sweeney/devicestatus/internal/motion"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader(motion.Accel(0, 0, -9.8), motion.Accel(0, 0, 9.8))

	got, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Z != -9.8 {
		t.Errorf("batch 0: got %v", got)
	}

	got, _ = f.Read()
	if got[0].Z != 9.8 {
		t.Errorf("batch 1: got z=%v, want 9.8", got[0].Z)
	}

	// Exhausted: last batch repeats.
	got, _ = f.Read()
	if got[0].Z != 9.8 {
		t.Errorf("batch 2 (repeat): got z=%v, want 9.8", got[0].Z)
	}

	f.Reset()
	got, _ = f.Read()
	if got[0].Z != -9.8 {
		t.Errorf("after reset: got z=%v, want -9.8", got[0].Z)
	}
}

func TestFakeReaderErrors(t *testing.T) {
	if _, err := NewFakeReader().Read(); err == nil {
		t.Error("expected error with no samples")
	}

	f := NewFakeReader(motion.Proximity(0))
	f.ReadError = errors.New("simulated error")
	if _, err := f.Read(); err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}

	f.Close()
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestIIOReader(t *testing.T) {
	accel, light, prox := t.TempDir(), t.TempDir(), t.TempDir()
	writeFiles(t, accel, map[string]string{
		"in_accel_x_raw": "0\n",
		"in_accel_y_raw": "-100\n",
		"in_accel_z_raw": "980\n",
		"in_accel_scale": "0.01\n",
	})
	writeFiles(t, light, map[string]string{
		"in_illuminance_raw":   "40",
		"in_illuminance_scale": "0.5",
	})
	writeFiles(t, prox, map[string]string{"in_proximity_raw": "10"})

	r, err := NewIIOReader(IIOConfig{AccelDir: accel, LightDir: light, ProximityDir: prox, ProximityNearRaw: 50})
	if err != nil {
		t.Fatalf("NewIIOReader failed: %v", err)
	}
	defer r.Close()

	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d samples, want 3", len(got))
	}
	if got[0].Kind != motion.KindAccelerometer || got[0].Y != -1 || got[0].Z != 9.8 {
		t.Errorf("accel: got %+v", got[0])
	}
	if got[1].Kind != motion.KindAmbientLight || got[1].Lux != 20 {
		t.Errorf("light: got %+v, want 20 lux", got[1])
	}
	if got[2].Kind != motion.KindProximity || got[2].Distance != FarDistance {
		t.Errorf("proximity: got %+v, want far", got[2])
	}

	writeFiles(t, prox, map[string]string{"in_proximity_raw": "200"})
	got, _ = r.Read()
	if got[2].Distance != NearDistance {
		t.Errorf("proximity: got %v, want near", got[2].Distance)
	}
}

func TestIIOReaderProcessedLight(t *testing.T) {
	light := t.TempDir()
	writeFiles(t, light, map[string]string{"in_illuminance_input": "123.5"})

	r, err := NewIIOReader(IIOConfig{LightDir: light})
	if err != nil {
		t.Fatalf("NewIIOReader failed: %v", err)
	}
	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 1 || got[0].Lux != 123.5 {
		t.Errorf("got %+v, want 123.5 lux", got)
	}
}

func TestIIOReaderMissingChannel(t *testing.T) {
	if _, err := NewIIOReader(IIOConfig{AccelDir: t.TempDir()}); err == nil {
		t.Error("expected error for missing accelerometer channel")
	}
}

func TestIIOReaderBadValue(t *testing.T) {
	prox := t.TempDir()
	writeFiles(t, prox, map[string]string{"in_proximity_raw": "garbage"})
	r, err := NewIIOReader(IIOConfig{ProximityDir: prox})
	if err != nil {
		t.Fatalf("NewIIOReader failed: %v", err)
	}
	if _, err := r.Read(); err == nil {
		t.Error("expected parse error")
	}
}

func TestMulti(t *testing.T) {
	a := NewFakeReader(motion.Accel(1, 2, 3))
	b := NewFakeReader(motion.Proximity(0))
	m := Multi{a, b}

	got, err := m.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 2 || got[0].Kind != motion.KindAccelerometer || got[1].Kind != motion.KindProximity {
		t.Errorf("got %+v", got)
	}

	b.ReadError = errors.New("boom")
	if _, err := m.Read(); err == nil {
		t.Error("expected error from failing reader")
	}

	m.Close()
	if !a.Closed || !b.Closed {
		t.Error("Close should close every reader")
	}
}
