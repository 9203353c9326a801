package sensor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sweeney/devicestatus/internal/motion"
)

// IIOConfig names the sysfs directories of IIO devices, e.g.
// /sys/bus/iio/devices/iio:device0. An empty directory disables that sensor.
type IIOConfig struct {
	AccelDir     string
	LightDir     string
	ProximityDir string
	// ProximityNearRaw is the raw reading at or above which an object is near.
	ProximityNearRaw int
}

// IIOReader reads accelerometer, ambient light and proximity channels from sysfs.
type IIOReader struct {
	cfg        IIOConfig
	accelScale float64
	lightScale float64
	lightInput bool
}

// NewIIOReader checks the configured channels exist and reads their scales once.
func NewIIOReader(cfg IIOConfig) (*IIOReader, error) {
	r := &IIOReader{cfg: cfg, accelScale: 1, lightScale: 1}

	if cfg.AccelDir != "" {
		if _, err := os.Stat(filepath.Join(cfg.AccelDir, "in_accel_x_raw")); err != nil {
			return nil, fmt.Errorf("accelerometer: %w", err)
		}
		scale, err := readFloat(filepath.Join(cfg.AccelDir, "in_accel_scale"))
		switch {
		case err == nil:
			r.accelScale = scale
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("accelerometer scale: %w", err)
		}
	}

	if cfg.LightDir != "" {
		if _, err := os.Stat(filepath.Join(cfg.LightDir, "in_illuminance_input")); err == nil {
			r.lightInput = true
		} else if _, err := os.Stat(filepath.Join(cfg.LightDir, "in_illuminance_raw")); err != nil {
			return nil, fmt.Errorf("ambient light: %w", err)
		}
		if !r.lightInput {
			if scale, err := readFloat(filepath.Join(cfg.LightDir, "in_illuminance_scale")); err == nil {
				r.lightScale = scale
			}
		}
	}

	if cfg.ProximityDir != "" {
		if _, err := os.Stat(filepath.Join(cfg.ProximityDir, "in_proximity_raw")); err != nil {
			return nil, fmt.Errorf("proximity: %w", err)
		}
	}
	return r, nil
}

// Read returns one sample per configured sensor: accelerometer, light, proximity.
func (r *IIOReader) Read() ([]motion.SensorSample, error) {
	var out []motion.SensorSample

	if dir := r.cfg.AccelDir; dir != "" {
		var axes [3]float64
		for i, axis := range []string{"x", "y", "z"} {
			v, err := readFloat(filepath.Join(dir, "in_accel_"+axis+"_raw"))
			if err != nil {
				return nil, fmt.Errorf("read accel %s: %w", axis, err)
			}
			axes[i] = v * r.accelScale
		}
		out = append(out, motion.Accel(axes[0], axes[1], axes[2]))
	}

	if dir := r.cfg.LightDir; dir != "" {
		name := "in_illuminance_raw"
		if r.lightInput {
			name = "in_illuminance_input"
		}
		v, err := readFloat(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read illuminance: %w", err)
		}
		out = append(out, motion.AmbientLight(v*r.lightScale))
	}

	if dir := r.cfg.ProximityDir; dir != "" {
		v, err := readFloat(filepath.Join(dir, "in_proximity_raw"))
		if err != nil {
			return nil, fmt.Errorf("read proximity: %w", err)
		}
		d := FarDistance
		if int(v) >= r.cfg.ProximityNearRaw {
			d = NearDistance
		}
		out = append(out, motion.Proximity(d))
	}
	return out, nil
}

// Close is a no-op; sysfs files are opened per read.
func (r *IIOReader) Close() error {
	return nil
}

func readFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return v, nil
}
