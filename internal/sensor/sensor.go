// Package sensor reads motion sensors and converts readings to motion samples.
// The real readers use Linux IIO sysfs and the GPIO character device.
// The fake reader allows testing without hardware.
package sensor

import (
	"errors"
	"fmt"

	"github.com/sweeney/devicestatus/internal/motion"
)

// Distances reported by on/off proximity sensors, in cm.
const (
	NearDistance = 0.0
	FarDistance  = 5.0
)

// Reader polls one or more sensors.
type Reader interface {
	// Read returns the samples taken by this poll, in sensor order.
	Read() ([]motion.SensorSample, error)

	// Close releases sensor resources.
	Close() error
}

// Multi polls several readers in order.
type Multi []Reader

// Read concatenates every reader's samples. The first error aborts the poll.
func (m Multi) Read() ([]motion.SensorSample, error) {
	var out []motion.SensorSample
	for i, r := range m {
		samples, err := r.Read()
		if err != nil {
			return nil, fmt.Errorf("reader %d: %w", i, err)
		}
		out = append(out, samples...)
	}
	return out, nil
}

// Close closes every reader.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
