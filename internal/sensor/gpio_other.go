//go:build !linux

package sensor

import (
	"errors"

	"github.com/sweeney/devicestatus/internal/motion"
)

// GPIOProximity is not available on non-Linux platforms.
type GPIOProximity struct{}

// NewGPIOProximity returns an error on non-Linux platforms.
func NewGPIOProximity(chipName string, offset int) (*GPIOProximity, error) {
	return nil, errors.New("sensor: gpio not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (g *GPIOProximity) Read() ([]motion.SensorSample, error) {
	return nil, errors.New("sensor: gpio not supported")
}

// Close is not implemented on non-Linux platforms.
func (g *GPIOProximity) Close() error {
	return nil
}
