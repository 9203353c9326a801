//go:build linux

package sensor

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/devicestatus/internal/motion"
)

// GPIOProximity reads a digital proximity sensor (IR obstacle module) wired to a GPIO
// line. The module pulls the line low while an object is near.
type GPIOProximity struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewGPIOProximity requests offset on chip as an input with pull-up.
func NewGPIOProximity(chipName string, offset int) (*GPIOProximity, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request proximity line %d: %w", offset, err)
	}

	return &GPIOProximity{chip: chip, line: line}, nil
}

// Read returns one proximity sample. Raw 0 = near, raw 1 = far.
func (g *GPIOProximity) Read() ([]motion.SensorSample, error) {
	raw, err := g.line.Value()
	if err != nil {
		return nil, fmt.Errorf("read proximity line: %w", err)
	}
	d := FarDistance
	if raw == 0 {
		d = NearDistance
	}
	return []motion.SensorSample{motion.Proximity(d)}, nil
}

// Close returns the line to a plain input with pull-down (the Pi boot default)
// before releasing it.
func (g *GPIOProximity) Close() error {
	var errs []error

	if g.line != nil {
		if err := g.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure proximity line: %w", err))
		}
		if err := g.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close proximity line: %w", err))
		}
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
