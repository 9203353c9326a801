//go:build !linux

package input

import (
	"context"
	"errors"
)

// Evdev is not available on non-Linux platforms.
type Evdev struct{}

// OpenEvdev returns an error on non-Linux platforms.
func OpenEvdev(path string, width, height int, grab bool) (*Evdev, error) {
	return nil, errors.New("input: evdev not supported on this platform (requires Linux)")
}

// Run is not implemented on non-Linux platforms.
func (e *Evdev) Run(ctx context.Context, h Handler) error {
	return errors.New("input: evdev not supported")
}

// Close is not implemented on non-Linux platforms.
func (e *Evdev) Close() error {
	return nil
}
