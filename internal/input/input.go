// Package input reads pointer devices and converts kernel input events into touch
// samples and cursor positions. The real source uses the Linux evdev interface
// (multi-touch protocol B); the fake source replays a script.
package input

import (
	"context"

	"github.com/sweeney/devicestatus/internal/touch"
)

// Handler receives decoded input. Either func may be nil.
type Handler struct {
	Touch  func(touch.PointerSample)
	Cursor func(x, y int32)
}

func (h Handler) touch(s touch.PointerSample) {
	if h.Touch != nil {
		h.Touch(s)
	}
}

func (h Handler) cursor(x, y int32) {
	if h.Cursor != nil {
		h.Cursor(x, y)
	}
}

// Source produces input until its context ends.
type Source interface {
	// Run delivers input to h in arrival order. It returns nil when ctx is cancelled.
	Run(ctx context.Context, h Handler) error

	// Close releases the device.
	Close() error
}
