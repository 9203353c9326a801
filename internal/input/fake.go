package input

import (
	"context"

	"github.com/sweeney/devicestatus/internal/touch"
)

// Step is one scripted input: a touch sample, or a cursor position when IsCursor is set.
type Step struct {
	Touch    touch.PointerSample
	IsCursor bool
	X, Y     int32
}

// FakeSource replays Steps once and then waits for cancellation.
type FakeSource struct {
	Steps []Step

	// Closed tracks if Close was called
	Closed bool

	// RunError, if set, is returned by Run before replaying anything.
	RunError error
}

// Run delivers every step in order.
func (f *FakeSource) Run(ctx context.Context, h Handler) error {
	if f.RunError != nil {
		return f.RunError
	}
	for _, s := range f.Steps {
		if ctx.Err() != nil {
			return nil
		}
		if s.IsCursor {
			h.cursor(s.X, s.Y)
		} else {
			h.touch(s.Touch)
		}
	}
	<-ctx.Done()
	return nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}
