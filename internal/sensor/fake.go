package sensor

import (
	"errors"

	"github.com/sweeney/devicestatus/internal/motion"
)

// FakeReader is a test double that returns scripted batches of samples.
type FakeReader struct {
	// Batches contains the samples to return, one batch per Read.
	// Once exhausted the last batch is repeated.
	Batches [][]motion.SensorSample

	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader returning each sample as its own batch.
func NewFakeReader(samples ...motion.SensorSample) *FakeReader {
	f := &FakeReader{}
	for _, s := range samples {
		f.Batches = append(f.Batches, []motion.SensorSample{s})
	}
	return f
}

// Read returns the next scripted batch.
func (f *FakeReader) Read() ([]motion.SensorSample, error) {
	if f.ReadError != nil {
		return nil, f.ReadError
	}
	if len(f.Batches) == 0 {
		return nil, errors.New("no samples configured")
	}

	batch := f.Batches[f.index]
	if f.index < len(f.Batches)-1 {
		f.index++
	}
	return batch, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds to the first batch.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}
