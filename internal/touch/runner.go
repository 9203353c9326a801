package touch

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Runner feeds pointer samples to a Detector on a dedicated goroutine. Push is cheap
// and never blocks, so it can be called from the input reader loop.
//
// A dropped sample breaks the pointer stream, so the next accepted sample first
// cancels whatever the detector was tracking. A lost Up therefore never leaves a
// finger pressed into the next gesture.
type Runner struct {
	det *Detector
	log *zap.SugaredLogger

	queue   chan queued
	configs chan Config
	dropped atomic.Int64
	errors  atomic.Int64
	broken  atomic.Bool // a sample was dropped since the last accepted push

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a runner with a queue of queueSize samples.
func NewRunner(det *Detector, queueSize int, log *zap.SugaredLogger) *Runner {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Runner{
		det:     det,
		log:     log,
		queue:   make(chan queued, queueSize),
		configs: make(chan Config, 1),
	}
}

type queued struct {
	sample PointerSample
	resync bool
}

// Push enqueues s. When the queue is full the sample is dropped and counted.
// Push must be called from a single goroutine.
func (r *Runner) Push(s PointerSample) bool {
	q := queued{sample: s, resync: r.broken.Load()}
	select {
	case r.queue <- q:
		if q.resync {
			r.broken.Store(false)
		}
		return true
	default:
		r.broken.Store(true)
		n := r.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			r.log.Warnw("touch: queue full, dropping samples", "dropped", n)
		}
		return false
	}
}

// ApplyConfig hands new thresholds to the worker. Only the latest pending config is kept.
func (r *Runner) ApplyConfig(cfg Config) {
	for {
		select {
		case r.configs <- cfg:
			return
		default:
		}
		select {
		case <-r.configs:
		default:
		}
	}
}

// Start launches the worker. Starting a running runner is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	r.log.Infow("touch: runner started", "queue", cap(r.queue))
}

// Stop cancels the worker and waits for it to exit. Queued samples are discarded.
// Stopping a stopped runner is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return
	}
	r.cancel()
	<-r.done
	r.done = nil
	r.cancel = nil
	r.log.Infow("touch: runner stopped", "dropped", r.dropped.Load(), "errors", r.errors.Load())
}

// Dropped is the number of samples discarded because the queue was full.
func (r *Runner) Dropped() int64 { return r.dropped.Load() }

// Errors is the number of samples that moved the detector to its error state.
func (r *Runner) Errors() int64 { return r.errors.Load() }

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-r.configs:
			r.det.SetConfig(cfg)
		case q := <-r.queue:
			if q.resync {
				r.det.Handle(PointerSample{Action: ActionCancel})
				r.log.Debugw("touch: resynced after dropped samples")
			}
			s := q.sample
			if err := r.det.Handle(s); err != nil {
				r.errors.Add(1)
				r.log.Debugw("touch: sample rejected", "pointer", s.PointerID, "action", s.Action, "err", err)
			}
		}
	}
}
