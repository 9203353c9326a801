package motion

// Debouncer requires a condition to hold for a number of consecutive samples
// before a transition commits. Any sample breaking the condition restarts the count.
type Debouncer struct {
	threshold int
	remaining int
}

// NewDebouncer creates a debouncer committing after threshold consecutive hits.
// A threshold of 0 or 1 commits on the first hit.
func NewDebouncer(threshold int) Debouncer {
	if threshold < 1 {
		threshold = 1
	}
	return Debouncer{threshold: threshold, remaining: threshold}
}

// Observe records one sample and reports whether the transition commits.
// After committing the counter is re-armed.
func (d *Debouncer) Observe(cond bool) bool {
	if d.threshold < 1 {
		d.threshold = 1
	}
	if !cond {
		d.remaining = d.threshold
		return false
	}
	d.remaining--
	if d.remaining > 0 {
		return false
	}
	d.remaining = d.threshold
	return true
}

// Reset re-arms the counter.
func (d *Debouncer) Reset() {
	d.remaining = d.threshold
}

// Remaining is the number of further hits needed to commit.
func (d *Debouncer) Remaining() int {
	return d.remaining
}
