package mqtt

import "go.uber.org/zap"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds messages published while the broker is unreachable.
// Gesture messages queue in order and the oldest is overwritten when full. A
// retained message replaces any retained message already queued for its topic,
// since only the latest cooperate or system state is worth replaying.
// Not safe for concurrent use; callers synchronize.
type ringBuffer struct {
	log      *zap.SugaredLogger
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int
	warned   bool // a drop was logged since the last drain
}

func newRingBuffer(capacity int, log *zap.SugaredLogger) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		log:      log,
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) at(i int) *bufferedMsg {
	start := (r.head - r.count + r.capacity) % r.capacity
	return &r.buf[(start+i)%r.capacity]
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if msg.retained {
		for i := 0; i < r.count; i++ {
			if m := r.at(i); m.retained && m.topic == msg.topic {
				*m = msg
				return
			}
		}
	}

	if r.count == r.capacity {
		r.dropped++
		if !r.warned {
			r.log.Warnw("mqtt: buffer full, dropping oldest", "capacity", r.capacity)
			r.warned = true
		}
		r.count--
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

// drainAll returns the queued messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	out := make([]bufferedMsg, r.count)
	for i := range out {
		out[i] = *r.at(i)
	}
	r.count = 0
	r.head = 0
	r.warned = false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
