package input

import (
	"encoding/binary"
	"strconv"

	"github.com/sweeney/devicestatus/internal/touch"
)

// Linux input event types and codes used by the decoder.
const (
	evSyn = 0x00
	evRel = 0x02
	evAbs = 0x03

	synReport  = 0x00
	synDropped = 0x03

	relX = 0x00
	relY = 0x01

	absMTSlot       = 0x2f
	absMTPositionX  = 0x35
	absMTPositionY  = 0x36
	absMTTrackingID = 0x39

	maxSlots = 16
)

// Event is one struct input_event.
type Event struct {
	TimeUs int64
	Type   uint16
	Code   uint16
	Value  int32
}

// AbsRange is the reported range of an absolute axis.
type AbsRange struct {
	Min, Max int32
}

func (r AbsRange) scale(v int32, size int) int {
	if r.Max <= r.Min || size <= 1 {
		return int(v)
	}
	if v < r.Min {
		v = r.Min
	}
	if v > r.Max {
		v = r.Max
	}
	return int(int64(v-r.Min) * int64(size-1) / int64(r.Max-r.Min))
}

type slot struct {
	id       int32 // tracking id, -1 when empty
	reported int32 // id at the last SYN_REPORT
	x, y     int32
	moved    bool
	downTime int64
}

// Decoder turns a multi-touch protocol B event stream into pointer samples. Slot
// numbers are used as pointer ids. Relative motion drives a cursor clamped to the
// screen. Not safe for concurrent use.
type Decoder struct {
	h             Handler
	xr, yr        AbsRange
	width, height int

	slots []slot
	cur   int

	cursorX, cursorY int32
	cursorMoved      bool
}

// NewDecoder creates a decoder scaling device coordinates to a width x height screen.
func NewDecoder(h Handler, xr, yr AbsRange, width, height int) *Decoder {
	d := &Decoder{
		h: h, xr: xr, yr: yr, width: width, height: height,
		cursorX: int32(width / 2), cursorY: int32(height / 2),
	}
	d.slots = make([]slot, 1, maxSlots)
	d.slots[0] = slot{id: -1, reported: -1}
	return d
}

// Feed consumes one event. Samples are emitted on SYN_REPORT.
func (d *Decoder) Feed(ev Event) {
	switch ev.Type {
	case evAbs:
		d.feedAbs(ev)
	case evRel:
		switch ev.Code {
		case relX:
			d.cursorX = clamp(d.cursorX+ev.Value, int32(d.width-1))
			d.cursorMoved = true
		case relY:
			d.cursorY = clamp(d.cursorY+ev.Value, int32(d.height-1))
			d.cursorMoved = true
		}
	case evSyn:
		switch ev.Code {
		case synReport:
			d.flush()
		case synDropped:
			d.cancelAll()
		}
	}
}

func (d *Decoder) feedAbs(ev Event) {
	switch ev.Code {
	case absMTSlot:
		if ev.Value < 0 || ev.Value >= maxSlots {
			return
		}
		for len(d.slots) <= int(ev.Value) {
			d.slots = append(d.slots, slot{id: -1, reported: -1})
		}
		d.cur = int(ev.Value)
	case absMTTrackingID:
		s := &d.slots[d.cur]
		if ev.Value >= 0 && s.id < 0 {
			s.downTime = ev.TimeUs
		}
		s.id = ev.Value
	case absMTPositionX:
		d.slots[d.cur].x = ev.Value
		d.slots[d.cur].moved = true
	case absMTPositionY:
		d.slots[d.cur].y = ev.Value
		d.slots[d.cur].moved = true
	}
}

func (d *Decoder) sample(i int, action touch.PointerAction) touch.PointerSample {
	s := d.slots[i]
	return touch.PointerSample{
		PointerID: i,
		Action:    action,
		X:         d.xr.scale(s.x, d.width),
		Y:         d.yr.scale(s.y, d.height),
		DownTime:  s.downTime,
	}
}

func (d *Decoder) flush() {
	for i := range d.slots {
		s := &d.slots[i]
		switch {
		case s.reported < 0 && s.id >= 0:
			d.h.touch(d.sample(i, touch.ActionDown))
		case s.reported >= 0 && s.id < 0:
			d.h.touch(d.sample(i, touch.ActionUp))
		case s.reported >= 0 && s.id != s.reported:
			// Contact replaced within one frame.
			d.h.touch(d.sample(i, touch.ActionUp))
			d.h.touch(d.sample(i, touch.ActionDown))
		case s.id >= 0 && s.moved:
			d.h.touch(d.sample(i, touch.ActionMove))
		}
		s.reported = s.id
		s.moved = false
	}
	if d.cursorMoved {
		d.cursorMoved = false
		d.h.cursor(d.cursorX, d.cursorY)
	}
}

// cancelAll handles SYN_DROPPED: every live contact is cancelled and forgotten.
func (d *Decoder) cancelAll() {
	for i := range d.slots {
		s := &d.slots[i]
		if s.reported >= 0 {
			d.h.touch(d.sample(i, touch.ActionCancel))
		}
		*s = slot{id: -1, reported: -1}
	}
}

func clamp(v, max int32) int32 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// eventSize is sizeof(struct input_event): a timeval plus type, code and value.
var eventSize = map[int]int{64: 24, 32: 16}[strconv.IntSize]

// parseEvents decodes whole events from buf and returns the unconsumed tail.
func parseEvents(buf []byte, fn func(Event)) []byte {
	half := eventSize/2 - 4
	for len(buf) >= eventSize {
		raw := buf[:eventSize]
		buf = buf[eventSize:]

		var sec, usec int64
		if half == 8 {
			sec = int64(binary.LittleEndian.Uint64(raw[0:8]))
			usec = int64(binary.LittleEndian.Uint64(raw[8:16]))
		} else {
			sec = int64(int32(binary.LittleEndian.Uint32(raw[0:4])))
			usec = int64(int32(binary.LittleEndian.Uint32(raw[4:8])))
		}
		off := 2 * half
		fn(Event{
			TimeUs: sec*1_000_000 + usec,
			Type:   binary.LittleEndian.Uint16(raw[off : off+2]),
			Code:   binary.LittleEndian.Uint16(raw[off+2 : off+4]),
			Value:  int32(binary.LittleEndian.Uint32(raw[off+4 : off+8])),
		})
	}
	return buf
}
