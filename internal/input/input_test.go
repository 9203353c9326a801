package input

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/devicestatus/internal/touch"
)

type recorder struct {
	touches []touch.PointerSample
	cursors [][2]int32
}

func (r *recorder) handler() Handler {
	return Handler{
		Touch:  func(s touch.PointerSample) { r.touches = append(r.touches, s) },
		Cursor: func(x, y int32) { r.cursors = append(r.cursors, [2]int32{x, y}) },
	}
}

func abs(code uint16, v int32) Event { return Event{Type: evAbs, Code: code, Value: v} }
func syn() Event                     { return Event{Type: evSyn, Code: synReport} }

func feedAll(d *Decoder, evs ...Event) {
	for _, ev := range evs {
		d.Feed(ev)
	}
}

func TestDecoderTwoFingers(t *testing.T) {
	var rec recorder
	// Device range equals the screen so coordinates pass through.
	d := NewDecoder(rec.handler(), AbsRange{0, 1079}, AbsRange{0, 2339}, 1080, 2340)

	feedAll(d,
		abs(absMTSlot, 0), abs(absMTTrackingID, 10), abs(absMTPositionX, 100), abs(absMTPositionY, 200), syn(),
		abs(absMTSlot, 1), abs(absMTTrackingID, 11), abs(absMTPositionX, 300), abs(absMTPositionY, 400), syn(),
		abs(absMTSlot, 0), abs(absMTPositionX, 150), abs(absMTSlot, 1), abs(absMTPositionY, 450), syn(),
		abs(absMTSlot, 0), abs(absMTTrackingID, -1), syn(),
		abs(absMTSlot, 1), abs(absMTTrackingID, -1), syn(),
	)

	want := []touch.PointerSample{
		{PointerID: 0, Action: touch.ActionDown, X: 100, Y: 200},
		{PointerID: 1, Action: touch.ActionDown, X: 300, Y: 400},
		{PointerID: 0, Action: touch.ActionMove, X: 150, Y: 200},
		{PointerID: 1, Action: touch.ActionMove, X: 300, Y: 450},
		{PointerID: 0, Action: touch.ActionUp, X: 150, Y: 200},
		{PointerID: 1, Action: touch.ActionUp, X: 300, Y: 450},
	}
	if len(rec.touches) != len(want) {
		t.Fatalf("got %d samples, want %d: %+v", len(rec.touches), len(want), rec.touches)
	}
	for i, w := range want {
		got := rec.touches[i]
		got.DownTime = 0
		if got != w {
			t.Errorf("sample %d: got %+v, want %+v", i, got, w)
		}
	}
}

func TestDecoderScalesToScreen(t *testing.T) {
	var rec recorder
	d := NewDecoder(rec.handler(), AbsRange{0, 4095}, AbsRange{0, 4095}, 1081, 2341)

	feedAll(d, abs(absMTTrackingID, 1), abs(absMTPositionX, 4095), abs(absMTPositionY, 0), syn())
	if len(rec.touches) != 1 {
		t.Fatalf("got %d samples, want 1", len(rec.touches))
	}
	if got := rec.touches[0]; got.X != 1080 || got.Y != 0 {
		t.Errorf("got (%d,%d), want (1080,0)", got.X, got.Y)
	}
}

func TestDecoderDownTime(t *testing.T) {
	var rec recorder
	d := NewDecoder(rec.handler(), AbsRange{}, AbsRange{}, 100, 100)

	d.Feed(Event{TimeUs: 5000, Type: evAbs, Code: absMTTrackingID, Value: 3})
	d.Feed(Event{TimeUs: 5000, Type: evSyn, Code: synReport})
	d.Feed(Event{TimeUs: 9000, Type: evAbs, Code: absMTPositionX, Value: 7})
	d.Feed(Event{TimeUs: 9000, Type: evSyn, Code: synReport})

	if len(rec.touches) != 2 {
		t.Fatalf("got %d samples, want 2", len(rec.touches))
	}
	for i, s := range rec.touches {
		if s.DownTime != 5000 {
			t.Errorf("sample %d: down time got %d, want 5000", i, s.DownTime)
		}
	}
}

func TestDecoderReplacedContact(t *testing.T) {
	var rec recorder
	d := NewDecoder(rec.handler(), AbsRange{}, AbsRange{}, 100, 100)

	feedAll(d, abs(absMTTrackingID, 1), syn(), abs(absMTTrackingID, 2), syn())

	actions := []touch.PointerAction{touch.ActionDown, touch.ActionUp, touch.ActionDown}
	if len(rec.touches) != len(actions) {
		t.Fatalf("got %d samples, want %d", len(rec.touches), len(actions))
	}
	for i, a := range actions {
		if rec.touches[i].Action != a {
			t.Errorf("sample %d: got %v, want %v", i, rec.touches[i].Action, a)
		}
	}
}

func TestDecoderDroppedCancels(t *testing.T) {
	var rec recorder
	d := NewDecoder(rec.handler(), AbsRange{}, AbsRange{}, 100, 100)

	feedAll(d,
		abs(absMTSlot, 0), abs(absMTTrackingID, 1),
		abs(absMTSlot, 1), abs(absMTTrackingID, 2), syn(),
		Event{Type: evSyn, Code: synDropped},
		syn(),
	)

	if len(rec.touches) != 4 {
		t.Fatalf("got %d samples, want 4: %+v", len(rec.touches), rec.touches)
	}
	if rec.touches[2].Action != touch.ActionCancel || rec.touches[3].Action != touch.ActionCancel {
		t.Errorf("expected two cancels, got %+v", rec.touches[2:])
	}
}

func TestDecoderIgnoresBadSlot(t *testing.T) {
	var rec recorder
	d := NewDecoder(rec.handler(), AbsRange{}, AbsRange{}, 100, 100)
	feedAll(d, abs(absMTSlot, maxSlots), abs(absMTTrackingID, 1), syn())
	if len(rec.touches) != 1 || rec.touches[0].PointerID != 0 {
		t.Errorf("out of range slot should leave slot 0 current, got %+v", rec.touches)
	}
}

func TestDecoderCursor(t *testing.T) {
	var rec recorder
	d := NewDecoder(rec.handler(), AbsRange{}, AbsRange{}, 1920, 1080)

	feedAll(d,
		Event{Type: evRel, Code: relX, Value: 100}, Event{Type: evRel, Code: relY, Value: -40}, syn(),
		Event{Type: evRel, Code: relX, Value: -5000}, syn(),
		syn(),
	)

	want := [][2]int32{{1060, 500}, {0, 500}}
	if len(rec.cursors) != len(want) {
		t.Fatalf("got %d cursor updates, want %d", len(rec.cursors), len(want))
	}
	for i, w := range want {
		if rec.cursors[i] != w {
			t.Errorf("cursor %d: got %v, want %v", i, rec.cursors[i], w)
		}
	}
}

func encodeEvent(ev Event) []byte {
	b := make([]byte, eventSize)
	sec, usec := ev.TimeUs/1_000_000, ev.TimeUs%1_000_000
	off := 8
	if eventSize == 24 {
		binary.LittleEndian.PutUint64(b[0:8], uint64(sec))
		binary.LittleEndian.PutUint64(b[8:16], uint64(usec))
		off = 16
	} else {
		binary.LittleEndian.PutUint32(b[0:4], uint32(sec))
		binary.LittleEndian.PutUint32(b[4:8], uint32(usec))
	}
	binary.LittleEndian.PutUint16(b[off:off+2], ev.Type)
	binary.LittleEndian.PutUint16(b[off+2:off+4], ev.Code)
	binary.LittleEndian.PutUint32(b[off+4:off+8], uint32(ev.Value))
	return b
}

func TestParseEvents(t *testing.T) {
	in := []Event{
		{TimeUs: 1_500_000, Type: evAbs, Code: absMTTrackingID, Value: -1},
		{TimeUs: 2_000_001, Type: evSyn, Code: synReport},
	}
	var stream []byte
	for _, ev := range in {
		stream = append(stream, encodeEvent(ev)...)
	}
	stream = append(stream, 1, 2, 3) // partial next event

	var got []Event
	rest := parseEvents(stream, func(ev Event) { got = append(got, ev) })

	if len(rest) != 3 {
		t.Errorf("leftover: got %d bytes, want 3", len(rest))
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("event %d: got %+v, want %+v", i, got[i], in[i])
		}
	}
}

func TestFakeSource(t *testing.T) {
	var rec recorder
	f := &FakeSource{Steps: []Step{
		{Touch: touch.PointerSample{PointerID: 0, Action: touch.ActionDown}},
		{IsCursor: true, X: 5, Y: 6},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, rec.handler()) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(rec.touches) != 1 || len(rec.cursors) != 1 {
		t.Errorf("got %d touches %d cursors, want 1 and 1", len(rec.touches), len(rec.cursors))
	}

	f.RunError = errors.New("no device")
	if err := f.Run(context.Background(), rec.handler()); err == nil {
		t.Error("expected RunError")
	}
}
