// Package dsoftbus carries cooperate protocol packets between paired devices.
// Devices are addressed by network id; a session must be open before packets flow.
package dsoftbus

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// PacketType identifies a cooperate protocol message.
type PacketType int32

const (
	PacketUnknown PacketType = iota
	PacketSessionOpen
	PacketSessionClose
	PacketPrepareRequest
	PacketPrepareAck
	PacketActivateRequest
	PacketActivateAck
	PacketDeactivateRequest
	PacketDeactivateAck
	PacketPointerRelay
)

var packetTypeNames = map[PacketType]string{
	PacketUnknown:           "UNKNOWN",
	PacketSessionOpen:       "SESSION_OPEN",
	PacketSessionClose:      "SESSION_CLOSE",
	PacketPrepareRequest:    "PREPARE_REQUEST",
	PacketPrepareAck:        "PREPARE_ACK",
	PacketActivateRequest:   "ACTIVATE_REQUEST",
	PacketActivateAck:       "ACTIVATE_ACK",
	PacketDeactivateRequest: "DEACTIVATE_REQUEST",
	PacketDeactivateAck:     "DEACTIVATE_ACK",
	PacketPointerRelay:      "POINTER_RELAY",
}

func (t PacketType) String() string {
	if s, ok := packetTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("PacketType(%d)", int32(t))
}

// Packet is one protocol message. Fields unused by a type are left zero.
type Packet struct {
	Type          PacketType
	Seq           uint64
	From          string // sender network id
	UdID          string // sender device udid
	OK            bool   // acks only
	Code          int32  // error code carried by a negative ack
	StartDeviceID int32
	IsUnchained   bool
	X, Y          int32 // pointer relay
}

const (
	fieldType protowire.Number = iota + 1
	fieldSeq
	fieldFrom
	fieldUdID
	fieldOK
	fieldCode
	fieldStartDeviceID
	fieldIsUnchained
	fieldX
	fieldY
)

// ErrMalformed is returned for packets that cannot be decoded.
var ErrMalformed = errors.New("dsoftbus: malformed packet")

// Marshal encodes p in protobuf wire format. Zero fields are omitted.
func (p Packet) Marshal() []byte {
	var b []byte
	appendVarint := func(num protowire.Number, v uint64) {
		if v == 0 {
			return
		}
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	}
	appendString := func(num protowire.Number, s string) {
		if s == "" {
			return
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}

	appendVarint(fieldType, uint64(p.Type))
	appendVarint(fieldSeq, p.Seq)
	appendString(fieldFrom, p.From)
	appendString(fieldUdID, p.UdID)
	appendVarint(fieldOK, protowire.EncodeBool(p.OK))
	appendVarint(fieldCode, protowire.EncodeZigZag(int64(p.Code)))
	appendVarint(fieldStartDeviceID, protowire.EncodeZigZag(int64(p.StartDeviceID)))
	appendVarint(fieldIsUnchained, protowire.EncodeBool(p.IsUnchained))
	appendVarint(fieldX, protowire.EncodeZigZag(int64(p.X)))
	appendVarint(fieldY, protowire.EncodeZigZag(int64(p.Y)))
	return b
}

// Unmarshal decodes a packet. Unknown fields are skipped.
func Unmarshal(b []byte) (Packet, error) {
	var p Packet
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Packet{}, fmt.Errorf("%w: tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && num != fieldFrom && num != fieldUdID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Packet{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
			p.setVarint(num, v)
		case typ == protowire.BytesType && (num == fieldFrom || num == fieldUdID):
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return Packet{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
			if num == fieldFrom {
				p.From = s
			} else {
				p.UdID = s
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Packet{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if p.Type == PacketUnknown {
		return Packet{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return p, nil
}

func (p *Packet) setVarint(num protowire.Number, v uint64) {
	switch num {
	case fieldType:
		p.Type = PacketType(v)
	case fieldSeq:
		p.Seq = v
	case fieldOK:
		p.OK = protowire.DecodeBool(v)
	case fieldCode:
		p.Code = int32(protowire.DecodeZigZag(v))
	case fieldStartDeviceID:
		p.StartDeviceID = int32(protowire.DecodeZigZag(v))
	case fieldIsUnchained:
		p.IsUnchained = protowire.DecodeBool(v)
	case fieldX:
		p.X = int32(protowire.DecodeZigZag(v))
	case fieldY:
		p.Y = int32(protowire.DecodeZigZag(v))
	}
}
