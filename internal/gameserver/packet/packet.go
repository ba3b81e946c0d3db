package packet

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when a payload does not fit its length field.
var ErrPayloadTooLarge = errors.New("payload too large for framing")

// Framing selects how a packet's payload length is sent on the wire.
type Framing uint8

const (
	FramingFixed    Framing = iota // no length field, size known by the client
	FramingVarByte                 // 1-byte length field
	FramingVarShort                // 2-byte length field (BE)
)

// String returns the framing name.
func (f Framing) String() string {
	switch f {
	case FramingFixed:
		return "fixed"
	case FramingVarByte:
		return "var-byte"
	case FramingVarShort:
		return "var-short"
	default:
		return fmt.Sprintf("Framing(%d)", uint8(f))
	}
}

// HeaderSize returns the number of length bytes the framing adds.
func (f Framing) HeaderSize() int {
	switch f {
	case FramingVarByte:
		return 1
	case FramingVarShort:
		return 2
	default:
		return 0
	}
}

func (f Framing) check(size int) error {
	switch f {
	case FramingVarByte:
		if size > 0xFF {
			return fmt.Errorf("%w: %d bytes (%s)", ErrPayloadTooLarge, size, f)
		}
	case FramingVarShort:
		if size > 0xFFFF {
			return fmt.Errorf("%w: %d bytes (%s)", ErrPayloadTooLarge, size, f)
		}
	}
	return nil
}

// Packet is a finalized server→client packet, ready for the transport.
type Packet struct {
	Opcode  uint8
	Framing Framing
	Payload []byte
}

// Size returns the encoded size: opcode + length field + payload.
func (p Packet) Size() int {
	return 1 + p.Framing.HeaderSize() + len(p.Payload)
}

// Encode returns the wire form [opcode][length][payload].
func (p Packet) Encode() []byte {
	out := make([]byte, 0, p.Size())
	out = append(out, p.Opcode)
	switch p.Framing {
	case FramingVarByte:
		out = append(out, byte(len(p.Payload)))
	case FramingVarShort:
		out = append(out, byte(len(p.Payload)>>8), byte(len(p.Payload)))
	}
	return append(out, p.Payload...)
}

// Parse splits an encoded packet back into opcode and payload.
// Fixed framing consumes the rest of data as payload.
func Parse(data []byte, framing Framing) (Packet, error) {
	if len(data) < 1+framing.HeaderSize() {
		return Packet{}, fmt.Errorf("parse packet: short header (%d bytes)", len(data))
	}

	p := Packet{Opcode: data[0], Framing: framing}
	rest := data[1:]
	size := len(rest)
	switch framing {
	case FramingVarByte:
		size = int(rest[0])
		rest = rest[1:]
	case FramingVarShort:
		size = int(rest[0])<<8 | int(rest[1])
		rest = rest[2:]
	}
	if size > len(rest) {
		return Packet{}, fmt.Errorf("parse packet %d: payload truncated (want %d, have %d)", p.Opcode, size, len(rest))
	}
	p.Payload = rest[:size]
	return p, nil
}
