package packet

import (
	"fmt"
)

// DefaultStringCapacity — типичная длина display name (characters).
// Большинство имён ≤12 символов, pre-allocation снижает allocations.
const DefaultStringCapacity = 16

// Reader is the receiver-side counterpart of Writer: Big-Endian byte access
// plus MSB-first bit access between EnterBitMode and ExitBitMode.
type Reader struct {
	data    []byte
	pos     int // byte position, valid in byte mode
	bitPos  int // absolute bit position, valid in bit mode
	bitMode bool
}

// NewReader creates a new packet reader.
func NewReader(data []byte) *Reader {
	return &Reader{
		data: data,
		pos:  0,
	}
}

// EnterBitMode switches the reader to bit access at the current byte.
func (r *Reader) EnterBitMode() error {
	if r.bitMode {
		return fmt.Errorf("enter bit mode: %w", ErrByteAccess)
	}
	r.bitMode = true
	r.bitPos = r.pos * 8
	return nil
}

// ExitBitMode skips the remainder of the current partial byte and returns
// to byte access.
func (r *Reader) ExitBitMode() error {
	if !r.bitMode {
		return fmt.Errorf("exit bit mode: %w", ErrBitAccess)
	}
	r.bitMode = false
	r.pos = (r.bitPos + 7) / 8
	return nil
}

// ReadBits reads n bits, most significant first.
func (r *Reader) ReadBits(n int) (uint32, error) {
	if !r.bitMode {
		return 0, fmt.Errorf("ReadBits: %w", ErrBitAccess)
	}
	if n < 1 || n > 32 {
		return 0, fmt.Errorf("ReadBits: %w: %d", ErrBitCount, n)
	}
	if r.bitPos+n > len(r.data)*8 {
		return 0, fmt.Errorf("ReadBits: not enough data (bit=%d, need=%d, len=%d)", r.bitPos, n, len(r.data))
	}

	var v uint32
	for range n {
		b := r.data[r.bitPos>>3] >> (7 - uint(r.bitPos&7)) & 1
		v = v<<1 | uint32(b)
		r.bitPos++
	}
	return v, nil
}

// ReadFlag reads a single bit.
func (r *Reader) ReadFlag() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.bitMode {
		return 0, fmt.Errorf("ReadByte: %w", ErrByteAccess)
	}
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("ReadByte: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadByteMod reads a byte written with mod and reverts the transformation.
func (r *Reader) ReadByteMod(mod Modification) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	return mod.revert(b), nil
}

// ReadShort reads an unsigned 16-bit value (2 bytes, BE).
func (r *Reader) ReadShort() (int, error) {
	if r.bitMode {
		return 0, fmt.Errorf("ReadShort: %w", ErrByteAccess)
	}
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("ReadShort: not enough data (pos=%d, len=%d)", r.pos, len(r.data))
	}
	v := int(r.data[r.pos])<<8 | int(r.data[r.pos+1])
	r.pos += 2
	return v, nil
}

// ReadString reads bytes up to a 0 terminator.
func (r *Reader) ReadString() (string, error) {
	if r.bitMode {
		return "", fmt.Errorf("ReadString: %w", ErrByteAccess)
	}
	buf := make([]byte, 0, DefaultStringCapacity)
	for {
		if r.pos >= len(r.data) {
			return "", fmt.Errorf("ReadString: unexpected end of data (pos=%d, len=%d)", r.pos, len(r.data))
		}
		b := r.data[r.pos]
		r.pos++
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}

// ReadBytes reads n bytes (ZERO-COPY — returns subslice of internal data).
// IMPORTANT: Caller MUST NOT modify returned bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.bitMode {
		return nil, fmt.Errorf("ReadBytes: %w", ErrByteAccess)
	}
	if n < 0 {
		return nil, fmt.Errorf("ReadBytes: negative count %d", n)
	}
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("ReadBytes: not enough data (pos=%d, need=%d, len=%d)", r.pos, n, len(r.data))
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadBytesMod reads n bytes and reverts mod on each one into a new slice.
func (r *Reader) ReadBytesMod(n int, mod Modification) ([]byte, error) {
	raw, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = mod.revert(b)
	}
	return out, nil
}

// Remaining returns the number of unread bytes (byte mode).
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Position returns the current byte position (byte mode).
func (r *Reader) Position() int {
	return r.pos
}
