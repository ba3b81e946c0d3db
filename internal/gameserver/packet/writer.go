package packet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nshusa/battlerune-server/internal/constants"
)

// Access mode errors. A Writer records the first one it hits and ignores
// every write after it; see Err.
var (
	ErrBitAccess  = errors.New("bit access required")
	ErrByteAccess = errors.New("byte access required")
	ErrBitCount   = errors.New("bit count out of range")
)

// Modification is a legacy per-byte transformation some fields require.
type Modification uint8

const (
	ModNone     Modification = iota
	ModAdd                   // value + 128
	ModNegate                // -value
	ModSubtract              // 128 - value
)

// String returns the modification name.
func (m Modification) String() string {
	switch m {
	case ModNone:
		return "none"
	case ModAdd:
		return "add"
	case ModNegate:
		return "negate"
	case ModSubtract:
		return "subtract"
	default:
		return fmt.Sprintf("Modification(%d)", uint8(m))
	}
}

func (m Modification) apply(v int) byte {
	switch m {
	case ModAdd:
		v += constants.ByteModificationBias
	case ModNegate:
		v = -v
	case ModSubtract:
		v = constants.ByteModificationBias - v
	}
	return byte(v)
}

func (m Modification) revert(b byte) byte {
	switch m {
	case ModAdd:
		return b - constants.ByteModificationBias
	case ModNegate:
		return -b
	case ModSubtract:
		return constants.ByteModificationBias - b
	}
	return b
}

// Writer builds packet payloads. Uses Big-Endian byte order for all
// multi-byte values.
//
// A Writer is in byte mode until EnterBitMode is called. Bit-level writes are
// only legal between EnterBitMode and ExitBitMode, byte-level writes only
// outside of them. ExitBitMode pads the last partial byte with zero bits.
type Writer struct {
	buf     []byte
	bitPos  int // absolute bit index, valid in bit mode only
	bitMode bool
	err     error
}

// writerPool reduces allocations by reusing Writers.
// Get() returns a Writer with Reset() called, Put() returns it to pool.
var writerPool = sync.Pool{
	New: func() any {
		return &Writer{
			buf: make([]byte, 0, 512),
		}
	},
}

// Get returns a Writer from the pool (already Reset).
func Get() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// Put returns a Writer to the pool for reuse.
// IMPORTANT: Do not use the Writer (or slices from Bytes) after calling Put.
func (w *Writer) Put() {
	writerPool.Put(w)
}

// NewWriter creates a new packet writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{
		buf: make([]byte, 0, capacity),
	}
}

func (w *Writer) fail(op string, err error) {
	if w.err == nil {
		w.err = fmt.Errorf("%s: %w", op, err)
	}
}

func (w *Writer) requireBytes(op string) bool {
	if w.err != nil {
		return false
	}
	if w.bitMode {
		w.fail(op, ErrByteAccess)
		return false
	}
	return true
}

// EnterBitMode switches the writer to bit access.
// Calling it while already in bit mode is an error.
func (w *Writer) EnterBitMode() {
	if !w.requireBytes("enter bit mode") {
		return
	}
	w.bitMode = true
	w.bitPos = len(w.buf) * 8
}

// ExitBitMode switches the writer back to byte access.
// Calling it while not in bit mode is an error.
func (w *Writer) ExitBitMode() {
	if w.err != nil {
		return
	}
	if !w.bitMode {
		w.fail("exit bit mode", ErrBitAccess)
		return
	}
	w.bitMode = false
}

// InBitMode reports whether the writer is in bit access mode.
func (w *Writer) InBitMode() bool {
	return w.bitMode
}

// WriteBits writes the low n bits of value, most significant bit first.
func (w *Writer) WriteBits(n int, value uint32) {
	if w.err != nil {
		return
	}
	if !w.bitMode {
		w.fail("write bits", ErrBitAccess)
		return
	}
	if n < 1 || n > 32 {
		w.fail("write bits", fmt.Errorf("%w: %d", ErrBitCount, n))
		return
	}

	for i := n - 1; i >= 0; i-- {
		idx := w.bitPos >> 3
		if idx == len(w.buf) {
			w.buf = append(w.buf, 0)
		}
		if value>>uint(i)&1 != 0 {
			w.buf[idx] |= 0x80 >> uint(w.bitPos&7)
		}
		w.bitPos++
	}
}

// WriteFlag writes a single bit.
func (w *Writer) WriteFlag(flag bool) {
	var v uint32
	if flag {
		v = 1
	}
	w.WriteBits(1, v)
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) error {
	if !w.requireBytes("write byte") {
		return w.err
	}
	w.buf = append(w.buf, b)
	return nil
}

// WriteInt8 writes the low 8 bits of v.
func (w *Writer) WriteInt8(v int) {
	w.WriteByteMod(v, ModNone)
}

// WriteByteMod writes the low 8 bits of v after applying mod.
func (w *Writer) WriteByteMod(v int, mod Modification) {
	if !w.requireBytes("write byte") {
		return
	}
	w.buf = append(w.buf, mod.apply(v))
}

// WriteShort writes the low 16 bits of v (2 bytes, BE).
func (w *Writer) WriteShort(v int) {
	if !w.requireBytes("write short") {
		return
	}
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

// WriteInt writes an int32 (4 bytes, BE).
func (w *Writer) WriteInt(v int32) {
	if !w.requireBytes("write int") {
		return
	}
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteString writes the raw string bytes followed by a 0 terminator.
func (w *Writer) WriteString(s string) {
	if !w.requireBytes("write string") {
		return
	}
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(data []byte) {
	if !w.requireBytes("write bytes") {
		return
	}
	w.buf = append(w.buf, data...)
}

// WriteBytesMod writes data applying mod to every byte.
func (w *Writer) WriteBytesMod(data []byte, mod Modification) {
	if !w.requireBytes("write bytes") {
		return
	}
	for _, b := range data {
		w.buf = append(w.buf, mod.apply(int(b)))
	}
}

// Err returns the first access violation recorded by the writer.
func (w *Writer) Err() error {
	return w.err
}

// Bytes returns the accumulated payload.
// In bit mode the last byte may be partially written.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length of the payload in bytes.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset clears the buffer, the access mode and any recorded error.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.bitPos = 0
	w.bitMode = false
	w.err = nil
}

// ToPacket finalizes the payload into a Packet with the given opcode and
// framing. The payload is copied, so the Writer may be reused afterwards.
func (w *Writer) ToPacket(opcode int, framing Framing) (Packet, error) {
	if w.err != nil {
		return Packet{}, w.err
	}
	if w.bitMode {
		return Packet{}, fmt.Errorf("finalize packet %d: %w", opcode, ErrByteAccess)
	}
	if err := framing.check(len(w.buf)); err != nil {
		return Packet{}, fmt.Errorf("finalize packet %d: %w", opcode, err)
	}

	payload := make([]byte, len(w.buf))
	copy(payload, w.buf)
	return Packet{
		Opcode:  uint8(opcode),
		Framing: framing,
		Payload: payload,
	}, nil
}
