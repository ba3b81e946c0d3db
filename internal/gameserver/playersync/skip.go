package playersync

import (
	"fmt"

	"github.com/nshusa/battlerune-server/internal/constants"
	"github.com/nshusa/battlerune-server/internal/gameserver/packet"
)

// Skip run selectors (2 bits) and their payload widths.
const (
	skipNone   = 0 // no payload
	skipShort  = 1 // 5 bits, 1..31
	skipMedium = 2 // 8 bits, up to 255
	skipLong   = 3 // 11 bits, up to 2047
)

// WriteSkip encodes a run of n slots that need no update.
// The writer must be in bit mode.
func WriteSkip(w *packet.Writer, n int) error {
	switch {
	case n < 0:
		return fmt.Errorf("write skip %d: %w", n, ErrNegativeSkip)
	case n == 0:
		w.WriteBits(2, skipNone)
	case n < 32:
		w.WriteBits(2, skipShort)
		w.WriteBits(5, uint32(n))
	case n < 256:
		w.WriteBits(2, skipMedium)
		w.WriteBits(8, uint32(n))
	case n <= constants.MaxSkipRun:
		w.WriteBits(2, skipLong)
		w.WriteBits(11, uint32(n))
	default:
		return fmt.Errorf("write skip %d: %w", n, ErrSkipOverflow)
	}
	return w.Err()
}

// ReadSkip decodes a skip run written by WriteSkip.
func ReadSkip(r *packet.Reader) (int, error) {
	sel, err := r.ReadBits(2)
	if err != nil {
		return 0, fmt.Errorf("read skip selector: %w", err)
	}

	var width int
	switch sel {
	case skipNone:
		return 0, nil
	case skipShort:
		width = 5
	case skipMedium:
		width = 8
	default:
		width = 11
	}

	n, err := r.ReadBits(width)
	if err != nil {
		return 0, fmt.Errorf("read skip payload: %w", err)
	}
	return int(n), nil
}
