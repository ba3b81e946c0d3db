// Package trace records delivered player updates to a zstd-compressed JSON
// lines file so they can be decoded offline.
package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/nshusa/battlerune-server/internal/gameserver/packet"
	"github.com/nshusa/battlerune-server/internal/gameserver/playersync"
	"github.com/nshusa/battlerune-server/internal/model"
)

const (
	formatName    = "battlerune-trace"
	formatVersion = 1
)

// ErrBadHeader is returned when a stream does not start with a trace header.
var ErrBadHeader = errors.New("not a player update trace")

type header struct {
	Format    string `json:"format"`
	Version   int    `json:"version"`
	Additions bool   `json:"additions"`
}

// Record is one delivered player update.
type Record struct {
	Tick       uint64 `json:"tick"`
	Observer   int    `json:"observer"`
	ObserverID uint32 `json:"observer_id"`
	Known      []byte `json:"known"`
	Selector   []byte `json:"selector"`
	Opcode     uint8  `json:"opcode"`
	Payload    []byte `json:"payload"`
}

// NewRecord captures pkt together with the viewport snapshot it was built from.
func NewRecord(tick uint64, observer model.Actor, snap playersync.Snapshot, pkt packet.Packet) Record {
	return Record{
		Tick:       tick,
		Observer:   observer.Index(),
		ObserverID: observer.ID(),
		Known:      snap.Known[:],
		Selector:   snap.Selector[:],
		Opcode:     pkt.Opcode,
		Payload:    pkt.Payload,
	}
}

// Snapshot rebuilds the viewport snapshot stored in the record.
func (r Record) Snapshot() playersync.Snapshot {
	var s playersync.Snapshot
	copy(s.Known[:], r.Known)
	copy(s.Selector[:], r.Selector)
	return s
}

// Recorder appends records to a zstd stream. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	closer  io.Closer // underlying file, nil for caller-owned writers
	enc     *zstd.Encoder
	w       *bufio.Writer
	records int
}

// Create opens path for a new trace. level is a zstd level (1 fastest .. 22).
func Create(path string, level int, additions bool) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating trace dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace: %w", err)
	}
	r, err := NewRecorder(f, level, additions)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewRecorder writes a trace to w. Close flushes but does not close w.
func NewRecorder(w io.Writer, level int, additions bool) (*Recorder, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	r := &Recorder{
		enc: enc,
		w:   bufio.NewWriterSize(enc, 128*1024),
	}
	if err := r.writeLine(header{Format: formatName, Version: formatVersion, Additions: additions}); err != nil {
		_ = enc.Close()
		return nil, err
	}
	return r, nil
}

// Record appends rec.
func (r *Recorder) Record(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return os.ErrClosed
	}
	if err := r.writeLine(rec); err != nil {
		return err
	}
	r.records++
	return nil
}

// Records returns how many records were written.
func (r *Recorder) Records() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}

func (r *Recorder) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding trace record: %w", err)
	}
	if _, err := r.w.Write(b); err != nil {
		return err
	}
	return r.w.WriteByte('\n')
}

// Close flushes the stream and closes the file opened by Create.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return nil
	}
	err := r.w.Flush()
	if cerr := r.enc.Close(); err == nil {
		err = cerr
	}
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	r.w = nil
	return err
}

// Reader iterates the records of a trace.
type Reader struct {
	closer    io.Closer
	dec       *zstd.Decoder
	sc        *bufio.Scanner
	additions bool
}

// Open opens a trace file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads a trace from src and validates its header.
func NewReader(src io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	sc := bufio.NewScanner(dec)
	// one record holds two slot bitmaps plus a base64 payload of up to 64 KiB
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	r := &Reader{dec: dec, sc: sc}
	if !sc.Scan() {
		dec.Close()
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("reading trace header: %w", err)
		}
		return nil, ErrBadHeader
	}
	var h header
	if err := json.Unmarshal(sc.Bytes(), &h); err != nil || h.Format != formatName {
		dec.Close()
		return nil, ErrBadHeader
	}
	if h.Version != formatVersion {
		dec.Close()
		return nil, fmt.Errorf("trace version %d: %w", h.Version, ErrBadHeader)
	}
	r.additions = h.Additions
	return r, nil
}

// Additions reports whether the traced server wrote the add-player sequence.
func (r *Reader) Additions() bool {
	return r.additions
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return rec, fmt.Errorf("reading trace: %w", err)
		}
		return rec, io.EOF
	}
	if err := json.Unmarshal(r.sc.Bytes(), &rec); err != nil {
		return rec, fmt.Errorf("decoding trace record: %w", err)
	}
	return rec, nil
}

// Decode decodes the record's packet with the reader's options.
func (r *Reader) Decode(rec Record) (playersync.Frame, error) {
	return playersync.Decode(rec.Payload, playersync.DecodeOptions{
		Snapshot:  rec.Snapshot(),
		Additions: r.additions,
	})
}

// Close releases the decoder and the file opened by Open.
func (r *Reader) Close() error {
	r.dec.Close()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
