package playersync

import (
	"fmt"

	"github.com/nshusa/battlerune-server/internal/gameserver/packet"
	"github.com/nshusa/battlerune-server/internal/model"
)

// Wire mask bits of the player update block header.
const (
	MaskInteracting   = 0x1
	MaskHit           = 0x2
	MaskExtended      = 0x4 // set when the header is two bytes long
	MaskChat          = 0x8
	MaskAppearance    = 0x10
	MaskForcedChat    = 0x20
	MaskFaceTile      = 0x40
	MaskAnimation     = 0x80
	MaskSecondaryHit  = 0x100
	MaskForceMovement = 0x200
	MaskGraphics      = 0x800
)

// BlockWriter appends the sub-block of one update kind for actor to dst.
// dst is in byte mode.
type BlockWriter func(dst *packet.Writer, actor model.Actor) error

type maskEntry struct {
	kind  model.UpdateFlag
	bit   int
	write BlockWriter
}

// Registry maps update kinds to wire mask bits and block writers.
// Entries are kept in the order the client reads the blocks.
//
// Register writers before the registry is shared; lookups are not locked.
type Registry struct {
	entries []maskEntry
}

// NewRegistry returns a registry that knows every update kind but has no
// block writers.
func NewRegistry() *Registry {
	return &Registry{
		entries: []maskEntry{
			{kind: model.UpdateForceMovement, bit: MaskForceMovement},
			{kind: model.UpdateGraphics, bit: MaskGraphics},
			{kind: model.UpdateAnimation, bit: MaskAnimation},
			{kind: model.UpdateForcedChat, bit: MaskForcedChat},
			{kind: model.UpdateChat, bit: MaskChat},
			{kind: model.UpdateInteracting, bit: MaskInteracting},
			{kind: model.UpdateAppearance, bit: MaskAppearance},
			{kind: model.UpdateFaceTile, bit: MaskFaceTile},
			{kind: model.UpdateHit, bit: MaskHit},
			{kind: model.UpdateSecondaryHit, bit: MaskSecondaryHit},
		},
	}
}

// DefaultRegistry returns a registry with the appearance block writer.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	if err := r.Register(model.UpdateAppearance, WriteAppearanceBlock); err != nil {
		panic(err)
	}
	return r
}

// Register installs the block writer for a single update kind.
func (r *Registry) Register(kind model.UpdateFlag, w BlockWriter) error {
	for i := range r.entries {
		if r.entries[i].kind == kind {
			r.entries[i].write = w
			return nil
		}
	}
	return fmt.Errorf("register %s: %w", kind, ErrUnknownUpdateKind)
}

// Mask returns the wire mask for the pending kinds, without the extended bit.
// Every pending kind must have a block writer.
func (r *Registry) Mask(pending model.UpdateFlag) (int, error) {
	mask := 0
	remaining := pending
	for _, e := range r.entries {
		if pending&e.kind == 0 {
			continue
		}
		if e.write == nil {
			return 0, fmt.Errorf("mask %s: %w", e.kind, ErrUnsupportedUpdate)
		}
		mask |= e.bit
		remaining &^= e.kind
	}
	if remaining != 0 {
		return 0, fmt.Errorf("mask %s: %w", remaining, ErrUnknownUpdateKind)
	}
	return mask, nil
}

// AppendBlock writes the mask header for pending followed by one sub-block
// per kind, in registry order.
func (r *Registry) AppendBlock(dst *packet.Writer, actor model.Actor, pending model.UpdateFlag) error {
	mask, err := r.Mask(pending)
	if err != nil {
		return err
	}

	WriteMaskHeader(dst, mask)
	for _, e := range r.entries {
		if pending&e.kind == 0 {
			continue
		}
		if err := e.write(dst, actor); err != nil {
			return fmt.Errorf("write %s block for slot %d: %w", e.kind, actor.Index(), err)
		}
	}
	return dst.Err()
}

// WriteMaskHeader writes mask as one byte, or as two bytes (low byte first)
// with MaskExtended set when it does not fit in one.
func WriteMaskHeader(dst *packet.Writer, mask int) {
	if mask >= 0x100 {
		mask |= MaskExtended
		dst.WriteInt8(mask & 0xFF)
		dst.WriteInt8(mask >> 8)
		return
	}
	dst.WriteInt8(mask & 0xFF)
}

// ReadMaskHeader reads a header written by WriteMaskHeader.
// The returned mask keeps MaskExtended when it was present.
func ReadMaskHeader(r *packet.Reader) (int, error) {
	lo, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("read mask: %w", err)
	}
	mask := int(lo)
	if mask&MaskExtended != 0 {
		hi, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("read extended mask: %w", err)
		}
		mask |= int(hi) << 8
	}
	return mask, nil
}
