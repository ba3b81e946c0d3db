package playersync

import (
	"fmt"

	"github.com/nshusa/battlerune-server/internal/constants"
	"github.com/nshusa/battlerune-server/internal/gameserver/packet"
	"github.com/nshusa/battlerune-server/internal/model"
)

// DecodeOptions describes the receiver's view before the packet was built.
type DecodeOptions struct {
	// Snapshot is the observer's viewport as captured right before Encode.
	Snapshot Snapshot
	// Additions is set when the encoder wrote the add-player sequence for
	// introduced candidates (AddPlayerIntroducer).
	Additions bool
}

// SlotUpdate is one slot that was flagged "update required".
type SlotUpdate struct {
	Slot  int
	Known bool // known-set pass; false for candidates

	// Mask is the wire mask of the slot's update block, 0 without one.
	Mask       int
	Appearance *model.Appearance

	Movement int // known slots only

	// Add-player sequence, candidates only.
	Added bool
	X, Y  int
}

// Frame is a decoded player update packet.
type Frame struct {
	Updates []SlotUpdate
	// Skipped counts slots covered by a "no update" flag or a skip run.
	Skipped int
}

// decodePass mirrors one encoder pass.
type decodePass struct {
	slots    []int
	selector bool
	known    bool
}

// Decode parses the payload of a player update packet the way the client
// does. Update blocks other than appearance cannot be sized and yield
// ErrUnsupportedUpdate.
func Decode(payload []byte, opts DecodeOptions) (Frame, error) {
	var f Frame
	r := packet.NewReader(payload)
	snap := &opts.Snapshot

	known := snap.KnownSlots()
	candidates := snap.CandidateSlots()
	passes := []decodePass{
		{slots: known, selector: false, known: true},
		{slots: known, selector: true, known: true},
		{slots: candidates, selector: true},
		{slots: candidates, selector: false},
	}

	// indexes into f.Updates whose block sits in the trailing byte section
	var withBlock []int

	for _, p := range passes {
		if err := r.EnterBitMode(); err != nil {
			return f, err
		}
		skip := 0
		for _, slot := range p.slots {
			if snap.Selector.Has(slot) != p.selector {
				continue
			}
			if skip > 0 {
				skip--
				f.Skipped++
				continue
			}

			required, err := r.ReadFlag()
			if err != nil {
				return f, fmt.Errorf("slot %d flag: %w", slot, err)
			}
			if !required {
				if skip, err = ReadSkip(r); err != nil {
					return f, fmt.Errorf("slot %d: %w", slot, err)
				}
				f.Skipped++
				continue
			}

			u := SlotUpdate{Slot: slot, Known: p.known}
			hasBlock := false
			switch {
			case p.known:
				if hasBlock, err = r.ReadFlag(); err != nil {
					return f, fmt.Errorf("slot %d mask flag: %w", slot, err)
				}
				mv, err := r.ReadBits(movementBits)
				if err != nil {
					return f, fmt.Errorf("slot %d movement: %w", slot, err)
				}
				u.Movement = int(mv)
			case opts.Additions:
				if hasBlock, err = readAddition(r, &u); err != nil {
					return f, fmt.Errorf("slot %d addition: %w", slot, err)
				}
			}

			if hasBlock {
				withBlock = append(withBlock, len(f.Updates))
			}
			f.Updates = append(f.Updates, u)
		}
		if err := r.ExitBitMode(); err != nil {
			return f, err
		}
	}

	for _, i := range withBlock {
		u := &f.Updates[i]
		mask, err := ReadMaskHeader(r)
		if err != nil {
			return f, fmt.Errorf("slot %d: %w", u.Slot, err)
		}
		u.Mask = mask
		if mask&^(MaskExtended|MaskAppearance) != 0 {
			return f, fmt.Errorf("slot %d mask %#x: %w", u.Slot, mask, ErrUnsupportedUpdate)
		}
		if mask&MaskAppearance != 0 {
			a, err := readAppearanceBlock(r)
			if err != nil {
				return f, fmt.Errorf("slot %d: %w", u.Slot, err)
			}
			u.Appearance = &a
		}
	}

	if r.Remaining() != 0 {
		return f, fmt.Errorf("%d trailing bytes: %w", r.Remaining(), ErrMalformedPacket)
	}
	return f, nil
}

func readAddition(r *packet.Reader, u *SlotUpdate) (bool, error) {
	typ, err := r.ReadBits(addTypeBits)
	if err != nil {
		return false, err
	}
	if typ != addTypePlain {
		return false, fmt.Errorf("add type %d: %w", typ, ErrMalformedPacket)
	}
	if _, err := r.ReadFlag(); err != nil { // region hash
		return false, err
	}
	x, err := r.ReadBits(constants.LocalCoordinateBits)
	if err != nil {
		return false, err
	}
	y, err := r.ReadBits(constants.LocalCoordinateBits)
	if err != nil {
		return false, err
	}
	u.Added = true
	u.X, u.Y = int(x), int(y)
	return r.ReadFlag()
}

func readAppearanceBlock(r *packet.Reader) (model.Appearance, error) {
	size, err := r.ReadByteMod(packet.ModAdd)
	if err != nil {
		return model.Appearance{}, fmt.Errorf("appearance length: %w", err)
	}
	block, err := r.ReadBytesMod(int(size), packet.ModAdd)
	if err != nil {
		return model.Appearance{}, fmt.Errorf("appearance block: %w", err)
	}
	return DecodeAppearance(block)
}

// DecodeMaskHeader parses a standalone mask header.
func DecodeMaskHeader(data []byte) (int, error) {
	return ReadMaskHeader(packet.NewReader(data))
}
