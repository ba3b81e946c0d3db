package playersync

import (
	"fmt"
	"strings"

	"github.com/nshusa/battlerune-server/internal/constants"
	"github.com/nshusa/battlerune-server/internal/gameserver/packet"
	"github.com/nshusa/battlerune-server/internal/model"
)

// Status icon sentinel: no skull, no head icon.
const noIcon = -1

const (
	equipmentPlaceholders = 4
	colorPlaceholders     = 5
	kitBias               = 0x100
)

// kitOrder is the order the client reads body kits in:
// chest, shield, full body, legs, hat, feet, full mask.
var kitOrder = [model.StyleSlots]int{
	model.StyleChest,
	model.StyleShield,
	model.StyleFullBody,
	model.StyleLegs,
	model.StyleHat,
	model.StyleFeet,
	model.StyleFullMask,
}

// WriteAppearanceBlock is the BlockWriter for model.UpdateAppearance.
// The block is prefixed with its length; both go through the add modification.
func WriteAppearanceBlock(dst *packet.Writer, actor model.Actor) error {
	a := actor.Appearance()
	if err := ValidateAppearance(a); err != nil {
		return err
	}

	scratch := packet.Get()
	defer scratch.Put()

	writeAppearance(scratch, a)
	if err := scratch.Err(); err != nil {
		return fmt.Errorf("appearance: %w", err)
	}
	if scratch.Len() > constants.MaxAppearanceBlockSize {
		return fmt.Errorf("appearance of %q is %d bytes: %w",
			a.Name, scratch.Len(), ErrAppearanceTooLarge)
	}

	dst.WriteByteMod(scratch.Len()&0xFF, packet.ModAdd)
	dst.WriteBytesMod(scratch.Bytes(), packet.ModAdd)
	return dst.Err()
}

// EncodeAppearance returns the unprefixed, unmodified appearance block.
func EncodeAppearance(a model.Appearance) ([]byte, error) {
	if err := ValidateAppearance(a); err != nil {
		return nil, err
	}
	w := packet.NewWriter(64 + len(a.Name))
	writeAppearance(w, a)
	if err := w.Err(); err != nil {
		return nil, err
	}
	if w.Len() > constants.MaxAppearanceBlockSize {
		return nil, fmt.Errorf("appearance of %q is %d bytes: %w", a.Name, w.Len(), ErrAppearanceTooLarge)
	}
	return w.Bytes(), nil
}

// Field ranges of the appearance block. Kits and animations are unsigned
// shorts (kits carry kitBias), the combat level is an unsigned byte.
const (
	maxKit         = 0xFFFF - kitBias
	maxAnimation   = 0xFFFF
	maxCombatLevel = 0xFF
)

// ValidateAppearance reports values the client cannot read back as written:
// a NUL in the name would end the string early and shift every later field.
func ValidateAppearance(a model.Appearance) error {
	if strings.IndexByte(a.Name, 0) >= 0 {
		return fmt.Errorf("appearance name %q: %w", a.Name, ErrInvalidName)
	}
	if a.CombatLevel < 0 || a.CombatLevel > maxCombatLevel {
		return fmt.Errorf("appearance of %q: combat level %d: %w", a.Name, a.CombatLevel, ErrAppearanceRange)
	}
	for slot, v := range a.Style {
		if v < 0 || v > maxKit {
			return fmt.Errorf("appearance of %q: style slot %d = %d: %w", a.Name, slot, v, ErrAppearanceRange)
		}
	}
	anim := a.Animations
	for _, v := range []int{anim.Stand, anim.StandTurn, anim.Walk, anim.Turn180, anim.Turn90CW, anim.Turn90CCW, anim.Run} {
		if v < 0 || v > maxAnimation {
			return fmt.Errorf("appearance of %q: animation %d: %w", a.Name, v, ErrAppearanceRange)
		}
	}
	return nil
}

func writeAppearance(w *packet.Writer, a model.Appearance) {
	w.WriteInt8(int(a.Gender))
	w.WriteInt8(noIcon) // skulled
	w.WriteInt8(noIcon) // head icon

	for range equipmentPlaceholders {
		w.WriteInt8(0)
	}
	w.WriteInt8(0)

	for _, slot := range kitOrder {
		w.WriteShort(kitBias + a.Style[slot])
	}

	for range colorPlaceholders {
		w.WriteInt8(0)
	}

	anim := a.Animations
	w.WriteShort(anim.Stand)
	w.WriteShort(anim.StandTurn)
	w.WriteShort(anim.Walk)
	w.WriteShort(anim.Turn180)
	w.WriteShort(anim.Turn90CW)
	w.WriteShort(anim.Turn90CCW)
	w.WriteShort(anim.Run)

	w.WriteString(a.Name)
	w.WriteInt8(a.CombatLevel)
	w.WriteShort(0) // skill level
	w.WriteInt8(0)  // hidden
}

// MaxNameLength is the longest display name whose appearance block still
// fits the one-byte length prefix.
const MaxNameLength = constants.MaxAppearanceBlockSize - fixedAppearanceSize

// fixedAppearanceSize counts every appearance byte except the name itself
// (its terminator included).
const fixedAppearanceSize = 1 + 2 + equipmentPlaceholders + 1 +
	2*model.StyleSlots + colorPlaceholders + 2*7 + 1 + 1 + 2 + 1

// DecodeAppearance parses an unprefixed appearance block.
func DecodeAppearance(block []byte) (model.Appearance, error) {
	r := packet.NewReader(block)
	var a model.Appearance

	gender, err := r.ReadByte()
	if err != nil {
		return a, fmt.Errorf("appearance gender: %w", err)
	}
	a.Gender = model.Gender(gender)

	// icons, equipment placeholders, reserved byte
	if _, err := r.ReadBytes(2 + equipmentPlaceholders + 1); err != nil {
		return a, fmt.Errorf("appearance header: %w", err)
	}

	for _, slot := range kitOrder {
		v, err := r.ReadShort()
		if err != nil {
			return a, fmt.Errorf("appearance kit: %w", err)
		}
		a.Style[slot] = v - kitBias
	}

	if _, err := r.ReadBytes(colorPlaceholders); err != nil {
		return a, fmt.Errorf("appearance colors: %w", err)
	}

	anims := []*int{
		&a.Animations.Stand,
		&a.Animations.StandTurn,
		&a.Animations.Walk,
		&a.Animations.Turn180,
		&a.Animations.Turn90CW,
		&a.Animations.Turn90CCW,
		&a.Animations.Run,
	}
	for _, dst := range anims {
		v, err := r.ReadShort()
		if err != nil {
			return a, fmt.Errorf("appearance animation: %w", err)
		}
		*dst = v
	}

	if a.Name, err = r.ReadString(); err != nil {
		return a, fmt.Errorf("appearance name: %w", err)
	}

	combat, err := r.ReadByte()
	if err != nil {
		return a, fmt.Errorf("appearance combat level: %w", err)
	}
	a.CombatLevel = int(combat)

	// skill level + hidden
	if _, err := r.ReadBytes(3); err != nil {
		return a, fmt.Errorf("appearance trailer: %w", err)
	}
	if r.Remaining() != 0 {
		return a, fmt.Errorf("appearance: %d trailing bytes: %w", r.Remaining(), ErrMalformedPacket)
	}
	return a, nil
}
