package playersync

import (
	"github.com/nshusa/battlerune-server/internal/constants"
	"github.com/nshusa/battlerune-server/internal/gameserver/packet"
	"github.com/nshusa/battlerune-server/internal/model"
)

// Introduction is what an Introducer gets to work with for one candidate.
// Bits is in bit mode and already carries the candidate's "update required"
// flag; Blocks is the byte-mode buffer appended after the bit section.
type Introduction struct {
	Bits     *packet.Writer
	Blocks   *packet.Writer
	Registry *Registry
	Observer model.Actor
	Actor    model.Actor
}

// Introducer introduces a candidate to an observer.
// It reports whether the actor was introduced; only introduced candidates
// are marked processed and count against the per-tick add threshold.
type Introducer interface {
	Introduce(in *Introduction) (bool, error)
}

// IntroducerFunc adapts a function to Introducer.
type IntroducerFunc func(in *Introduction) (bool, error)

// Introduce calls f(in).
func (f IntroducerFunc) Introduce(in *Introduction) (bool, error) {
	return f(in)
}

// NotImplementedIntroducer writes nothing and never introduces anyone.
// It is the default until the add-player sequence is enabled.
type NotImplementedIntroducer struct{}

// Introduce always reports false.
func (NotImplementedIntroducer) Introduce(*Introduction) (bool, error) {
	return false, nil
}

// Add-player sequence: 2-bit type, region change flag, two 13-bit
// coordinates, then the "has mask updates" flag.
const (
	addTypeBits  = 2
	addTypePlain = 0
	coordMask    = 1<<constants.LocalCoordinateBits - 1
)

// AddPlayerIntroducer writes the add-player sequence and an update block
// with the appearance forced on, so the observer can draw the new player.
type AddPlayerIntroducer struct{}

// Introduce writes the add sequence for in.Actor.
func (AddPlayerIntroducer) Introduce(in *Introduction) (bool, error) {
	loc := in.Actor.Location()

	in.Bits.WriteBits(addTypeBits, addTypePlain)
	in.Bits.WriteFlag(false) // region hash unchanged
	in.Bits.WriteBits(constants.LocalCoordinateBits, uint32(loc.X)&coordMask)
	in.Bits.WriteBits(constants.LocalCoordinateBits, uint32(loc.Y)&coordMask)
	in.Bits.WriteFlag(true)
	if err := in.Bits.Err(); err != nil {
		return false, err
	}

	pending := in.Actor.PendingUpdates() | model.UpdateAppearance
	if err := in.Registry.AppendBlock(in.Blocks, in.Actor, pending); err != nil {
		return false, err
	}
	return true, nil
}
