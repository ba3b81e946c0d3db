package playersync

import (
	"fmt"

	"github.com/nshusa/battlerune-server/internal/constants"
	"github.com/nshusa/battlerune-server/internal/gameserver/packet"
	"github.com/nshusa/battlerune-server/internal/model"
)

// Movement types of a known player. Only movementNone is produced.
const (
	movementBits = 2
	movementNone = 0
)

// Encoder builds the player update packet (opcode 83) for one observer.
//
// Encoder holds configuration only; every Encode call works on its own
// pooled buffers, so one Encoder may be shared by all tick workers.
type Encoder struct {
	registry        *Registry
	introducer      Introducer
	viewingDistance int32
	addThreshold    int
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithRegistry replaces the default registry.
func WithRegistry(r *Registry) Option {
	return func(e *Encoder) {
		e.registry = r
	}
}

// WithIntroducer replaces NotImplementedIntroducer.
func WithIntroducer(in Introducer) Option {
	return func(e *Encoder) {
		e.introducer = in
	}
}

// WithViewingDistance sets the radius within which candidates are introduced.
func WithViewingDistance(tiles int32) Option {
	return func(e *Encoder) {
		e.viewingDistance = tiles
	}
}

// WithAddThreshold caps introductions per observer per tick.
func WithAddThreshold(n int) Option {
	return func(e *Encoder) {
		e.addThreshold = n
	}
}

// NewEncoder creates an encoder with the appearance registry, the
// not-implemented introducer and the default distance and add threshold.
func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{
		registry:        DefaultRegistry(),
		introducer:      NotImplementedIntroducer{},
		viewingDistance: constants.DefaultViewingDistance,
		addThreshold:    constants.DefaultAddThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the encoder's registry.
func (e *Encoder) Registry() *Registry {
	return e.registry
}

// encodeCall is the per-call state of one Encode.
type encodeCall struct {
	enc      *Encoder
	table    SlotTable
	observer model.Actor
	vp       *Viewport
	bits     *packet.Writer
	blocks   *packet.Writer
	added    int
}

// Encode builds the player update packet for observer and advances vp to
// the next tick.
//
// table must not change while Encode runs. On error no packet is produced
// and vp is left mid-tick; the caller must Reset it.
func (e *Encoder) Encode(table SlotTable, observer model.Actor, vp *Viewport) (packet.Packet, error) {
	if observer == nil {
		return packet.Packet{}, ErrNilObserver
	}
	if idx := observer.Index(); idx <= 0 || idx >= MaxSlots {
		return packet.Packet{}, fmt.Errorf("observer slot %d: %w", idx, ErrNilObserver)
	}

	bits := packet.Get()
	defer bits.Put()
	blocks := packet.Get()
	defer blocks.Put()

	c := &encodeCall{
		enc:      e,
		table:    table,
		observer: observer,
		vp:       vp,
		bits:     bits,
		blocks:   blocks,
	}

	// Known players before candidates; the selector order flips between the
	// two sets so a slot skipped in one phase is visited first next tick.
	if err := c.knownPass(false); err != nil {
		return packet.Packet{}, err
	}
	if err := c.knownPass(true); err != nil {
		return packet.Packet{}, err
	}
	if err := c.candidatePass(true); err != nil {
		return packet.Packet{}, err
	}
	if err := c.candidatePass(false); err != nil {
		return packet.Packet{}, err
	}

	vp.Repartition(table, observer)

	bits.WriteBytes(blocks.Bytes())
	pkt, err := bits.ToPacket(constants.PlayerUpdateOpcode, packet.FramingVarShort)
	if err != nil {
		return packet.Packet{}, fmt.Errorf("player update for slot %d: %w", observer.Index(), err)
	}
	return pkt, nil
}

// knownRequired: under PartitionIntroduced a known slot that changed hands
// since the last repartition carries nothing; its new occupant was never
// introduced to the observer.
func (c *encodeCall) knownRequired(slot int, actor model.Actor) bool {
	if actor == nil || actor.PendingUpdates().Empty() {
		return false
	}
	if c.vp.policy == PartitionIntroduced && slot != c.observer.Index() {
		return c.vp.introduced[slot] == actor.ID()
	}
	return true
}

func (c *encodeCall) candidateRequired(_ int, actor model.Actor) bool {
	if actor == nil || c.added >= c.enc.addThreshold {
		return false
	}
	if actor.Index() == c.observer.Index() {
		return false
	}
	return actor.Location().WithinDistance(c.observer.Location(), c.enc.viewingDistance)
}

func (c *encodeCall) knownPass(selector bool) error {
	return c.pass(c.vp.known, selector, c.knownRequired, c.updateKnown)
}

func (c *encodeCall) candidatePass(selector bool) error {
	return c.pass(c.vp.candidates, selector, c.candidateRequired, c.introduce)
}

// pass visits the slots of one set whose selector bit equals selector.
// Runs of slots that need no update are written as a single skip.
func (c *encodeCall) pass(slots []int, selector bool, required func(slot int, actor model.Actor) bool, update func(slot int, actor model.Actor) error) error {
	c.bits.EnterBitMode()

	skip := 0
	for i, slot := range slots {
		if c.vp.selector(slot) != selector {
			continue
		}
		if skip > 0 {
			skip--
			c.vp.markProcessed(slot)
			continue
		}

		actor := c.table.Actor(slot)
		need := required(slot, actor)
		c.bits.WriteFlag(need)

		if need {
			if err := update(slot, actor); err != nil {
				return err
			}
			continue
		}

		skip = c.countSkip(slots[i+1:], selector, required)
		if err := WriteSkip(c.bits, skip); err != nil {
			return err
		}
		c.vp.markProcessed(slot)
	}

	c.bits.ExitBitMode()
	return c.bits.Err()
}

// countSkip counts the same-phase slots after the current one that need no
// update, up to the longest run a skip can carry.
func (c *encodeCall) countSkip(rest []int, selector bool, required func(slot int, actor model.Actor) bool) int {
	n := 0
	for _, slot := range rest {
		if n == constants.MaxSkipRun {
			break
		}
		if c.vp.selector(slot) != selector {
			continue
		}
		if required(slot, c.table.Actor(slot)) {
			break
		}
		n++
	}
	return n
}

func (c *encodeCall) updateKnown(slot int, actor model.Actor) error {
	pending := actor.PendingUpdates()
	c.bits.WriteFlag(true)
	if err := c.enc.registry.AppendBlock(c.blocks, actor, pending); err != nil {
		return fmt.Errorf("update slot %d for observer %d: %w", slot, c.observer.Index(), err)
	}
	c.bits.WriteBits(movementBits, movementNone)
	return nil
}

func (c *encodeCall) introduce(slot int, actor model.Actor) error {
	ok, err := c.enc.introducer.Introduce(&Introduction{
		Bits:     c.bits,
		Blocks:   c.blocks,
		Registry: c.enc.registry,
		Observer: c.observer,
		Actor:    actor,
	})
	if err != nil {
		return fmt.Errorf("introduce slot %d to observer %d: %w", slot, c.observer.Index(), err)
	}
	if ok {
		c.added++
		c.vp.markProcessed(slot)
		c.vp.markIntroduced(slot, actor.ID())
	}
	return nil
}
