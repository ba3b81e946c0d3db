package playersync

import (
	"fmt"
	"strings"

	"github.com/nshusa/battlerune-server/internal/constants"
	"github.com/nshusa/battlerune-server/internal/model"
)

// MaxSlots is the number of slot ids, including the unused slot 0.
const MaxSlots = constants.MaxPlayers

// Throttle bits, one pair per slot.
//
// bit 0 selects which of the two passes of its set a slot belongs to this
// tick; bit 1 marks the slot as processed. Every tick the value is shifted
// right by one, so the processed marker becomes the next tick's selector.
const (
	throttleSelector  = 0x1
	throttleProcessed = 0x2
)

// SlotTable is the read-only slot → occupant view of the world.
// Actor must return a nil interface for empty slots.
type SlotTable interface {
	Actor(index int) model.Actor
}

// PartitionPolicy decides which occupied slots count as known to an observer.
type PartitionPolicy uint8

const (
	// PartitionOccupancy treats every occupied slot as known, whether or not
	// its occupant was ever introduced to the observer.
	PartitionOccupancy PartitionPolicy = iota
	// PartitionIntroduced treats a slot as known only while it is held by the
	// player that was introduced there, or by the observer itself.
	PartitionIntroduced
)

// String returns the policy name used in configuration.
func (p PartitionPolicy) String() string {
	switch p {
	case PartitionOccupancy:
		return "occupancy"
	case PartitionIntroduced:
		return "introduced"
	default:
		return fmt.Sprintf("PartitionPolicy(%d)", uint8(p))
	}
}

// ParsePartitionPolicy parses a policy name.
func ParsePartitionPolicy(s string) (PartitionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "occupancy":
		return PartitionOccupancy, nil
	case "introduced":
		return PartitionIntroduced, nil
	default:
		return 0, fmt.Errorf("unknown partition policy %q", s)
	}
}

// Viewport is one observer's tick-persistent view of the other players.
// It is owned by the observer's session and only touched by that observer's
// encode call, so it carries no lock.
type Viewport struct {
	policy     PartitionPolicy
	known      []int
	candidates []int
	throttle   [MaxSlots]uint8
	introduced [MaxSlots]uint32 // player id introduced at each slot, 0 = none
}

// NewViewport creates an empty viewport: every slot is a candidate.
func NewViewport(policy PartitionPolicy) *Viewport {
	v := &Viewport{
		policy:     policy,
		known:      make([]int, 0, MaxSlots-1),
		candidates: make([]int, 0, MaxSlots-1),
	}
	v.Reset()
	return v
}

// Reset forgets everything the observer knew. Called on disconnect, on slot
// reuse, and after a failed encode.
func (v *Viewport) Reset() {
	v.known = v.known[:0]
	v.candidates = v.candidates[:0]
	for slot := 1; slot < MaxSlots; slot++ {
		v.candidates = append(v.candidates, slot)
	}
	clear(v.throttle[:])
	clear(v.introduced[:])
}

// Policy returns the partition policy.
func (v *Viewport) Policy() PartitionPolicy {
	return v.policy
}

// Known returns the slots believed introduced, in ascending order.
// The slice is owned by the viewport.
func (v *Viewport) Known() []int {
	return v.known
}

// Candidates returns the slots not yet introduced, in ascending order.
// The slice is owned by the viewport.
func (v *Viewport) Candidates() []int {
	return v.candidates
}

// Throttle returns the two-bit throttle value of slot.
func (v *Viewport) Throttle(slot int) uint8 {
	return v.throttle[slot]
}

// Introduced reports the id of the player introduced at slot (0 = none).
func (v *Viewport) Introduced(slot int) uint32 {
	return v.introduced[slot]
}

func (v *Viewport) selector(slot int) bool {
	return v.throttle[slot]&throttleSelector != 0
}

func (v *Viewport) markProcessed(slot int) {
	v.throttle[slot] |= throttleProcessed
}

func (v *Viewport) markIntroduced(slot int, id uint32) {
	v.introduced[slot] = id
}

// Repartition shifts every throttle value and rebuilds the known and
// candidate lists from the live slot table.
func (v *Viewport) Repartition(table SlotTable, observer model.Actor) {
	v.known = v.known[:0]
	v.candidates = v.candidates[:0]
	self := observer.Index()

	for slot := 1; slot < MaxSlots; slot++ {
		v.throttle[slot] >>= 1

		actor := table.Actor(slot)
		if v.isKnown(slot, actor, self) {
			v.known = append(v.known, slot)
		} else {
			v.candidates = append(v.candidates, slot)
		}
	}
}

func (v *Viewport) isKnown(slot int, actor model.Actor, self int) bool {
	if actor == nil {
		v.introduced[slot] = 0
		return false
	}
	if v.policy == PartitionOccupancy || slot == self {
		return true
	}
	if v.introduced[slot] != actor.ID() {
		// slot changed hands since the introduction
		v.introduced[slot] = 0
		return false
	}
	return true
}

// Snapshot captures the partition and pass selectors the next encode call
// will use. A receiver needs exactly this to decode the packet.
func (v *Viewport) Snapshot() Snapshot {
	var s Snapshot
	for _, slot := range v.known {
		s.Known.Set(slot)
	}
	for slot := 1; slot < MaxSlots; slot++ {
		if v.selector(slot) {
			s.Selector.Set(slot)
		}
	}
	return s
}

// SlotSet is a bitmap with one bit per slot.
type SlotSet [constants.SlotBitmapSize]byte

// Set adds slot to the set.
func (s *SlotSet) Set(slot int) {
	s[slot>>3] |= 1 << uint(slot&7)
}

// Has reports whether slot is in the set.
func (s *SlotSet) Has(slot int) bool {
	return s[slot>>3]&(1<<uint(slot&7)) != 0
}

// Snapshot is the receiver-relevant part of a viewport before an encode.
type Snapshot struct {
	Known    SlotSet
	Selector SlotSet
}

// KnownSlots returns the known slots in ascending order.
func (s *Snapshot) KnownSlots() []int {
	out := make([]int, 0, 64)
	for slot := 1; slot < MaxSlots; slot++ {
		if s.Known.Has(slot) {
			out = append(out, slot)
		}
	}
	return out
}

// CandidateSlots returns the candidate slots in ascending order.
func (s *Snapshot) CandidateSlots() []int {
	out := make([]int, 0, MaxSlots-1)
	for slot := 1; slot < MaxSlots; slot++ {
		if !s.Known.Has(slot) {
			out = append(out, slot)
		}
	}
	return out
}
