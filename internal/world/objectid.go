package world

import "sync/atomic"

// PlayerIDGenerator generates session-unique player ids.
//
// Slot indexes are reused as soon as a player logs out, ids never are: the
// sync codec uses the id to tell a new occupant of a slot from the player
// that was introduced there earlier.
type PlayerIDGenerator struct {
	next atomic.Uint32
}

// NewPlayerIDGenerator creates a new ID generator. 0 is never returned.
func NewPlayerIDGenerator() *PlayerIDGenerator {
	return &PlayerIDGenerator{}
}

// Next generates next unique player id.
// Thread-safe via atomic increment.
func (g *PlayerIDGenerator) Next() uint32 {
	return g.next.Add(1)
}

// Global ID generator (singleton pattern).
var globalIDGenerator = NewPlayerIDGenerator()

// IDGenerator returns global player id generator.
// Thread-safe singleton.
func IDGenerator() *PlayerIDGenerator {
	return globalIDGenerator
}
