package model

import (
	"fmt"
	"sync"
)

// Actor is the read-only view of a player consumed by the sync codec.
type Actor interface {
	// ID is unique per login session and never reused, unlike the slot index.
	ID() uint32
	// Index is the slot the actor occupies in the player table (0 = none).
	Index() int
	Location() Location
	PendingUpdates() UpdateFlag
	Appearance() Appearance
}

// Player — игровой персонаж, занимающий слот в таблице игроков.
// Thread-safe: все поля защищены playerMu.
type Player struct {
	playerMu sync.RWMutex

	id         uint32
	index      int
	location   Location
	pending    UpdateFlag
	appearance Appearance
}

var _ Actor = (*Player)(nil)

// NewPlayer creates a player with the default appearance.
// The appearance is flagged as pending so observers receive it on the first tick.
func NewPlayer(id uint32, name string, loc Location) (*Player, error) {
	if id == 0 {
		return nil, fmt.Errorf("player id must be non-zero")
	}
	if name == "" {
		return nil, fmt.Errorf("player name must not be empty")
	}
	return &Player{
		id:         id,
		location:   loc,
		pending:    UpdateAppearance,
		appearance: DefaultAppearance(name),
	}, nil
}

// ID returns the session-unique player id.
func (p *Player) ID() uint32 {
	return p.id
}

// Index returns the slot index (0 while not registered).
func (p *Player) Index() int {
	p.playerMu.RLock()
	defer p.playerMu.RUnlock()
	return p.index
}

// SetIndex sets the slot index. Called by the player table only.
func (p *Player) SetIndex(index int) {
	p.playerMu.Lock()
	defer p.playerMu.Unlock()
	p.index = index
}

// Name returns the display name.
func (p *Player) Name() string {
	p.playerMu.RLock()
	defer p.playerMu.RUnlock()
	return p.appearance.Name
}

// Location returns the current position.
func (p *Player) Location() Location {
	p.playerMu.RLock()
	defer p.playerMu.RUnlock()
	return p.location
}

// SetLocation moves the player.
func (p *Player) SetLocation(loc Location) {
	p.playerMu.Lock()
	defer p.playerMu.Unlock()
	p.location = loc
}

// PendingUpdates returns the update kinds flagged since the last broadcast.
func (p *Player) PendingUpdates() UpdateFlag {
	p.playerMu.RLock()
	defer p.playerMu.RUnlock()
	return p.pending
}

// Flag marks update kinds as pending.
func (p *Player) Flag(kinds UpdateFlag) {
	p.playerMu.Lock()
	defer p.playerMu.Unlock()
	p.pending |= kinds
}

// ResetUpdates clears pending updates.
// Called by the tick loop after every observer of the tick has been encoded.
func (p *Player) ResetUpdates() {
	p.playerMu.Lock()
	defer p.playerMu.Unlock()
	p.pending = 0
}

// Appearance returns a copy of the visual definition.
func (p *Player) Appearance() Appearance {
	p.playerMu.RLock()
	defer p.playerMu.RUnlock()
	return p.appearance
}

// SetAppearance replaces the visual definition and flags it for broadcast.
func (p *Player) SetAppearance(a Appearance) {
	p.playerMu.Lock()
	defer p.playerMu.Unlock()
	p.appearance = a
	p.pending |= UpdateAppearance
}
