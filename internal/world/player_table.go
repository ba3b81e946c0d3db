package world

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/nshusa/battlerune-server/internal/constants"
	"github.com/nshusa/battlerune-server/internal/model"
)

// MaxSlots is the capacity of the player table; slot 0 is never assigned.
const MaxSlots = constants.MaxPlayers

var (
	ErrTableFull         = errors.New("player table is full")
	ErrAlreadyRegistered = errors.New("player already registered")
)

// PlayerTable — глобальная таблица слотов игроков.
// Thread-safe через sync.RWMutex.
// Использует bitmap для быстрого поиска свободного слота (вместо линейного сканирования).
type PlayerTable struct {
	mu         sync.RWMutex
	slots      [MaxSlots]*model.Player
	freeBitmap [MaxSlots / 64]uint64 // 1 = слот свободен
	count      int
}

// NewPlayerTable создаёт пустую таблицу.
// Инициализирует freeBitmap с всеми битами=1, кроме слота 0.
func NewPlayerTable() *PlayerTable {
	t := &PlayerTable{}
	for i := range t.freeBitmap {
		t.freeBitmap[i] = ^uint64(0)
	}
	t.markUsed(0)
	return t
}

// Register assigns the first free slot to p and returns it.
func (t *PlayerTable) Register(p *model.Player) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if idx := p.Index(); idx != 0 && t.slots[idx] == p {
		return idx, fmt.Errorf("register %q: %w (slot %d)", p.Name(), ErrAlreadyRegistered, idx)
	}

	idx := t.firstFree()
	if idx == 0 {
		return 0, fmt.Errorf("register %q: %w", p.Name(), ErrTableFull)
	}

	t.slots[idx] = p
	t.markUsed(idx)
	t.count++
	p.SetIndex(idx)
	return idx, nil
}

// Unregister frees the slot held by p. Returns false if p is not in the table.
func (t *PlayerTable) Unregister(p *model.Player) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := p.Index()
	if idx <= 0 || idx >= MaxSlots || t.slots[idx] != p {
		return false
	}

	t.slots[idx] = nil
	t.markFree(idx)
	t.count--
	p.SetIndex(0)
	return true
}

// Get returns the player at slot index, or nil.
func (t *PlayerTable) Get(index int) *model.Player {
	if index <= 0 || index >= MaxSlots {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slots[index]
}

// Actor returns the occupant of slot index as a read-only view.
// Returns a nil interface (not a typed nil) for empty slots.
func (t *PlayerTable) Actor(index int) model.Actor {
	if p := t.Get(index); p != nil {
		return p
	}
	return nil
}

// Count returns the number of occupied slots.
func (t *PlayerTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// ForEach calls fn for every occupied slot in ascending order.
// If fn returns false, iteration stops early.
// fn runs without the table lock held, on a copy of the slot list.
func (t *PlayerTable) ForEach(fn func(*model.Player) bool) {
	t.mu.RLock()
	players := make([]*model.Player, 0, t.count)
	for _, p := range t.slots {
		if p != nil {
			players = append(players, p)
		}
	}
	t.mu.RUnlock()

	for _, p := range players {
		if !fn(p) {
			return
		}
	}
}

// firstFree находит первый свободный слот через bitmap.
// Возвращает 0 если свободных слотов нет.
func (t *PlayerTable) firstFree() int {
	for word, bitsFree := range t.freeBitmap {
		if bitsFree != 0 {
			return word*64 + bits.TrailingZeros64(bitsFree)
		}
	}
	return 0
}

// markUsed помечает слот как занятый (сбрасывает бит в 0).
func (t *PlayerTable) markUsed(idx int) {
	t.freeBitmap[idx/64] &^= 1 << (idx % 64)
}

// markFree помечает слот как свободный (устанавливает бит в 1).
func (t *PlayerTable) markFree(idx int) {
	t.freeBitmap[idx/64] |= 1 << (idx % 64)
}
