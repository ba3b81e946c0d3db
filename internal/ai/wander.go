package ai

import (
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/nshusa/battlerune-server/internal/model"
)

// directions a bot may step in per tick (8 neighbours).
var directions = [8][2]int32{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// WanderConfig configures a Wanderer.
type WanderConfig struct {
	Home   model.Location
	Radius int32 // bots never leave the square of this radius around Home
	// MoveChance and AppearanceChance are per-bot per-tick probabilities.
	MoveChance       float64
	AppearanceChance float64
	Seed             uint64 // 0 = random
}

// Wanderer — примитивный контроллер ботов: каждый тик боты шагают на
// соседнюю клетку и изредка меняют внешний вид.
type Wanderer struct {
	mu   sync.Mutex
	cfg  WanderConfig
	rng  *rand.Rand
	bots []*model.Player

	moves, restyles int
}

// NewWanderer creates a wanderer for cfg.
func NewWanderer(cfg WanderConfig) *Wanderer {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Wanderer{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Add registers a bot.
func (w *Wanderer) Add(p *model.Player) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bots = append(w.bots, p)
}

// Remove unregisters a bot. Reports whether it was registered.
func (w *Wanderer) Remove(p *model.Player) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, b := range w.bots {
		if b == p {
			w.bots = append(w.bots[:i], w.bots[i+1:]...)
			return true
		}
	}
	return false
}

// Count returns number of registered bots.
func (w *Wanderer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bots)
}

// Tick moves and restyles bots. Meant to be the sync manager's OnTick hook.
func (w *Wanderer) Tick(tick uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	moved, restyled := 0, 0
	for _, p := range w.bots {
		if w.roll(w.cfg.MoveChance) && w.step(p) {
			moved++
		}
		if w.roll(w.cfg.AppearanceChance) {
			w.restyle(p)
			restyled++
		}
	}
	w.moves += moved
	w.restyles += restyled

	if restyled > 0 {
		slog.Debug("bots restyled", "tick", tick, "count", restyled)
	}
}

// Stats returns totals of moves and appearance changes so far.
func (w *Wanderer) Stats() (moves, restyles int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.moves, w.restyles
}

func (w *Wanderer) roll(chance float64) bool {
	if chance <= 0 {
		return false
	}
	return chance >= 1 || w.rng.Float64() < chance
}

// step moves p one tile; a step that would leave the home square is dropped.
func (w *Wanderer) step(p *model.Player) bool {
	d := directions[w.rng.IntN(len(directions))]
	next := p.Location().Translate(d[0], d[1])
	home := w.cfg.Home
	if abs(next.X-home.X) > w.cfg.Radius || abs(next.Y-home.Y) > w.cfg.Radius {
		return false
	}
	p.SetLocation(next)
	return true
}

// restyle picks a random look from the default kit ranges.
func (w *Wanderer) restyle(p *model.Player) {
	a := p.Appearance()
	if w.rng.IntN(2) == 0 {
		a.Gender = model.GenderMale
	} else {
		a.Gender = model.GenderFemale
	}
	for i := range a.Style {
		a.Style[i] = model.DefaultStyle[i] + w.rng.IntN(4)
	}
	p.SetAppearance(a)
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
