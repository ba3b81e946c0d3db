package gameserver

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nshusa/battlerune-server/internal/gameserver/packet"
	"github.com/nshusa/battlerune-server/internal/gameserver/playersync"
	"github.com/nshusa/battlerune-server/internal/model"
	"github.com/nshusa/battlerune-server/internal/world"
)

// DefaultTickInterval is the server tick length.
const DefaultTickInterval = 600 * time.Millisecond

// Delivery is one observer's player update for one tick.
type Delivery struct {
	Tick     uint64
	Observer model.Actor
	// Snapshot is the observer's viewport before the packet was built,
	// i.e. what a receiver needs to decode it.
	Snapshot playersync.Snapshot
	Packet   packet.Packet
}

// PacketSink receives encoded player updates.
// Deliver is called from several tick workers at once.
type PacketSink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// SinkFunc adapts a function to PacketSink.
type SinkFunc func(ctx context.Context, d Delivery) error

// Deliver calls f(ctx, d).
func (f SinkFunc) Deliver(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

// MultiSink delivers to every sink in order and returns the first error.
type MultiSink []PacketSink

// Deliver implements PacketSink.
func (m MultiSink) Deliver(ctx context.Context, d Delivery) error {
	var first error
	for _, s := range m {
		if err := s.Deliver(ctx, d); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogSink logs every delivery at debug level.
type LogSink struct{}

// Deliver implements PacketSink.
func (LogSink) Deliver(ctx context.Context, d Delivery) error {
	slog.DebugContext(ctx, "player update",
		"tick", d.Tick,
		"observer", d.Observer.Index(),
		"bytes", d.Packet.Size())
	return nil
}

// TickStats summarizes one tick.
type TickStats struct {
	Tick      uint64
	Observers int
	Delivered int
	Failed    int
	Bytes     int
	Duration  time.Duration
}

type session struct {
	player   *model.Player
	viewport *playersync.Viewport
}

// SyncManager runs the player synchronization tick: every tick it builds one
// player update per connected observer and hands it to the sink.
//
// Players join and leave through the manager so the slot table never changes
// while observers are being encoded.
type SyncManager struct {
	tickMu sync.Mutex // held for a whole tick and by Join/Leave

	table   *world.PlayerTable
	encoder *playersync.Encoder
	sink    PacketSink

	sessions map[*model.Player]*session
	policy   playersync.PartitionPolicy

	interval   time.Duration
	numWorkers int
	onTick     func(tick uint64)

	tick atomic.Uint64
}

// NewSyncManager creates a manager over table.
// interval: tick length (DefaultTickInterval when zero).
func NewSyncManager(table *world.PlayerTable, encoder *playersync.Encoder, sink PacketSink, interval time.Duration) *SyncManager {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if sink == nil {
		sink = LogSink{}
	}
	return &SyncManager{
		table:      table,
		encoder:    encoder,
		sink:       sink,
		sessions:   make(map[*model.Player]*session, 256),
		interval:   interval,
		numWorkers: runtime.NumCPU(),
	}
}

// SetNumWorkers sets how many observers are encoded in parallel.
func (m *SyncManager) SetNumWorkers(n int) {
	if n < 1 {
		n = 1
	}
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.numWorkers = n
}

// SetPartitionPolicy sets the policy for viewports created from now on.
func (m *SyncManager) SetPartitionPolicy(p playersync.PartitionPolicy) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.policy = p
}

// OnTick registers fn to run at the start of every tick, before any
// observer is encoded. fn may move players and flag updates.
func (m *SyncManager) OnTick(fn func(tick uint64)) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	m.onTick = fn
}

// Join registers p in the slot table and opens its session with a fresh
// viewport. Returns the assigned slot.
func (m *SyncManager) Join(p *model.Player) (int, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	idx, err := m.table.Register(p)
	if err != nil {
		return 0, fmt.Errorf("join %q: %w", p.Name(), err)
	}
	m.sessions[p] = &session{
		player:   p,
		viewport: playersync.NewViewport(m.policy),
	}
	slog.Debug("player joined", "player", p.Name(), "slot", idx, "online", len(m.sessions))
	return idx, nil
}

// Leave closes p's session and frees its slot.
func (m *SyncManager) Leave(p *model.Player) bool {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	s, ok := m.sessions[p]
	if !ok {
		return false
	}
	slot := p.Index()
	s.viewport.Reset()
	delete(m.sessions, p)
	m.table.Unregister(p)
	slog.Debug("player left", "player", p.Name(), "slot", slot, "online", len(m.sessions))
	return true
}

// Count returns the number of open sessions.
func (m *SyncManager) Count() int {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return len(m.sessions)
}

// Viewport returns the viewport of p's session, or nil.
func (m *SyncManager) Viewport(p *model.Player) *playersync.Viewport {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	if s, ok := m.sessions[p]; ok {
		return s.viewport
	}
	return nil
}

// Start runs ticks until ctx is cancelled.
func (m *SyncManager) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("player sync started", "interval", m.interval, "workers", m.numWorkers, "policy", m.policy)

	for {
		select {
		case <-ctx.Done():
			slog.Info("player sync stopping", "ticks", m.tick.Load())
			return ctx.Err()

		case <-ticker.C:
			stats := m.Tick(ctx)
			if stats.Duration > m.interval {
				slog.Warn("tick overran", "tick", stats.Tick, "took", stats.Duration, "observers", stats.Observers)
			}
		}
	}
}

// Tick runs one tick: the OnTick hook, then one encode per observer, then
// pending updates are cleared for every player.
func (m *SyncManager) Tick(ctx context.Context) TickStats {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	start := time.Now()
	stats := TickStats{Tick: m.tick.Add(1)}

	if m.onTick != nil {
		m.onTick(stats.Tick)
	}

	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].player.Index() < sessions[j].player.Index()
	})
	stats.Observers = len(sessions)

	var delivered, failed, bytes atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.numWorkers)
	for _, s := range sessions {
		g.Go(func() error {
			n, ok := m.syncObserver(gctx, stats.Tick, s)
			if ok {
				delivered.Add(1)
				bytes.Add(int64(n))
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	// only now: every observer of this tick has seen the same pending set
	m.table.ForEach(func(p *model.Player) bool {
		p.ResetUpdates()
		return true
	})

	stats.Delivered = int(delivered.Load())
	stats.Failed = int(failed.Load())
	stats.Bytes = int(bytes.Load())
	stats.Duration = time.Since(start)

	slog.Debug("tick done",
		"tick", stats.Tick,
		"observers", stats.Observers,
		"failed", stats.Failed,
		"bytes", stats.Bytes,
		"took", stats.Duration)
	return stats
}

// syncObserver encodes and delivers one observer's update.
// A failed or panicking encode drops the packet and resets the viewport.
func (m *SyncManager) syncObserver(ctx context.Context, tick uint64, s *session) (n int, ok bool) {
	observer := s.player.Index()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("player sync panic", "tick", tick, "observer", observer, "panic", r)
			s.viewport.Reset()
			n, ok = 0, false
		}
	}()

	snap := s.viewport.Snapshot()
	pkt, err := m.encoder.Encode(m.table, s.player, s.viewport)
	if err != nil {
		slog.Warn("player sync failed", "tick", tick, "observer", observer, "err", err)
		s.viewport.Reset()
		return 0, false
	}

	d := Delivery{
		Tick:     tick,
		Observer: s.player,
		Snapshot: snap,
		Packet:   pkt,
	}
	if err := m.sink.Deliver(ctx, d); err != nil {
		slog.Warn("player update not delivered", "tick", tick, "observer", observer, "err", err)
		// the viewport already advanced past a packet the client never got
		s.viewport.Reset()
		return 0, false
	}
	return pkt.Size(), true
}
