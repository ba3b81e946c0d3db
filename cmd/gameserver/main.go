package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nshusa/battlerune-server/internal/ai"
	"github.com/nshusa/battlerune-server/internal/config"
	"github.com/nshusa/battlerune-server/internal/db"
	"github.com/nshusa/battlerune-server/internal/gameserver"
	"github.com/nshusa/battlerune-server/internal/gameserver/playersync"
	"github.com/nshusa/battlerune-server/internal/model"
	"github.com/nshusa/battlerune-server/internal/trace"
	"github.com/nshusa/battlerune-server/internal/world"
)

const ConfigPath = "config/server.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("BATTLERUNE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("battlerune sync server starting", "config", cfgPath, "log_level", cfg.LogLevel)

	policy, err := playersync.ParsePartitionPolicy(cfg.Sync.Partition)
	if err != nil {
		return fmt.Errorf("sync.partition: %w", err)
	}

	var appearances *db.AppearanceRepository
	if cfg.Database.Enabled {
		database, err := db.New(ctx, cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()
		slog.Info("database connected")

		if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("database migrations applied")
		appearances = db.NewAppearanceRepository(database.Pool())
	}

	opts := []playersync.Option{
		playersync.WithViewingDistance(cfg.Sync.ViewingDistance),
		playersync.WithAddThreshold(cfg.Sync.AddThreshold),
	}
	if cfg.Sync.IntroducePlayers {
		opts = append(opts, playersync.WithIntroducer(playersync.AddPlayerIntroducer{}))
	}
	encoder := playersync.NewEncoder(opts...)

	sinks := gameserver.MultiSink{gameserver.LogSink{}}
	if cfg.Trace.Enabled {
		rec, err := trace.Create(cfg.Trace.Path, cfg.Trace.Level, cfg.Sync.IntroducePlayers)
		if err != nil {
			return fmt.Errorf("opening trace: %w", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				slog.Error("closing trace", "path", cfg.Trace.Path, "err", err)
				return
			}
			slog.Info("trace closed", "path", cfg.Trace.Path, "records", rec.Records())
		}()
		sinks = append(sinks, gameserver.SinkFunc(func(_ context.Context, d gameserver.Delivery) error {
			return rec.Record(trace.NewRecord(d.Tick, d.Observer, d.Snapshot, d.Packet))
		}))
		slog.Info("packet trace enabled", "path", cfg.Trace.Path, "level", cfg.Trace.Level)
	}

	table := world.NewPlayerTable()
	manager := gameserver.NewSyncManager(table, encoder, sinks, cfg.Sync.TickInterval)
	manager.SetPartitionPolicy(policy)
	if cfg.Sync.Workers > 0 {
		manager.SetNumWorkers(cfg.Sync.Workers)
	}

	home := model.NewLocation(cfg.Bots.SpawnX, cfg.Bots.SpawnY, cfg.Bots.SpawnZ)
	wanderer := ai.NewWanderer(ai.WanderConfig{
		Home:             home,
		Radius:           cfg.Bots.Radius,
		MoveChance:       0.5,
		AppearanceChance: cfg.Bots.AppearanceChance,
	})
	bots, err := spawnBots(ctx, cfg.Bots, home, manager, appearances)
	if err != nil {
		return fmt.Errorf("spawning bots: %w", err)
	}
	for _, b := range bots {
		wanderer.Add(b)
	}
	manager.OnTick(wanderer.Tick)
	slog.Info("bots spawned", "count", len(bots), "home", home)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := manager.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("player sync: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	moves, restyles := wanderer.Stats()
	slog.Info("bots stopped", "moves", moves, "restyles", restyles)

	if appearances != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, b := range bots {
			if err := appearances.Save(saveCtx, b.Appearance()); err != nil {
				slog.Error("saving bot appearance", "bot", b.Name(), "err", err)
			}
		}
	}
	return nil
}

// spawnBots creates the configured bots, restores their stored appearances
// and joins them to the sync manager.
func spawnBots(ctx context.Context, cfg config.BotsConfig, home model.Location, manager *gameserver.SyncManager, repo *db.AppearanceRepository) ([]*model.Player, error) {
	ids := world.IDGenerator()
	bots := make([]*model.Player, 0, cfg.Count)
	for i := range cfg.Count {
		name := fmt.Sprintf("bot%d", i+1)
		if i < len(cfg.Names) {
			name = cfg.Names[i]
		}
		p, err := model.NewPlayer(ids.Next(), name, home)
		if err != nil {
			return nil, err
		}
		if repo != nil {
			a, ok, err := repo.Load(ctx, name)
			if err != nil {
				return nil, err
			}
			if ok {
				p.SetAppearance(a)
			}
		}
		if _, err := manager.Join(p); err != nil {
			return nil, err
		}
		bots = append(bots, p)
	}
	return bots, nil
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
