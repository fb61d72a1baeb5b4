package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/istectf/cityhunt/internal/auth"
	"github.com/istectf/cityhunt/internal/config"
	"github.com/istectf/cityhunt/internal/database"
	"github.com/istectf/cityhunt/internal/game"
	"github.com/istectf/cityhunt/internal/server"
	"github.com/istectf/cityhunt/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- Team store ---
	var st store.TeamStore
	switch cfg.Store {
	case "mongo":
		ms, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return fmt.Errorf("connecting to mongo: %w", err)
		}
		defer ms.Close(context.Background())
		logger.Info("connected to mongo", "db", cfg.MongoDB)
		st = ms
	default:
		db, err := database.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("connecting to sqlite: %w", err)
		}
		defer db.Close()
		ds, err := store.NewDocStore(ctx, db)
		if err != nil {
			return fmt.Errorf("initializing doc store: %w", err)
		}
		logger.Info("connected to sqlite", "path", cfg.DBPath)
		st = ds
	}

	// --- Redis (optional) ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")
	}

	// --- Game core ---
	catalog, err := game.LoadCatalog(cfg.QuestionsPath)
	if err != nil {
		return fmt.Errorf("loading questions: %w", err)
	}
	logger.Info("question catalog loaded", "count", catalog.Len())

	svc := game.NewService(logger, st, catalog, game.Settings{
		SolveReward:        cfg.SolveReward,
		KillReward:         cfg.KillReward,
		DeathPenalty:       cfg.DeathPenalty,
		LeaderboardSize:    cfg.LeaderboardSize,
		MaxSpeed:           cfg.MaxSpeed,
		ProximityTolerance: cfg.ProximityTolerance,
		MoveResetGap:       cfg.MoveResetGap,
	})
	if err := svc.WarmCache(ctx); err != nil {
		return fmt.Errorf("warming team cache: %w", err)
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Store:             st,
		Game:              svc,
		Verifier:          auth.NewTokenVerifier(cfg.AuthSecret),
		Redis:             rdb,
		AdminPasswordHash: cfg.AdminPasswordHash,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
