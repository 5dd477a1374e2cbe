// Package main provides the arena server binary: the HTTP match API, the
// per-match schedulers, and the bot loops, all in one process.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/hypernova/arena/internal/config"
	"github.com/hypernova/arena/internal/game/bot"
	"github.com/hypernova/arena/internal/game/match"
	"github.com/hypernova/arena/internal/game/rng"
	"github.com/hypernova/arena/internal/gameserver"
	"github.com/hypernova/arena/internal/observability"
	"github.com/hypernova/arena/internal/server"
	"github.com/hypernova/arena/internal/store"
	"github.com/hypernova/arena/internal/store/memory"
	"github.com/hypernova/arena/internal/store/postgres"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting arena server",
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.String("store_backend", cfg.Store.Backend),
	)

	var (
		st   store.Store
		pool *postgres.Pool
	)
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		st = postgres.NewStore(pool)
	case config.BackendMemory:
		st = memory.New()
	default:
		logger.Fatal("unknown store backend", zap.String("backend", cfg.Store.Backend))
	}

	repo := match.NewRepository(st, cfg.Store.OpTimeout)
	src := rng.NewCryptoSource()
	planner := bot.NewPlanner(cfg.Game, src)
	orch := match.NewOrchestrator(repo, cfg.Game, planner, src, logger)

	httpSrv := gameserver.NewServer(cfg.HTTP, orch, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("http", httpSrv)
	lifecycle.Add("match-tasks", &server.FuncService{
		StopFn: func() { orch.Tasks().CancelAll() },
	})
	if pool != nil {
		lifecycle.Add("database", &server.FuncService{StopFn: pool.Close})
	}

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("lifecycle error", zap.Error(err))
	}
}
