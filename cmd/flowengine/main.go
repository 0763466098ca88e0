package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/animus-labs/animus-flow/internal/engine"
	"github.com/animus-labs/animus-flow/internal/platform/auditlog"
	"github.com/animus-labs/animus-flow/internal/platform/httpserver"
	"github.com/animus-labs/animus-flow/internal/platform/metrics"
	"github.com/animus-labs/animus-flow/internal/platform/postgres"
	"github.com/animus-labs/animus-flow/internal/platform/redis"
	pgrepo "github.com/animus-labs/animus-flow/internal/repo/postgres"
	"github.com/animus-labs/animus-flow/internal/rpc"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("invalid config", "error", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if cfg.Database.EnsureSchema {
		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := pgrepo.EnsureSchema(schemaCtx, db)
		cancel()
		if err != nil {
			logger.Error("schema bootstrap failed", "error", err)
			os.Exit(1)
		}
	}

	redisClient, err := redis.Open(ctx, cfg.Redis)
	if err != nil {
		logger.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()
	transport := rpc.NewRedisTransport(redisClient, rpc.WithPrefix(cfg.Redis.Prefix))

	m := metrics.New()
	svc, err := engine.NewService(engine.Options{
		Executions:   pgrepo.NewExecutionStore(db),
		Tasks:        pgrepo.NewTaskStore(db),
		Definitions:  pgrepo.NewDefinitionStore(db),
		Executor:     transport,
		Engine:       transport,
		Scheduler:    transport,
		Consumer:     transport,
		Logger:       logger,
		Metrics:      m,
		Events:       auditlog.NewWriter(db, serviceName),
		PollTimeout:  cfg.Redis.PollTimeout,
		ClaimLimit:   cfg.ClaimLimit,
		ErrorBackoff: cfg.ErrorBackoff,
	})
	if err != nil {
		logger.Error("engine init failed", "error", err)
		os.Exit(2)
	}

	ops := httpserver.NewOpsHandler(logger, serviceName, m.Handler(),
		httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				return postgres.Ping(ctx, db, 750*time.Millisecond)
			},
		},
		httpserver.ReadinessCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return transport.Ping(checkCtx)
			},
		},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Run(gctx, logger, cfg.Ops, ops) })
	g.Go(func() error { return svc.Run(gctx) })
	if err := g.Wait(); err != nil {
		logger.Error("flowengine stopped", "error", err)
		os.Exit(1)
	}
}
