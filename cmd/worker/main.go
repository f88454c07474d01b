package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"wastewise-service/internal/config"
	"wastewise-service/internal/entity"
	"wastewise-service/internal/handler"
	"wastewise-service/internal/repository/postgresql"
	"wastewise-service/internal/service"
	"wastewise-service/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	pool, err := postgresql.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("postgres", "error", err, "dsn", config.RedactDSN(cfg.DatabaseURL))
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgresql.Migrate(ctx, pool); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis", "error", err, "addr", cfg.RedisAddr)
		os.Exit(1)
	}

	repo := postgresql.NewJobRepository(pool)
	ordinances := service.NewOrdinanceCache(rdb, cfg.OrdinanceTTL)

	registry := worker.NewRegistry()
	registry.Register(entity.TypeFullAnalysis, handler.NewAnalysisHandler(pool, cfg.ChunkSize))
	registry.Register(entity.TypeResearch, handler.NewResearchHandler(ordinances, ordinanceSource()))
	if ex := documentExtractor(); ex != nil {
		registry.Register(entity.TypeExtraction, handler.NewExtractionHandler(ex))
	}
	if rr := reportRenderer(); rr != nil {
		registry.Register(entity.TypeReportGeneration, handler.NewReportHandler(repo, rr))
	}

	// Exactly one loop per process: jobs never run concurrently within a
	// worker. Scale out by running more processes; the claim query keeps
	// them from colliding.
	loop := worker.NewLoop(repo, registry, worker.NewBackoff(cfg.PollBase, cfg.PollCap), logger)

	logger.Info("worker started",
		"poll_base", cfg.PollBase,
		"poll_cap", cfg.PollCap,
		"chunk_size", cfg.ChunkSize,
		"dsn", config.RedactDSN(cfg.DatabaseURL),
	)

	if err := loop.Run(ctx); err != nil {
		logger.Error("worker terminated", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

// ordinanceSource returns the upstream research provider, nil when none is
// configured. Research jobs still complete, reporting the ordinance as
// unavailable.
func ordinanceSource() handler.OrdinanceSource {
	// TODO: wire the hosted research provider once its API contract lands.
	return nil
}

func documentExtractor() handler.DocumentExtractor {
	return nil
}

func reportRenderer() handler.ReportRenderer {
	return nil
}
