package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	_ "wastewise-service/docs"
	"wastewise-service/internal/config"
	"wastewise-service/internal/repository/postgresql"
	"wastewise-service/internal/service"
	httptransport "wastewise-service/internal/transport/http"
)

// @title WasteWise Analysis Service API
// @version 1.0
// @description Background analysis jobs and batch ingestion for waste invoice data.
// @BasePath /
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

	repo := postgresql.NewJobRepository(pool)
	jobSvc := service.NewJobService(repo, validator.New(), cfg.Retention())
	handler := httptransport.NewHandler(jobSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httptransport.Routes(handler, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("api stopped")
}
