package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/audit"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/config"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/db"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/logging"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info", "waitlist-worker")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "waitlist-worker")

	if cfg.StorageDriver != config.StoragePostgres {
		logger.Fatal().Str("storage", cfg.StorageDriver).Msg("waitlist worker requires postgres storage")
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Msg("waitlist worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, 2)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	repo := scheduling.NewPgRepository(pgPool)
	// Expiry never books, so bookings are never contended here.
	svc := scheduling.NewService(repo, scheduling.NewLocalLocker(cfg.LockWait), scheduling.Options{
		Audit:  audit.NewPgRecorder(pgPool),
		Logger: logger,
	})

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping waitlist worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *scheduling.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.ExpireWaitlist(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("waitlist expiry run failed")
		return
	}
	logger.Info().
		Int("expired", n).
		Dur("duration", time.Since(start)).
		Msg("waitlist expiry run complete")
}
