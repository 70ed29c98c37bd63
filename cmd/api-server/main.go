package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/api"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/audit"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/auth"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/config"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/db"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/events"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/logging"
	redisclient "github.com/jreinaldodasilva/topsmile-sub003/internal/redis"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info", "api-server")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "api-server")

	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("storage", cfg.StorageDriver).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens := auth.NewTokens(cfg.JWTSecret, auth.Issuer)
	routerCfg := api.RouterConfig{
		Tokens:  tokens,
		Logger:  logger,
		Env:     cfg.Env,
		Version: cfg.Version,
	}

	// Storage
	var (
		repo     scheduling.Repository
		recorder audit.Recorder = audit.Nop{}
	)
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pgPool := connectPostgres(rootCtx, cfg, logger)
		defer pgPool.Close()

		repo = scheduling.NewPgRepository(pgPool)
		recorder = audit.NewPgRecorder(pgPool)
		routerCfg.Postgres = pgPool
	default:
		mem := scheduling.NewMemoryRepository()
		ds := seed.Generate(seed.Options{Providers: 3, Patients: 20, Operatories: 3})
		if err := ds.LoadMemory(rootCtx, mem); err != nil {
			logger.Fatal().Err(err).Msg("seed memory storage")
		}
		repo = mem
		logDevToken(tokens, ds, logger)
	}

	// Booking lock
	var locker scheduling.Locker = scheduling.NewLocalLocker(cfg.LockWait)
	if cfg.RedisEnabled {
		rdb, err := redisclient.Connect(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

		locker = redisclient.NewLocker(rdb, cfg.LockTTL, cfg.LockWait)
		routerCfg.Redis = api.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	} else {
		logger.Warn().Msg("redis disabled, booking locks are process local")
	}

	// Event fan-out
	var amqpConn *amqp.Connection
	if cfg.AMQPEnabled {
		amqpConn, err = amqp.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp connection error")
		}
		defer amqpConn.Close()

		pub, err := events.NewPublisher(amqpConn, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp publisher error")
		}
		defer pub.Close()
		recorder = audit.Multi(recorder, pub)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing appointment events")
	}

	svc := scheduling.NewService(repo, locker, scheduling.Options{
		Cache:       scheduling.NewSlotCache(cfg.SlotCacheSize, cfg.SlotCacheTTL),
		Audit:       recorder,
		Logger:      logger,
		Granularity: cfg.SlotGranularity,
		WaitlistTTL: cfg.WaitlistTTL,
	})
	routerCfg.Service = svc

	if amqpConn != nil {
		listener, err := events.NewListener(amqpConn, cfg.AMQPExchange, svc, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp listener error")
		}
		defer listener.Stop()
		if err := listener.Start(rootCtx); err != nil {
			logger.Fatal().Err(err).Msg("start event listener")
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}

func connectPostgres(ctx context.Context, cfg config.Config, logger zerolog.Logger) *pgxpool.Pool {
	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	if err := db.Migrate(pgCtx, pool); err != nil {
		pool.Close()
		logger.Fatal().Err(err).Msg("postgres migration error")
	}
	logger.Info().Msg("connected to Postgres")
	return pool
}

// logDevToken prints a staff token for the seeded in-memory clinic.
func logDevToken(tokens *auth.Tokens, ds seed.Dataset, logger zerolog.Logger) {
	tok, err := tokens.Issue(auth.Identity{
		UserID:   ds.Providers[0].ID,
		Role:     auth.RoleAdmin,
		ClinicID: ds.Clinic.ID,
	}, 24*time.Hour)
	if err != nil {
		logger.Error().Err(err).Msg("issue dev token")
		return
	}
	logger.Info().
		Str("clinic_id", ds.Clinic.ID.String()).
		Str("token", tok).
		Msg("seeded in-memory clinic")
}
