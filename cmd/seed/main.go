package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/auth"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/config"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/db"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/logging"
	"github.com/jreinaldodasilva/topsmile-sub003/internal/seed"
)

func main() {
	providers := flag.Int("providers", 10, "number of providers")
	patients := flag.Int("patients", 9000, "number of patients")
	operatories := flag.Int("operatories", 5, "number of operatories")
	tz := flag.String("tz", "America/Sao_Paulo", "clinic time zone")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info", "seed")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")

	if cfg.StorageDriver != config.StoragePostgres {
		logger.Fatal().Msg("seed writes to postgres; set STORAGE_DRIVER=postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	ds := seed.Generate(seed.Options{
		Providers:   *providers,
		Patients:    *patients,
		Operatories: *operatories,
		TimeZone:    *tz,
	})
	logger.Info().
		Str("clinic", ds.Clinic.Name).
		Int("providers", len(ds.Providers)).
		Int("patients", len(ds.Patients)).
		Msg("seeding clinic")

	if err := ds.InsertPostgres(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("seed clinic")
	}

	tokens := auth.NewTokens(cfg.JWTSecret, auth.Issuer)
	tok, err := tokens.Issue(auth.Identity{
		UserID:   ds.Providers[0].ID,
		Role:     auth.RoleAdmin,
		ClinicID: ds.Clinic.ID,
	}, 24*time.Hour)
	if err != nil {
		logger.Fatal().Err(err).Msg("issue token")
	}

	logger.Info().Msg("seed complete")
	fmt.Printf("CLINIC_ID=%s\n", ds.Clinic.ID)
	fmt.Printf("STAFF_TOKEN=%s\n", tok)
}
