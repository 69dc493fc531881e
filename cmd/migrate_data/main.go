package main

import (
	"flag"

	"ig-automation/internal/config"
	"ig-automation/internal/database"

	"github.com/rs/zerolog/log"
)

// Copies a sqlite deployment into the postgres database named by
// DATABASE_URL, then moves the id sequences past the copied rows.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogging(cfg)

	source := flag.String("sqlite", cfg.DBPath, "path of the sqlite database to copy from")
	flag.Parse()

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	sqliteDB, err := database.OpenSQLite(*source)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to sqlite")
	}
	log.Info().Str("path", *source).Msg("connected to sqlite")

	pgCfg := *cfg
	pgCfg.DBDriver = "postgres"
	pgDB, err := database.Open(&pgCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	log.Info().Msg("starting data migration")
	counts, err := database.CopyAll(sqliteDB, pgDB)
	if err != nil {
		log.Fatal().Err(err).Msg("data migration failed")
	}
	if err := database.SyncSequences(pgDB); err != nil {
		log.Fatal().Err(err).Msg("failed to sync sequences")
	}

	total := int64(0)
	for _, n := range counts {
		total += n
	}
	log.Info().Int("tables", len(counts)).Int64("rows", total).Msg("migration completed")
}
