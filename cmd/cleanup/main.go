package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"
	"github.com/mediavault/mediavault/internal/assets"
	"github.com/mediavault/mediavault/internal/common"
	"github.com/mediavault/mediavault/internal/objectstore"
	"github.com/mediavault/mediavault/internal/upload"
	"github.com/mediavault/mediavault/pkg/config"
	"github.com/rs/zerolog/log"
)

// Aborts upload sessions abandoned past the staleness threshold, both
// against the object store and in the session table. Intended to run
// from cron, typically once a day.
func main() {
	var (
		olderThan = flag.Duration("older-than", 0, "Override the staleness threshold (e.g. 24h)")
		dryRun    = flag.Bool("dry-run", false, "Report stale sessions without aborting them")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	threshold := cfg.Upload.StaleAfter
	if *olderThan > 0 {
		threshold = *olderThan
	}

	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	store, err := objectstore.NewS3Store(&cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize object store")
	}

	assetService := assets.NewService(db, store)
	uploadService := upload.NewService(db, store, assetService, &cfg.Upload)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if *dryRun {
		stale, err := uploadService.FindStale(ctx, threshold)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to find stale sessions")
		}
		for _, session := range stale {
			log.Info().
				Str("session_token", session.SessionToken).
				Str("status", string(session.Status)).
				Time("last_activity_at", session.LastActivityAt).
				Msg("would abort stale session")
		}
		log.Info().Int("count", len(stale)).Dur("older_than", threshold).Msg("Dry run complete")
		return
	}

	result, err := uploadService.SweepStale(ctx, threshold)
	if err != nil {
		log.Fatal().Err(err).Msg("Sweep failed")
	}

	log.Info().
		Int("aborted", result.Aborted).
		Int("failed", result.Failed).
		Msg("Cleanup complete")
}
