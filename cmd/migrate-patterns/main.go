// Command migrate-patterns rewrites legacy object-shaped activity pattern
// rows to the canonical array shape. Run with -dry-run first to see how many
// rows would change.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"emberbot/internal/database"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "count legacy rows without rewriting them")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// .env file is optional, same as the bot process.
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		log.Fatal().Msg("DATABASE_DSN is required")
	}

	db, err := database.New(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	repository := database.NewRepository(db, log)

	count, err := repository.NormalizeAllPatterns(context.Background(), *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("pattern normalization failed")
	}

	if *dryRun {
		log.Info().Int("legacy_rows", count).Msg("dry run complete")
	} else {
		log.Info().Int("normalized_rows", count).Msg("pattern normalization complete")
	}
}
