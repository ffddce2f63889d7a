package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"emberbot/internal/config"
	"emberbot/internal/database"
	"emberbot/internal/discord"
	"emberbot/internal/engine"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load reward settings")
	}

	defs, err := config.LoadAchievements(cfg.AchievementsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load achievement definitions")
	}

	// Initialize database
	db, err := database.New(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	repository := database.NewRepository(db, log)
	announcer := discord.NewAnnouncer(log)

	eng := engine.New(settings, repository, announcer, repository, defs, log)

	// Initialize Discord bot
	bot, err := discord.New(cfg.DiscordToken, repository, eng, announcer, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Discord bot")
	}

	// Start bot
	if err := bot.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start bot")
	}
	defer bot.Stop()

	// Wait for interrupt signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	log.Info().Msg("shutting down bot")
}
