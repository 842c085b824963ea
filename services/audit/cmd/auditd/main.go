package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kioskd/pkg/channel"
	"kioskd/pkg/db"
	"kioskd/services/audit"
)

const purgeInterval = time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := audit.LoadConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	listener, err := channel.DialEngine(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect channel")
	}
	defer listener.Close()

	ingestor, err := audit.NewIngestor(pool, listener)
	if err != nil {
		log.Fatal().Err(err).Msg("create ingestor")
	}
	if err := ingestor.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start ingestor")
	}
	log.Info().Msg("auditd recording kiosk activity")

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-cfg.Retention)
			removed, err := audit.Purge(ctx, pool, cutoff)
			if err != nil {
				log.Error().Err(err).Msg("purge audit entries")
				continue
			}
			if removed > 0 {
				log.Info().Int64("removed", removed).Msg("purged expired audit entries")
			}
		}
	}
}
