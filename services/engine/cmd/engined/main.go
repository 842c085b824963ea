package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kioskd/pkg/channel"
	"kioskd/pkg/db"
	gos3 "kioskd/pkg/s3"
	"kioskd/pkg/telemetry"
	"kioskd/services/engine"
)

const serviceName = "engined"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := engine.LoadConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	shutdownTelemetry, traceMiddleware, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("init telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	orm, err := db.OpenORM(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open orm")
	}

	listener, err := channel.DialEngine(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect channel")
	}
	defer listener.Close()

	fbs, err := engine.NewHTTPFBS(cfg.FBSBaseURL, cfg.FBSToken)
	if err != nil {
		log.Fatal().Err(err).Msg("configure fbs client")
	}

	var receipts *engine.ReceiptArchive
	if cfg.ReceiptBucket != "" {
		s3Client, err := gos3.NewClientFromEnv()
		if err != nil {
			log.Fatal().Err(err).Msg("configure s3 client")
		}
		receipts, err = engine.NewReceiptArchive(s3Client, cfg.ReceiptBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("configure receipt archive")
		}
	}

	eng, err := engine.New(listener, engine.GormConfigSource{ORM: orm}, fbs, engine.Options{
		TokenTTL: cfg.TokenTTL,
		ORM:      orm,
		Receipts: receipts,
		Logger:   log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create engine")
	}

	registry := prometheus.NewRegistry()
	eng.SetMetrics(engine.NewMetrics(registry, eng.Tokens()))

	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start engine")
	}

	ops, err := engine.NewOps(eng, orm, pool, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("create ops layer")
	}
	routes, err := ops.Routes()
	if err != nil {
		log.Fatal().Err(err).Msg("build routes")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           traceMiddleware(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("starting engined")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown server")
	}
}
