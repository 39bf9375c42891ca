// Command server boots the reading backend: configuration, logging, tracing,
// the SQLite store, the worker pool, and the HTTP API. Shutdown is graceful:
// the HTTP listener drains first, then the pool finishes in-flight jobs, then
// the tracer provider flushes.
//
//	@title          Reading Backend API
//	@version        1.0
//	@description    Asynchronous card-reading generation service with credit accounting.
//	@BasePath       /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/go-reading-backend/docs"
	"github.com/tbourn/go-reading-backend/internal/cards"
	"github.com/tbourn/go-reading-backend/internal/config"
	"github.com/tbourn/go-reading-backend/internal/genai"
	httpapi "github.com/tbourn/go-reading-backend/internal/http"
	"github.com/tbourn/go-reading-backend/internal/observability"
	"github.com/tbourn/go-reading-backend/internal/repo"
	"github.com/tbourn/go-reading-backend/internal/rewards"
	"github.com/tbourn/go-reading-backend/internal/services"
	"github.com/tbourn/go-reading-backend/internal/sysutil"
	"github.com/tbourn/go-reading-backend/internal/worker"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath, cfg.OTEL.Enabled)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
	if err := repo.SeedCards(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("seed card catalog failed")
	}

	// Generation pipeline.
	provider := genai.NewHTTPProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.CallTimeout)
	pipeline := services.NewPipelineService(db, provider, cards.NewSelector())
	pipeline.MaxGenerateAttempts = cfg.AI.MaxAttempts

	// Credit accounting and collaborators.
	ledger := &services.LedgerService{DB: db}
	var rewardsCfg rewards.Config
	if cfg.RewardsBaseURL != "" {
		rewardsCfg = rewards.NewHTTPConfig(cfg.RewardsBaseURL)
	} else {
		rewardsCfg = rewards.StaticConfig{
			rewards.EventReadingSubmission: {Paid: 1},
		}
	}
	var notifier rewards.Notifier = rewards.NopNotifier{}
	if cfg.AchievementsBaseURL != "" {
		notifier = rewards.NewHTTPNotifier(cfg.AchievementsBaseURL)
	}

	// Worker pool.
	pool := worker.New(db, pipeline, ledger, notifier, worker.NewBroker(), worker.Config{
		Concurrency:       cfg.Worker.Concurrency,
		QueueSize:         cfg.Worker.QueueSize,
		StallAfter:        cfg.Worker.StallAfter,
		MaxStalledRetries: cfg.Worker.MaxStalledRetries,
		ReapInterval:      cfg.Worker.ReapInterval,
	}, log.Logger)
	pool.Start(ctx)

	// Submission surface.
	readingSvc := services.NewReadingService(db, ledger, rewardsCfg, pool)
	readingSvc.BaseProcessingSeconds = cfg.BaseProcessingSeconds
	readingSvc.PerJobDelaySeconds = cfg.PerJobDelaySeconds
	readingSvc.IdempotencyTTL = cfg.IdempotencyTTL

	router := gin.New()
	httpapi.RegisterRoutes(router, httpapi.Deps{
		DB:      db,
		Reading: readingSvc,
		Ledger:  ledger,
		Pool:    pool,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	pool.Close()
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("bye")
}
