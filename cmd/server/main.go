package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ig-automation/internal/api"
	"ig-automation/internal/automation"
	"ig-automation/internal/config"
	"ig-automation/internal/database"
	"ig-automation/internal/instagram"
	"ig-automation/internal/jobs"
	"ig-automation/internal/store"
	"ig-automation/internal/webhook"
	"ig-automation/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogging(cfg)

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	s := store.New(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub()
	go hub.Run(ctx)

	igClient := instagram.NewClient(cfg.GraphAPIBaseURL, cfg.GraphAPIRPS)
	engine := automation.NewEngine(s, igClient, automation.OptionsFromConfig(cfg))
	engine.Notifier = hub

	var queue *jobs.Queue
	if cfg.RiverEnabled {
		queue, err = jobs.NewQueue(ctx, cfg.DatabaseURL, cfg.RiverMaxWorkers, engine)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create job queue")
		}
		if err := queue.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate job queue")
		}
		if err := queue.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start job queue")
		}
		engine.Scheduler = queue
		log.Info().Int("workers", cfg.RiverMaxWorkers).Msg("river resume queue started")
	}

	// The poller also covers resumes whose River job was lost.
	poller := jobs.NewPoller(engine, cfg.ResumePollInterval)
	poller.Start(ctx)

	webhookHandler := webhook.NewHandler(cfg, s, engine)
	webhookHandler.Notifier = hub

	router := api.NewRouter(api.Deps{
		Config:  cfg,
		Engine:  engine,
		Webhook: webhookHandler,
		Hub:     hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to run server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	poller.Stop()
	if queue != nil {
		if err := queue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("job queue shutdown failed")
		}
	}
}
