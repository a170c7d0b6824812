package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/rfpflow/rfpflow/internal/agent"
	"github.com/rfpflow/rfpflow/internal/auth"
	"github.com/rfpflow/rfpflow/internal/config"
	"github.com/rfpflow/rfpflow/internal/notify"
	"github.com/rfpflow/rfpflow/internal/server"
	"github.com/rfpflow/rfpflow/internal/store/postgres"
	redisstore "github.com/rfpflow/rfpflow/internal/store/redis"
	"github.com/rfpflow/rfpflow/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Local development convenience; ignored when no .env exists.
	_ = godotenv.Load()

	// Initialize structured logging from environment.
	logLevel := os.Getenv("RFPFLOW_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("RFPFLOW_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	// Connect to Redis.
	cache, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer cache.Close()

	// Create auth service.
	authSvc := auth.NewService(store.Users(), cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	// Create the agent service client shared by all workflow capabilities.
	agentClient := agent.NewClient(cfg.Agent.BaseURL, agent.WithTimeout(cfg.Agent.Timeout))

	// Operational alerting: Slack when configured, no-op otherwise.
	var notifier workflow.FailureNotifier = notify.Nop{}
	if cfg.Slack.BotToken != "" {
		notifier = notify.NewSlackNotifier(slacklib.New(cfg.Slack.BotToken), cfg.Slack.AlertChannel)
		log.Info().Str("channel", cfg.Slack.AlertChannel).Msg("Slack failure alerts enabled")
	}

	// Create the workflow engine.
	engine := workflow.NewEngine(
		store.Sessions(),
		store.Messages(),
		store.Interactions(),
		agentClient,
		agentClient,
		agentClient,
		agent.NewKeywordClassifier(),
		cache,
		notifier,
	)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, store, cache, authSvc, engine)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
