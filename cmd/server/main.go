package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/niteshatinception/for-monday/internal/api"
	"github.com/niteshatinception/for-monday/internal/config"
	"github.com/niteshatinception/for-monday/internal/database"
	"github.com/niteshatinception/for-monday/internal/events"
	"github.com/niteshatinception/for-monday/internal/logging"
	"github.com/niteshatinception/for-monday/internal/metrics"
	"github.com/niteshatinception/for-monday/internal/models"
	"github.com/niteshatinception/for-monday/internal/monday"
	"github.com/niteshatinception/for-monday/internal/notify"
	"github.com/niteshatinception/for-monday/internal/pipeline"
	"github.com/niteshatinception/for-monday/internal/service"
	"github.com/niteshatinception/for-monday/internal/tokenstore"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	metrics.Register()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize history database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, tokens := initTokenStore(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	mondayClient := monday.NewClient(cfg.Monday, &logger)
	oauth := monday.NewOAuth(cfg.Monday)

	notifier, err := notify.New(cfg.Telegram, mondayClient, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize notifier")
		return err
	}

	bus := events.NewEventBus()
	notifier.SubscribeBus(bus)
	subscribeTransferHistory(ctx, bus, db, &logger)

	tracker := metrics.NewTracker(time.Hour, &logger)
	go tracker.Start(ctx)

	transferer := pipeline.NewTransferer(mondayClient, notifier, cfg.Pipeline.ScratchDir, &logger)
	pipe := pipeline.New(cfg, transferer.Transfer, tracker, bus, &logger)
	pipe.Start(ctx)

	transferService := service.NewTransferService(mondayClient, pipe, &logger)
	authService := service.NewAuthService(oauth, tokens, &logger)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	apiServer := api.NewHTTPServer(cfg.API, cfg.Monday.SigningSecret, transferService, authService, db, pipe, tracker, &logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = apiServer.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("version", cfg.App.Version).Msg("File transfer service started")
	<-ctx.Done()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "main").Logger()

	// Per-scenario tuning lives in an optional side file so operators can
	// adjust concurrency and windows without touching the secrets-bearing
	// main config.
	scenariosPath := os.Getenv("SCENARIOS_PATH")
	if scenariosPath == "" {
		scenariosPath = "configs/scenarios.yaml"
	}
	if err := cfg.ApplyScenarioOverrides(scenariosPath); err != nil {
		logger.Error().Err(err).Str("path", scenariosPath).Msg("Failed to apply scenario overrides")
		return nil, zerolog.Logger{}, closer, err
	}

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Failed to create database directory")
		return err
	}
	if err := os.MkdirAll(cfg.Pipeline.ScratchDir, 0o755); err != nil {
		logger.Error().Err(err).Msg("Failed to create scratch directory")
		return err
	}
	return nil
}

// initTokenStore builds the failover token store: redis when configured and
// reachable, in-memory otherwise.
func initTokenStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, tokenstore.Store) {
	ttl := 720 * time.Hour
	if parsed, err := time.ParseDuration(cfg.Redis.TokenTTL); err == nil {
		ttl = parsed
	} else {
		logger.Warn().Err(err).Str("token_ttl", cfg.Redis.TokenTTL).Msg("Failed to parse token TTL, using default 720h")
	}

	fallback := tokenstore.NewMemoryStore()
	if cfg.Redis.Address == "" {
		logger.Warn().Msg("Redis not configured, tokens are kept in memory only")
		return nil, fallback
	}

	redisClient := tokenstore.NewRedisClient(cfg.Redis)
	if err := tokenstore.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	primary := tokenstore.NewRedisStore(redisClient, ttl)
	return redisClient, tokenstore.NewFailoverStore(primary, fallback, logger)
}

// subscribeTransferHistory persists every terminal task outcome into the
// sqlite history log behind the admin API.
func subscribeTransferHistory(ctx context.Context, bus *events.EventBus, db *database.DB, logger *zerolog.Logger) {
	record := func(ev *events.Event) error {
		var payload events.TransferEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}

		rec := models.TransferRecord{
			TransferID: payload.TransferID,
			ItemID:     payload.ItemID,
			BoardID:    payload.BoardID,
			AssetID:    payload.AssetID,
			FileName:   payload.FileName,
			Scenario:   payload.Scenario,
			Outcome:    payload.Outcome,
			Detail:     payload.Detail,
			Attempts:   payload.Attempts,
			DurationMS: payload.Duration.Milliseconds(),
		}
		if err := db.RecordTransfer(ctx, &rec); err != nil {
			logger.Error().Err(err).Str("transfer_id", payload.TransferID).Msg("event bus: record transfer")
		}
		return nil
	}

	bus.Subscribe(events.EventTransferCompleted, record)
	bus.Subscribe(events.EventTransferDropped, record)
	bus.Subscribe(events.EventTransferNotified, record)
}
