package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"turnero/internal/api"
	"turnero/internal/config"
	"turnero/internal/database"
	"turnero/internal/domain"
	"turnero/internal/events"
	"turnero/internal/export"
	"turnero/internal/logging"
	"turnero/internal/metrics"
	"turnero/internal/models"
	"turnero/internal/notifier"
	"turnero/internal/predictor"
	"turnero/internal/queue"
	"turnero/internal/repository"
	"turnero/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	metrics.Register()

	db, err := initDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, cache := initPositionCache(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	notifierSvc := notifier.New(db, redisClient, logger)
	waitPredictor := initPredictor(cfg, logger)
	eventBus := events.NewEventBus()

	coordinator := queue.NewCoordinator(db, notifierSvc, waitPredictor, cache, eventBus, queue.Config{
		AvgServiceMinutes: cfg.Queue.AvgServiceMinutes,
		PredictorTimeout:  time.Duration(cfg.Predictor.TimeoutSeconds) * time.Second,
		PositionTTL:       time.Duration(cfg.Queue.PositionTTLSeconds) * time.Second,
		ReminderPositions: cfg.Queue.ReminderPositions,
	}, logger)

	reminderWorker := worker.NewReminderWorker(
		coordinator,
		time.Duration(cfg.Queue.ReminderIntervalSeconds)*time.Second,
		worker.RetryPolicy{MaxRetries: 3, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2},
		logger,
	)
	go reminderWorker.Start(ctx)

	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort, logger)
	}

	if cfg.API.Enabled {
		exporter := export.New(db, cfg.Exports.Path, logger)
		apiServer := api.NewHTTPServer(cfg.API, coordinator, exporter, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Str("version", cfg.App.Version).Msg("queue engine started")
	<-ctx.Done()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := baseLogger.With().Str("component", "queued-main").Logger()

	return cfg, &logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("create exports directory")
			return err
		}
	}
	return nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("database initialization failed")
		return nil, err
	}

	if err := seedServices(context.Background(), db, cfg); err != nil {
		logger.Error().Err(err).Msg("service seeding failed")
		return nil, err
	}
	return db, nil
}

// seedServices upserts the configured services, keeping the queue
// counters of services that already exist.
func seedServices(ctx context.Context, db *database.DB, cfg *config.Config) error {
	for _, seed := range cfg.Services {
		capacity := seed.MaxCapacity
		if capacity == 0 {
			capacity = cfg.Queue.DefaultMaxCapacity
		}
		avg := seed.AvgServiceMinutes
		if avg == 0 {
			avg = cfg.Queue.AvgServiceMinutes
		}

		service := &models.Service{
			ID:                seed.ID,
			EstablishmentID:   seed.EstablishmentID,
			Name:              seed.Name,
			MaxCapacity:       capacity,
			IsOpen:            seed.IsOpen(),
			AvgServiceMinutes: avg,
		}
		if err := db.UpsertService(ctx, service); err != nil {
			return fmt.Errorf("seed service %d: %w", seed.ID, err)
		}
	}
	return nil
}

func initPositionCache(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.PositionCache) {
	fallback := repository.NewMemoryPositionCache()
	if cfg.Redis.Address == "" {
		return nil, fallback
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	primary := repository.NewRedisPositionCache(client)
	return client, repository.NewFailoverPositionCache(primary, fallback, logger)
}

func initPredictor(cfg *config.Config, logger *zerolog.Logger) domain.WaitPredictor {
	if !cfg.Predictor.Enabled {
		return nil
	}
	return predictor.New(
		cfg.Predictor.BaseURL,
		cfg.Predictor.ImageURL,
		time.Duration(cfg.Predictor.TimeoutSeconds)*time.Second,
		logger,
	)
}

func startMetricsServer(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
