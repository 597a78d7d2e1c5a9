package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/phrazzld/adscribe-api/internal/analysis"
	"github.com/phrazzld/adscribe-api/internal/config"
	"github.com/phrazzld/adscribe-api/internal/platform/gemini"
	"github.com/phrazzld/adscribe-api/internal/platform/postgres"
	redisplatform "github.com/phrazzld/adscribe-api/internal/platform/redis"
	"github.com/phrazzld/adscribe-api/internal/task"
)

// application holds the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Backing infrastructure. redisClient and db are nil when the
	// corresponding backend is not configured.
	redisClient *redis.Client
	db          *sql.DB

	// Orchestration core
	recordStore task.RecordStore
	queue       task.Queue
	submitter   *task.Submitter
	workerPool  *task.WorkerPool
	watcher     *task.Watcher

	// Domain collaborators
	analyzer analysis.Analyzer
	archive  analysis.Archive

	// Scheduled retention jobs
	scheduler *cron.Cron

	// memoryStore is set when running without Redis, so the retention
	// job can purge terminal records that a TTL would otherwise expire.
	memoryStore *task.MemoryRecordStore
}

// newApplication creates an application instance with all dependencies
// initialized and the worker pool started.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	if err := app.setupTaskBackend(ctx); err != nil {
		return nil, err
	}

	if err := app.setupArchive(ctx); err != nil {
		return nil, err
	}

	analyzer, err := gemini.NewAnalyzer(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analyzer: %w", err)
	}
	app.analyzer = analyzer
	logger.Info("analyzer initialized", "model", cfg.LLM.ModelName)

	app.submitter = task.NewSubmitter(app.recordStore, app.queue, analysis.PayloadPrototypes(), logger)

	app.workerPool = task.NewWorkerPool(
		app.recordStore,
		app.queue,
		analysis.Handlers(app.analyzer, app.archive, logger),
		task.WorkerPoolConfig{
			WorkerCount:    cfg.Task.WorkerCount,
			MaxAttempts:    cfg.Task.MaxAttempts,
			RetryBaseDelay: time.Duration(cfg.Task.RetryBaseDelaySeconds) * time.Second,
		},
		logger,
	)
	app.workerPool.Start()

	app.watcher = task.NewWatcher(app.recordStore, task.WatcherConfig{
		PollInterval: time.Duration(cfg.Stream.PollIntervalMillis) * time.Millisecond,
		MaxDuration:  time.Duration(cfg.Stream.MaxDurationSeconds) * time.Second,
	}, logger)

	app.setupRetention()

	logger.Info("application initialized successfully")
	return app, nil
}

// setupTaskBackend wires the record store and work queue: Redis when an
// address is configured, the in-memory implementations otherwise.
func (app *application) setupTaskBackend(ctx context.Context) error {
	cfg := app.config
	recordTTL := time.Duration(cfg.Retention.RecordTTLSeconds) * time.Second
	visibilityTimeout := time.Duration(cfg.Task.VisibilityTimeoutSeconds) * time.Second

	if cfg.Redis.Addr == "" {
		app.logger.Warn("no Redis address configured, using in-memory task backend")

		memoryStore := task.NewMemoryRecordStore()
		app.memoryStore = memoryStore
		app.recordStore = memoryStore
		app.queue = task.NewMemoryQueue(task.MemoryQueueConfig{
			BufferSize:        cfg.Task.QueueSize,
			VisibilityTimeout: visibilityTimeout,
		}, app.logger)
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
	}

	app.redisClient = client
	app.recordStore = redisplatform.NewRecordStore(client, recordTTL)
	app.queue = redisplatform.NewQueue(client, redisplatform.QueueConfig{
		VisibilityTimeout: visibilityTimeout,
	}, app.logger)

	app.logger.Info("Redis task backend initialized", "addr", cfg.Redis.Addr)
	return nil
}

// setupArchive wires the analysis archive: Postgres when a database URL
// is configured, a no-op archive otherwise.
func (app *application) setupArchive(ctx context.Context) error {
	if app.config.Database.URL == "" {
		app.logger.Warn("no database URL configured, archival disabled")
		app.archive = analysis.NopArchive{}
		return nil
	}

	db, err := setupAppDatabase(app.config, app.logger)
	if err != nil {
		return err
	}
	app.db = db

	if err := postgres.Migrate(db); err != nil {
		return err
	}

	app.archive = postgres.NewArchiveStore(db, app.logger)
	return nil
}

// setupRetention schedules the periodic purge of aged state. With an
// archive database this removes old archive rows; without Redis it also
// evicts terminal task records past the record TTL, which Redis would
// otherwise handle via key expiry.
func (app *application) setupRetention() {
	cfg := app.config.Retention
	if cfg.PurgeSchedule == "" {
		return
	}

	archiveStore, hasArchive := app.archive.(*postgres.ArchiveStore)
	purgeArchive := hasArchive && cfg.ArchiveMaxAgeDays > 0
	purgeRecords := app.memoryStore != nil && cfg.RecordTTLSeconds > 0

	if !purgeArchive && !purgeRecords {
		return
	}

	app.scheduler = cron.New()
	_, err := app.scheduler.AddFunc(cfg.PurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if purgeArchive {
			cutoff := time.Now().AddDate(0, 0, -cfg.ArchiveMaxAgeDays)
			if _, err := archiveStore.PurgeOlderThan(ctx, cutoff); err != nil {
				app.logger.Error("archive purge failed", "error", err)
			}
		}

		if purgeRecords {
			cutoff := time.Now().Add(-time.Duration(cfg.RecordTTLSeconds) * time.Second)
			removed := app.memoryStore.PurgeTerminalBefore(ctx, cutoff)
			if removed > 0 {
				app.logger.Info("purged terminal task records", "count", removed)
			}
		}
	})
	if err != nil {
		app.logger.Error("invalid purge schedule, retention disabled",
			"schedule", cfg.PurgeSchedule,
			"error", err)
		app.scheduler = nil
		return
	}

	app.scheduler.Start()
	app.logger.Info("retention job scheduled", "schedule", cfg.PurgeSchedule)
}

// Run starts the HTTP server and blocks until shutdown.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}

	if app.workerPool != nil {
		app.workerPool.Stop()
	}

	if app.queue != nil {
		if err := app.queue.Close(); err != nil {
			app.logger.Error("error closing task queue", "error", err)
		}
	}

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("error closing Redis connection", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
