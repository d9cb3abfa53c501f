package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/legal-rag/config"
	"github.com/upb/legal-rag/middleware"
	"github.com/upb/legal-rag/repositories"
	"github.com/upb/legal-rag/repositories/postgres"
	"github.com/upb/legal-rag/services/answer"
	"github.com/upb/legal-rag/services/budget"
	"github.com/upb/legal-rag/services/cache"
	"github.com/upb/legal-rag/services/metrics"
	"github.com/upb/legal-rag/services/promptbuild"
	"github.com/upb/legal-rag/services/providers/openai"
	"github.com/upb/legal-rag/services/retrieval"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repositories
	Chunks    repositories.ChunkRepository
	QueryLogs repositories.QueryLogRepository

	// Services
	Answer   *answer.Service
	Recorder *metrics.Recorder

	// Middleware
	AuthMiddleware *middleware.AuthMiddleware

	cacheStop chan struct{}
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	db, err := postgres.NewDB(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps.DB = db

	if cfg.IsDevelopment() {
		if err := db.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	deps.Chunks = postgres.NewChunkRepository(db, logger)
	deps.QueryLogs = postgres.NewQueryLogRepository(db, logger)

	deps.Recorder = metrics.NewRecorder(deps.QueryLogs, logger, metrics.DefaultConfig())
	if err := deps.Recorder.Start(); err != nil {
		return nil, fmt.Errorf("failed to start metrics recorder: %w", err)
	}

	store := cache.NewMemoryStore(cfg.Cache.MaxEntries)
	deps.cacheStop = make(chan struct{})
	go store.StartCleanupWorker(time.Minute, deps.cacheStop)
	responseCache := cache.NewResponseCache(store, cfg.Cache.TTL, logger)

	adapter := openai.NewAdapter(cfg.Providers.OpenAI)

	deps.Answer = answer.NewService(
		deps.Chunks,
		adapter,
		adapter,
		retrieval.NewRanker(cfg.Retrieval.SnippetLength, logger),
		budget.NewBudgeter(logger),
		promptbuild.NewComposer(logger),
		responseCache,
		deps.Recorder,
		cfg.Server.RequestTimeout,
		logger,
	)

	deps.AuthMiddleware = middleware.NewAuthMiddleware(logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.cacheStop != nil {
		close(d.cacheStop)
	}

	// Drain buffered query log records before closing the database
	if d.Recorder != nil {
		if err := d.Recorder.Stop(10 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics recorder: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
