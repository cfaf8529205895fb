package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pathforge/pathforge-api/internal/config"
	"github.com/pathforge/pathforge-api/internal/eligibility"
	"github.com/pathforge/pathforge-api/internal/frontier"
	"github.com/pathforge/pathforge-api/internal/materializer"
	"github.com/pathforge/pathforge-api/internal/personalization"
	"github.com/pathforge/pathforge-api/internal/platform/gemini"
	"github.com/pathforge/pathforge-api/internal/platform/postgres"
	platformredis "github.com/pathforge/pathforge-api/internal/platform/redis"
	"github.com/pathforge/pathforge-api/internal/reconciler"
	"github.com/pathforge/pathforge-api/internal/service"
	"github.com/pathforge/pathforge-api/internal/task"
)

// application holds the composed dependencies of the running server.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	cache  *platformredis.Cache
	svc    *service.GenerationService
	rec    *reconciler.Reconciler
}

// newApplication wires stores, engine components and services together.
// The status cache and the generative personalization backend are both
// optional: an empty Redis address or Gemini API key leaves them out.
func newApplication(cfg *config.Config, log *slog.Logger) (*application, error) {
	db, err := setupAppDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	curriculumStore := postgres.NewPostgresCurriculumStore(db, log)
	learnerStore := postgres.NewPostgresLearnerStore(db, log)
	taskStore := postgres.NewPostgresTaskStore(db, log,
		time.Duration(cfg.Queue.BackoffSeconds)*time.Second)
	profileStore := postgres.NewPostgresProfileStore(db, log)
	outcomeStore := postgres.NewPostgresOutcomeStore(db, log)

	var backends []personalization.Personalizer
	if cfg.LLM.GeminiAPIKey != "" {
		gp, err := gemini.NewGeminiPersonalizer(context.Background(), log, cfg.LLM)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create gemini personalizer: %w", err)
		}
		backends = append(backends, gp)
		log.Info("generative personalization enabled",
			slog.String("model", cfg.LLM.ModelName))
	} else {
		log.Info("generative personalization disabled, using marker substitution only")
	}
	backends = append(backends, personalization.NewMarkerPersonalizer())
	personalizer := personalization.NewChain(log, backends...)

	resolver := eligibility.NewResolver(curriculumStore, learnerStore, eligibility.Config{
		KModule: cfg.Generation.KModule,
		KTopic:  cfg.Generation.KTopic,
	})
	mat := materializer.New(curriculumStore, learnerStore, taskStore, personalizer,
		materializer.Config{
			Deadline:        time.Duration(cfg.Generation.DeadlineSeconds) * time.Second,
			TopN:            cfg.Generation.TopN,
			SynthesizeFloor: cfg.Generation.SynthesizeFloor,
		})
	rec := reconciler.New(curriculumStore, learnerStore, taskStore, profileStore,
		personalizer, resolver, cfg.Frontier.AdvanceThreshold)
	processor := task.NewProcessor(taskStore, learnerStore, profileStore, mat, rec,
		task.Config{
			MaxRetries:  cfg.Queue.MaxRetries,
			BatchSize:   cfg.Queue.BatchSize,
			StaleAfter:  time.Duration(cfg.Queue.StaleAfterSeconds) * time.Second,
			BackoffBase: time.Duration(cfg.Queue.BackoffSeconds) * time.Second,
			GCRetention: time.Duration(cfg.Queue.GCRetentionHours) * time.Hour,
		})
	tracker := frontier.NewTracker(learnerStore, curriculumStore, taskStore, resolver,
		cfg.Frontier.AdvanceThreshold)

	var cache *platformredis.Cache
	var statusCache service.StatusCache
	if cfg.Redis.Addr != "" {
		cache, err = platformredis.NewCache(platformredis.Config{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		statusCache = platformredis.NewStatusCache(cache,
			time.Duration(cfg.Redis.StatusTTLSeconds)*time.Second)
		log.Info("status cache enabled", slog.String("addr", cfg.Redis.Addr))
	} else {
		log.Info("status cache disabled, status reads hit the store")
	}

	svc := service.NewGenerationService(resolver, mat, tracker, processor,
		learnerStore, taskStore, profileStore, outcomeStore, statusCache)

	return &application{
		config: cfg,
		logger: log,
		db:     db,
		cache:  cache,
		svc:    svc,
		rec:    rec,
	}, nil
}

// Run starts the HTTP server and blocks until shutdown.
func (app *application) Run() error {
	return app.startHTTPServer(app.setupRouter())
}

// cleanup releases the application's long-lived resources.
func (app *application) cleanup() {
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.Warn("error closing redis connection",
				slog.String("error", err.Error()))
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn("error closing database connection",
			slog.String("error", err.Error()))
	}
}
