package bootstrap

import (
	"context"
	"time"

	"triage_server/adapter/out/mongodb"
	"triage_server/adapter/out/persistence"
	"triage_server/config"
	"triage_server/core/agent/llm"
	"triage_server/core/port/out"
	"triage_server/core/service/classification"
	"triage_server/core/service/extract"
	"triage_server/core/service/report"
	"triage_server/infra/database"
	"triage_server/pkg/cache"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	metricsWindow  = 500
	cacheKeyPrefix = "triage:"
)

type Dependencies struct {
	Config  *config.Config
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Storage
	History out.HistoryRepository
	Cache   *cache.RedisCache

	// Model
	Generator    out.TextGenerator
	Classifier   *llm.Classifier
	ModelMetrics *metrics.ModelMetrics

	// Services
	ClassifyService *classification.Service
	ReportService   *report.Service
}

// NewDependencies connects the history store, the optional Redis cache and the
// model backend. A missing model leaves the service running with classification
// disabled.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// History store
	switch {
	case cfg.MongoDBURL != "":
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.MongoDB = mongoClient
		cleanups = append(cleanups, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongoClient.Disconnect(ctx)
		})
		deps.History = mongodb.NewHistoryAdapter(mongoClient.Database(cfg.MongoDBName), cfg.HistoryTable)
		logger.Info("History store: MongoDB (database=%s)", cfg.MongoDBName)

	case cfg.DatabaseURL != "":
		db, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.SQLDB = db
		cleanups = append(cleanups, func() { db.Close() })

		adapter, err := persistence.NewHistoryAdapter(db, cfg.HistoryTable)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.History = adapter
		logger.Info("History store: PostgreSQL")

	default:
		db, err := database.NewSQLite(cfg.SQLitePath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.SQLDB = db
		cleanups = append(cleanups, func() { db.Close() })

		adapter, err := persistence.NewHistoryAdapter(db, cfg.HistoryTable)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.History = adapter
		logger.Info("History store: SQLite (%s)", cfg.SQLitePath)
	}

	// Redis (optional read cache)
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis connection failed, history cache disabled: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })

			deps.Cache = cache.NewRedisCache(redisClient, cacheKeyPrefix)
			deps.History = persistence.NewCachedHistoryAdapter(deps.History, deps.Cache, cfg.CacheTTL())
			logger.Info("History cache enabled (ttl=%s)", cfg.CacheTTL())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := deps.History.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Warn("history schema init failed, will retry on request")
	}
	cancel()

	// Model
	deps.ModelMetrics = metrics.NewModelMetrics(metricsWindow)
	gen, closeGen := newGenerator(cfg)
	if closeGen != nil {
		cleanups = append(cleanups, closeGen)
	}
	deps.Generator = gen
	deps.Classifier = llm.NewClassifier(gen, llm.ClassifierConfig{
		Timeout: cfg.LLMTimeout(),
		Metrics: deps.ModelMetrics,
	})
	if deps.Classifier.Available() {
		logger.Info("Model backend: %s", deps.Classifier.Backend())
	} else {
		logger.Warn("No model configured; /classify will answer 503")
	}

	// Services
	deps.ClassifyService = classification.NewService(extract.NewExtractor(), deps.Classifier, deps.History)
	deps.ReportService = report.NewService(deps.History, cfg.Location)

	return deps, cleanup, nil
}

// newGenerator picks the model backend from the configuration. It returns a
// nil generator when no usable credentials are present.
func newGenerator(cfg *config.Config) (out.TextGenerator, func()) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("LLM_PROVIDER=openai but OPENAI_API_KEY is not set")
			return nil, nil
		}
		gen, err := llm.NewOpenAIGenerator(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			logger.WithError(err).Error("failed to configure OpenAI backend")
			return nil, nil
		}
		return gen, nil

	default:
		if cfg.GeminiAPIKey == "" {
			logger.Warn("GEMINI_API_KEY is not set")
			return nil, nil
		}
		gen, err := llm.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.WithError(err).Error("failed to configure Gemini backend")
			return nil, nil
		}
		return gen, func() { gen.Close() }
	}
}
