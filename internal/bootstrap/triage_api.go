package bootstrap

import (
	"strings"
	"time"

	"triage_server/adapter/in/http"
	"triage_server/config"
	"triage_server/infra/database"
	"triage_server/infra/middleware"
	"triage_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// NewAPI builds the dependencies and the HTTP application. The returned
// cleanup releases both.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanupDeps, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app, cleanupApp := NewApp(cfg, deps)

	cleanup := func() {
		cleanupApp()
		cleanupDeps()
	}
	return app, cleanup, nil
}

// NewApp mounts middleware and routes on a fresh fiber app.
func NewApp(cfg *config.Config, deps *Dependencies) (*fiber.App, func()) {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		AppName:               "triage",

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		// Uploads are parsed from the buffered body
		BodyLimit:       cfg.BodyLimit(),
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLMTimeout() + 30*time.Second,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// AllowCredentials cannot be combined with "*"
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Content-Disposition",
		AllowCredentials: allowOrigins != "*",
		MaxAge:           86400,
	}))

	var cacheChecker http.HealthChecker
	if deps.Cache != nil {
		cacheChecker = deps.Cache
	}
	var storeChecker http.HealthChecker
	if deps.History != nil {
		storeChecker = deps.History
	}
	var modelStatus http.ModelStatus
	if deps.Classifier != nil {
		modelStatus = deps.Classifier
	}
	http.NewHealthHandler(storeChecker, cacheChecker, modelStatus, deps.ModelMetrics).
		WithPoolStats(deps.poolStats).
		Register(app)

	http.NewPageHandler(deps.History, cfg.IsVercel).Register(app)
	http.NewHistoryHandler(deps.ReportService, cfg.HistoryLimit).Register(app)

	limiter := middleware.NewRateLimiter(cfg.ClassifyRateLimit, time.Minute)
	http.NewClassifyHandler(deps.ClassifyService).Register(app, limiter.Handler())

	return app, limiter.Close
}

func (d *Dependencies) poolStats() map[string]any {
	stats := make(map[string]any)
	if d.SQLDB != nil {
		stats["sql"] = database.GetDBStats(d.SQLDB)
	}
	if d.Redis != nil {
		stats["redis"] = database.GetRedisStats(d.Redis)
	}
	return stats
}
