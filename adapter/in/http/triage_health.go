package http

import (
	"context"
	"time"

	"triage_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ModelStatus is the slice of the classifier the health check needs.
type ModelStatus interface {
	Available() bool
	Backend() string
}

type HealthHandler struct {
	store   HealthChecker
	cache   HealthChecker
	model   ModelStatus
	metrics *metrics.ModelMetrics
	pools   func() map[string]any
}

// NewHealthHandler creates the health handler; any dependency may be nil.
func NewHealthHandler(store, cache HealthChecker, model ModelStatus, m *metrics.ModelMetrics) *HealthHandler {
	return &HealthHandler{
		store:   store,
		cache:   cache,
		model:   model,
		metrics: m,
	}
}

// WithPoolStats adds connection pool statistics to /health.
func (h *HealthHandler) WithPoolStats(fn func() map[string]any) *HealthHandler {
	h.pools = fn
	return h
}

func (h *HealthHandler) Register(app fiber.Router) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.metrics != nil {
		resp["model_metrics"] = h.metrics.Snapshot()
	}
	if h.pools != nil {
		resp["pools"] = h.pools()
	}
	return c.JSON(resp)
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			checks["store"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["store"] = "healthy"
		}
	} else {
		checks["store"] = "not configured"
	}

	// Redis is optional; an outage only degrades caching
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	if h.model != nil && h.model.Available() {
		checks["model"] = h.model.Backend()
	} else {
		checks["model"] = "not configured"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
