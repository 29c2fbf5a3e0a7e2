package http

import (
	"context"
	"fmt"
	"time"

	"github.com/fasthttp/router"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/tg-userharvest/pkg/httputil"
)

// DatabasePinger checks database connectivity
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// ConnectionCounter reports how many platform connections are live
type ConnectionCounter interface {
	ActiveCount() int
}

// PublisherHealthChecker reports the event publisher's health
type PublisherHealthChecker interface {
	IsHealthy() bool
}

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents health status of a single component
type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the JSON response for health check
type HealthResponse struct {
	Status     HealthStatus      `json:"status"`
	Service    string            `json:"service"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
}

// HealthHandler handles health check requests
type HealthHandler struct {
	service     string
	db          DatabasePinger
	connections ConnectionCounter
	publisher   PublisherHealthChecker
	logger      zerolog.Logger
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(
	service string,
	db DatabasePinger,
	connections ConnectionCounter,
	publisher PublisherHealthChecker,
	logger zerolog.Logger,
) *HealthHandler {
	return &HealthHandler{
		service:     service,
		db:          db,
		connections: connections,
		publisher:   publisher,
		logger:      logger,
	}
}

// Handle handles GET /health
func (h *HealthHandler) Handle(ctx *fasthttp.RequestCtx) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	components := h.checkComponents(checkCtx)
	status := determineOverallStatus(components)

	logEvent := h.logger.Debug()
	if status == HealthStatusUnhealthy {
		logEvent = h.logger.Warn()
	}
	logEvent.
		Str("status", string(status)).
		Interface("components", components).
		Msg("Health check completed")

	httputil.WriteHealthResponse(ctx, HealthResponse{
		Status:     status,
		Service:    h.service,
		Timestamp:  time.Now().UTC(),
		Components: components,
	}, status != HealthStatusUnhealthy)
}

func (h *HealthHandler) checkComponents(ctx context.Context) []ComponentHealth {
	components := make([]ComponentHealth, 0, 3)

	dbHealth := ComponentHealth{Name: "database", Healthy: true}
	if err := h.db.Ping(ctx); err != nil {
		dbHealth.Healthy = false
		dbHealth.Message = err.Error()
	}
	components = append(components, dbHealth)

	// idle is fine: connections are opened on demand
	components = append(components, ComponentHealth{
		Name:    "telegram_connections",
		Healthy: true,
		Message: fmt.Sprintf("%d active", h.connections.ActiveCount()),
	})

	publisherHealth := ComponentHealth{Name: "kafka_producer", Healthy: h.publisher.IsHealthy()}
	if !publisherHealth.Healthy {
		publisherHealth.Message = "Kafka producer is not healthy"
	}
	components = append(components, publisherHealth)

	return components
}

// determineOverallStatus is unhealthy when the database is down, degraded
// when anything else is
func determineOverallStatus(components []ComponentHealth) HealthStatus {
	status := HealthStatusHealthy
	for _, c := range components {
		if c.Healthy {
			continue
		}
		if c.Name == "database" {
			return HealthStatusUnhealthy
		}
		status = HealthStatusDegraded
	}
	return status
}

// RegisterRoutes registers the health route on the router
func (h *HealthHandler) RegisterRoutes(rt *router.Router, mw ...httputil.Middleware) {
	handler := fasthttp.RequestHandler(h.Handle)
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	rt.GET("/health", handler)
}
