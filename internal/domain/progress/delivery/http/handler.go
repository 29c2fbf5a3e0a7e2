package http

import (
	"github.com/fasthttp/router"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/pkg/httputil"
)

// Handler serves progress snapshots
type Handler struct {
	tracker domain.ProgressTracker
	logger  zerolog.Logger
}

// NewHandler creates a progress handler
func NewHandler(tracker domain.ProgressTracker, logger zerolog.Logger) *Handler {
	return &Handler{tracker: tracker, logger: logger}
}

// GetProgress handles GET /api/progress/{account_id}
func (h *Handler) GetProgress(ctx *fasthttp.RequestCtx) {
	accountID, err := httputil.PathInt64(ctx, "account_id")
	if err != nil {
		httputil.WriteErrorResponse(ctx, "invalid account_id", fasthttp.StatusBadRequest)
		return
	}

	httputil.WriteResponse(ctx, h.tracker.Get(ctx, accountID))
}

// RegisterRoutes registers progress routes on the router
func (h *Handler) RegisterRoutes(rt *router.Router, mw ...httputil.Middleware) {
	api := httputil.NewMiddlewareGroup(rt.Group("/api")).Use(mw...)
	api.GET("/progress/{account_id}", h.GetProgress)
}
