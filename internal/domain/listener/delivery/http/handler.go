package http

import (
	"github.com/fasthttp/router"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/tg-userharvest/internal/domain/listener/usecase/business"
	"github.com/Conte777/tg-userharvest/pkg/errors"
	"github.com/Conte777/tg-userharvest/pkg/httputil"
)

// Handler serves listener control endpoints
type Handler struct {
	listener  *business.Listener
	errMapper *errors.Mapper
	logger    zerolog.Logger
}

// NewHandler creates a listener handler
func NewHandler(listener *business.Listener, logger zerolog.Logger) *Handler {
	return &Handler{
		listener:  listener,
		errMapper: errors.NewMapper(logger),
		logger:    logger,
	}
}

// StartListener handles POST /api/accounts/{account_id}/start-listener
func (h *Handler) StartListener(ctx *fasthttp.RequestCtx) {
	accountID, ok := h.accountID(ctx)
	if !ok {
		return
	}

	res, err := h.listener.Start(ctx, accountID)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, res)
}

// StopListener handles POST /api/accounts/{account_id}/stop-listener
func (h *Handler) StopListener(ctx *fasthttp.RequestCtx) {
	accountID, ok := h.accountID(ctx)
	if !ok {
		return
	}

	stats, err := h.listener.Stop(ctx, accountID)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, stats)
}

// ListenerStatus handles GET /api/accounts/{account_id}/listener-status
func (h *Handler) ListenerStatus(ctx *fasthttp.RequestCtx) {
	accountID, ok := h.accountID(ctx)
	if !ok {
		return
	}

	httputil.WriteResponse(ctx, h.listener.Status(accountID))
}

// AllStatuses handles GET /api/listeners/status
func (h *Handler) AllStatuses(ctx *fasthttp.RequestCtx) {
	statuses := h.listener.AllStatuses()
	httputil.WriteResponse(ctx, map[string]interface{}{
		"active_listeners": len(statuses),
		"listeners":        statuses,
	})
}

// StopAll handles POST /api/listeners/stop-all
func (h *Handler) StopAll(ctx *fasthttp.RequestCtx) {
	stopped := h.listener.StopAll(ctx)
	h.logger.Info().Int("stopped", len(stopped)).Msg("all listeners stopped")

	httputil.WriteResponse(ctx, map[string]interface{}{
		"stopped": len(stopped),
		"stats":   stopped,
	})
}

func (h *Handler) accountID(ctx *fasthttp.RequestCtx) (int64, bool) {
	id, err := httputil.PathInt64(ctx, "account_id")
	if err != nil {
		httputil.WriteErrorResponse(ctx, "invalid account_id", fasthttp.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(ctx *fasthttp.RequestCtx, err error) {
	status, msg := h.errMapper.MapErrorToHTTP(err)
	httputil.WriteErrorResponse(ctx, msg, status)
}

// RegisterRoutes registers listener routes on the router
func (h *Handler) RegisterRoutes(rt *router.Router, mw ...httputil.Middleware) {
	api := httputil.NewMiddlewareGroup(rt.Group("/api")).Use(mw...)
	api.POST("/accounts/{account_id}/start-listener", h.StartListener)
	api.POST("/accounts/{account_id}/stop-listener", h.StopListener)
	api.GET("/accounts/{account_id}/listener-status", h.ListenerStatus)
	api.GET("/listeners/status", h.AllStatuses)
	api.POST("/listeners/stop-all", h.StopAll)
}
