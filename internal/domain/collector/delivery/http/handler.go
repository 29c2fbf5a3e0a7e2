package http

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/tg-userharvest/internal/domain/collector/entities"
	"github.com/Conte777/tg-userharvest/pkg/errors"
	"github.com/Conte777/tg-userharvest/pkg/httputil"
)

// CrawlStarter launches background crawl runs
type CrawlStarter interface {
	StartCrawl(ctx context.Context, accountIDs []int64, windowDays int) (*entities.CrawlHandle, error)
}

// Handler serves the collection endpoint
type Handler struct {
	starter   CrawlStarter
	errMapper *errors.Mapper
	logger    zerolog.Logger
}

// NewHandler creates a collector handler
func NewHandler(starter CrawlStarter, logger zerolog.Logger) *Handler {
	return &Handler{
		starter:   starter,
		errMapper: errors.NewMapper(logger),
		logger:    logger,
	}
}

// CollectRequest is the body of POST /api/collect
type CollectRequest struct {
	Accounts []int64 `json:"accounts"`
	Days     int     `json:"days"`
}

// CollectResponse acknowledges a started run
type CollectResponse struct {
	RunID    string  `json:"run_id"`
	Accounts []int64 `json:"accounts"`
	Days     int     `json:"days"`
	Message  string  `json:"message"`
}

// Collect handles POST /api/collect
func (h *Handler) Collect(ctx *fasthttp.RequestCtx) {
	var req CollectRequest
	if err := httputil.DecodeJSON(ctx, &req); err != nil {
		httputil.WriteErrorResponse(ctx, "invalid request body", fasthttp.StatusBadRequest)
		return
	}
	if req.Days < 0 {
		httputil.WriteErrorResponse(ctx, "days must be positive", fasthttp.StatusBadRequest)
		return
	}

	handle, err := h.starter.StartCrawl(ctx, req.Accounts, req.Days)
	if err != nil {
		status, msg := h.errMapper.MapErrorToHTTP(err)
		httputil.WriteErrorResponse(ctx, msg, status)
		return
	}

	h.logger.Info().Str("run_id", handle.RunID).Ints64("accounts", handle.Accounts).Msg("collection requested")

	httputil.WriteResponseWithStatus(ctx, CollectResponse{
		RunID:    handle.RunID,
		Accounts: handle.Accounts,
		Days:     handle.WindowDays,
		Message:  "collection started",
	}, fasthttp.StatusAccepted)
}

// RegisterRoutes registers collector routes on the router
func (h *Handler) RegisterRoutes(rt *router.Router, mw ...httputil.Middleware) {
	api := httputil.NewMiddlewareGroup(rt.Group("/api")).Use(mw...)
	api.POST("/collect", h.Collect)
}
