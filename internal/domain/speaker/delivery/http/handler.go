package http

import (
	"context"
	"fmt"

	"github.com/fasthttp/router"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/tg-userharvest/internal/domain/speaker/usecase/business"
	"github.com/Conte777/tg-userharvest/pkg/errors"
	"github.com/Conte777/tg-userharvest/pkg/httputil"
)

// Handler serves exports, maintenance and stats
type Handler struct {
	uc        *business.UseCase
	errMapper *errors.Mapper
	logger    zerolog.Logger
}

// NewHandler creates a speaker handler
func NewHandler(uc *business.UseCase, logger zerolog.Logger) *Handler {
	return &Handler{
		uc:        uc,
		errMapper: errors.NewMapper(logger),
		logger:    logger,
	}
}

// UploadRequest selects which export POST /api/export/s3 uploads
type UploadRequest struct {
	Kind      string `json:"kind"`
	Range     string `json:"range"`
	AccountID *int64 `json:"account_id"`
	ChatID    *int64 `json:"chat_id"`
}

// UploadResponse describes an uploaded export
type UploadResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Count    int    `json:"count"`
}

// ExportTXT handles GET /api/export/txt?range=&account_id=&chat_id=
func (h *Handler) ExportTXT(ctx *fasthttp.RequestCtx) {
	rangeKey := string(ctx.QueryArgs().Peek("range"))
	if rangeKey == "" {
		rangeKey = "today"
	}
	accountID, err := httputil.QueryInt64(ctx, "account_id")
	if err != nil {
		httputil.WriteErrorResponse(ctx, "invalid account_id", fasthttp.StatusBadRequest)
		return
	}
	chatID, err := httputil.QueryInt64(ctx, "chat_id")
	if err != nil {
		httputil.WriteErrorResponse(ctx, "invalid chat_id", fasthttp.StatusBadRequest)
		return
	}

	export, err := h.uc.ExportRange(ctx, rangeKey, accountID, chatID)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	httputil.WriteText(ctx, export.Filename, export.Body)
}

// ExportListener handles GET /api/export/listener-usernames/{account_id}
func (h *Handler) ExportListener(ctx *fasthttp.RequestCtx) {
	accountID, err := httputil.PathInt64(ctx, "account_id")
	if err != nil {
		httputil.WriteErrorResponse(ctx, "invalid account_id", fasthttp.StatusBadRequest)
		return
	}

	export, err := h.uc.ExportListener(ctx, accountID)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	httputil.WriteText(ctx, export.Filename, export.Body)
}

// ExportCleaned handles GET /api/export/cleaned-usernames
func (h *Handler) ExportCleaned(ctx *fasthttp.RequestCtx) {
	export, err := h.uc.ExportCleaned(ctx)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	httputil.WriteText(ctx, export.Filename, export.Body)
}

// UploadS3 handles POST /api/export/s3
func (h *Handler) UploadS3(ctx *fasthttp.RequestCtx) {
	var req UploadRequest
	if err := httputil.DecodeJSON(ctx, &req); err != nil {
		httputil.WriteErrorResponse(ctx, "invalid request body", fasthttp.StatusBadRequest)
		return
	}

	export, err := h.buildExport(ctx, req)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	url, err := h.uc.Upload(ctx, export)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, UploadResponse{URL: url, Filename: export.Filename, Count: export.Count})
}

func (h *Handler) buildExport(ctx context.Context, req UploadRequest) (*business.Export, error) {
	switch req.Kind {
	case "", "range":
		rangeKey := req.Range
		if rangeKey == "" {
			rangeKey = "today"
		}
		return h.uc.ExportRange(ctx, rangeKey, req.AccountID, req.ChatID)
	case "listener":
		if req.AccountID == nil {
			return nil, errors.NewValidationError("account_id is required for listener exports")
		}
		return h.uc.ExportListener(ctx, *req.AccountID)
	case "cleaned":
		return h.uc.ExportCleaned(ctx)
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown export kind %q", req.Kind))
	}
}

// Cleanup handles POST /api/database/cleanup
func (h *Handler) Cleanup(ctx *fasthttp.RequestCtx) {
	report, err := h.uc.Cleanup(ctx)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, report)
}

// Stats handles GET /api/stats
func (h *Handler) Stats(ctx *fasthttp.RequestCtx) {
	stats, err := h.uc.Stats(ctx)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, stats)
}

func (h *Handler) writeError(ctx *fasthttp.RequestCtx, err error) {
	status, msg := h.errMapper.MapErrorToHTTP(err)
	httputil.WriteErrorResponse(ctx, msg, status)
}

// RegisterRoutes registers export, maintenance and stats routes on the router
func (h *Handler) RegisterRoutes(rt *router.Router, mw ...httputil.Middleware) {
	api := httputil.NewMiddlewareGroup(rt.Group("/api")).Use(mw...)
	api.GET("/export/txt", h.ExportTXT)
	api.GET("/export/listener-usernames/{account_id}", h.ExportListener)
	api.GET("/export/cleaned-usernames", h.ExportCleaned)
	api.POST("/export/s3", h.UploadS3)
	api.POST("/database/cleanup", h.Cleanup)
	api.GET("/stats", h.Stats)
}
