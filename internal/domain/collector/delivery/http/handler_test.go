package http

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/Conte777/tg-userharvest/internal/domain/collector/entities"
	collectorerrors "github.com/Conte777/tg-userharvest/internal/domain/collector/errors"
)

type mockStarter struct {
	accounts []int64
	days     int
	err      error
}

func (m *mockStarter) StartCrawl(ctx context.Context, accountIDs []int64, windowDays int) (*entities.CrawlHandle, error) {
	m.accounts = accountIDs
	m.days = windowDays
	if m.err != nil {
		return nil, m.err
	}
	if windowDays == 0 {
		windowDays = 7
	}
	return entities.NewCrawlHandle("run-1", []int64{1, 2}, windowDays, time.Now()), nil
}

func TestCollect_Accepted(t *testing.T) {
	starter := &mockStarter{}
	h := NewHandler(starter, zerolog.Nop())

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetBody([]byte(`{"accounts":[1,2],"days":3}`))
	h.Collect(ctx)

	require.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())
	assert.Equal(t, []int64{1, 2}, starter.accounts)
	assert.Equal(t, 3, starter.days)

	var body struct {
		Success bool            `json:"success"`
		Data    CollectResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "run-1", body.Data.RunID)
	assert.Equal(t, 3, body.Data.Days)
}

func TestCollect_EmptyBodyUsesDefaults(t *testing.T) {
	starter := &mockStarter{}
	h := NewHandler(starter, zerolog.Nop())

	ctx := &fasthttp.RequestCtx{}
	h.Collect(ctx)

	require.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())
	assert.Empty(t, starter.accounts)
	assert.Equal(t, 0, starter.days)
}

func TestCollect_Errors(t *testing.T) {
	h := NewHandler(&mockStarter{err: collectorerrors.ErrNoAccounts}, zerolog.Nop())
	ctx := &fasthttp.RequestCtx{}
	h.Collect(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = &fasthttp.RequestCtx{}
	ctx.Request.SetBody([]byte(`{"accounts":"nope"}`))
	h.Collect(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}
