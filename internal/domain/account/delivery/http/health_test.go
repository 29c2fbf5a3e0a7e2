package http

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type mockPinger struct{ err error }

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

type mockConnections struct{ active int }

func (m *mockConnections) ActiveCount() int { return m.active }

type mockPublisher struct{ healthy bool }

func (m *mockPublisher) IsHealthy() bool { return m.healthy }

func serveHealth(t *testing.T, h *HealthHandler) (int, HealthResponse) {
	t.Helper()
	ctx := &fasthttp.RequestCtx{}
	h.Handle(ctx)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	return ctx.Response.StatusCode(), resp
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	h := NewHealthHandler("tg-userharvest", &mockPinger{}, &mockConnections{active: 2}, &mockPublisher{healthy: true}, zerolog.Nop())

	code, resp := serveHealth(t, h)

	assert.Equal(t, fasthttp.StatusOK, code)
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	assert.Equal(t, "tg-userharvest", resp.Service)
	require.Len(t, resp.Components, 3)
	assert.Equal(t, "2 active", resp.Components[1].Message)
}

func TestHealthHandler_PublisherDegraded(t *testing.T) {
	h := NewHealthHandler("svc", &mockPinger{}, &mockConnections{}, &mockPublisher{healthy: false}, zerolog.Nop())

	code, resp := serveHealth(t, h)

	assert.Equal(t, fasthttp.StatusOK, code)
	assert.Equal(t, HealthStatusDegraded, resp.Status)
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	h := NewHealthHandler("svc", &mockPinger{err: errors.New("connection refused")}, &mockConnections{}, &mockPublisher{healthy: true}, zerolog.Nop())

	code, resp := serveHealth(t, h)

	assert.Equal(t, fasthttp.StatusServiceUnavailable, code)
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	assert.Equal(t, "connection refused", resp.Components[0].Message)
}
