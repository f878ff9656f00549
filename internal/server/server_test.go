package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-light/config"
	"traffic-light/internal/bridge"
	"traffic-light/internal/broker"
	"traffic-light/internal/handler"
	"traffic-light/internal/middleware"
	"traffic-light/internal/services"
	"traffic-light/internal/websocket"
)

const topic = "traffic-light-channel"

func newTestServer(t *testing.T, limiter middleware.Limiter) (*Server, *broker.MemoryBroker) {
	t.Helper()
	cfg := &config.Config{
		AppPort:            "0",
		AppMode:            TestMode,
		CORSAllowedOrigins: []string{"*"},
	}
	mb := broker.NewMemory(4)
	hub := websocket.NewHub()

	s := New(cfg, nil)
	s.SetupRoutes(&Handlers{
		Light:  handler.NewLightHandler(services.NewLightService(mb, topic, nil)),
		Health: handler.NewHealthHandler(mb, broker.DriverMemory, hub),
		Stream: websocket.NewHandler(bridge.New(mb, topic, nil), hub, websocket.Options{}, nil),
	}, limiter)
	s.OnShutdown("websocket", func() error { hub.CloseAll(); return nil })
	s.OnShutdown("broker", mb.Close)
	t.Cleanup(func() { _ = mb.Close() })
	return s, mb
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(s, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","broker":"memory","connections":0}`, w.Body.String())

	w = do(s, http.MethodPost, "/update-traffic-light", `{"color":"green"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(s, http.MethodPost, "/update-traffic-light", `{"color":"blue"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "light_relay_publish_total")

	// plain GET without upgrade headers is refused by the upgrader
	w = do(s, http.MethodGet, "/traffic-light", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_PublishRateLimit(t *testing.T) {
	s, _ := newTestServer(t, middleware.NewIPRateLimiter(0.001, 1))

	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/update-traffic-light", `{"color":"red"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodPost, "/update-traffic-light", `{"color":"red"}`).Code)
	// reads are not limited
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "").Code)
}

func TestShutdown_RunsHooksInOrder(t *testing.T) {
	s, mb := newTestServer(t, nil)

	var order []string
	s.onShutdown = nil
	s.OnShutdown("first", func() error { order = append(order, "first"); return nil })
	s.OnShutdown("second", func() error { order = append(order, "second"); return errors.New("boom") })
	s.OnShutdown("broker", func() error { order = append(order, "broker"); return mb.Close() })

	err := s.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second: boom")
	assert.Equal(t, []string{"first", "second", "broker"}, order)

	assert.Error(t, mb.Ping(context.Background()))
	// hooks run once
	require.NoError(t, s.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}
