package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatwire/internal/models"
	"chatwire/internal/service"
	"chatwire/pkg/rtc"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	bus := service.NewEventBus(16, logger)
	conversation := service.NewChannelManager(service.ChannelManagerOptions{
		Name: "conversation", URL: "wss://chat.example.com/ws/chat/42/",
		Bus: bus, Logger: logger,
	})
	user := service.NewChannelManager(service.ChannelManagerOptions{
		Name: "user", URL: "wss://chat.example.com/ws/user/7/",
		Bus: bus, Logger: logger,
	})
	store := service.NewMessageStore(7, "alice", conversation, nil, bus, logger)
	typing := service.NewTypingCoordinator(7, 0, conversation, bus, logger)
	calls := service.NewCallEngine(service.CallEngineOptions{
		UserID:  7,
		Channel: user,
		Devices: rtc.NewNullMediaDevices(),
		Factory: rtc.NewNullFactory(),
		Bus:     bus,
		Logger:  logger,
	})

	cfg := &models.Config{}
	cfg.Server.Port = 8096

	return NewServer(cfg, &app{
		conversation: conversation,
		user:         user,
		store:        store,
		typing:       typing,
		calls:        calls,
		bus:          bus,
	}, logger)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload, "counters")
	assert.Contains(t, payload, "uptime_ms")
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "closed", status.Conversation.State)
	assert.False(t, status.Conversation.Ready)
	assert.Equal(t, "idle", status.CallPhase)
	assert.Zero(t, status.Pending)
}

func TestStatusMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
