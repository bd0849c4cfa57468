package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chatwire/internal/constants"
	"chatwire/internal/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes the diagnostics HTTP surface: health, metrics, and a
// live status snapshot of the channels and the call engine.
type Server struct {
	router *mux.Router
	logger *logrus.Logger
	cfg    *models.Config
	app    *app
	server *http.Server
}

func NewServer(cfg *models.Config, components *app, logger *logrus.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
		cfg:    cfg,
		app:    components,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting diagnostics server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// channelStatus is one stream's slice of the /status payload.
type channelStatus struct {
	State string `json:"state"`
	Ready bool   `json:"ready"`
}

type statusResponse struct {
	Conversation channelStatus `json:"conversation"`
	User         channelStatus `json:"user"`
	CallPhase    string        `json:"call_phase"`
	Messages     int           `json:"messages"`
	Pending      int           `json:"pending"`
	Online       int           `json:"online"`
	Subscribers  int           `json:"subscribers"`
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := statusResponse{
			Conversation: channelStatus{
				State: string(s.app.conversation.State()),
				Ready: s.app.conversation.Ready(),
			},
			User: channelStatus{
				State: string(s.app.user.State()),
				Ready: s.app.user.Ready(),
			},
			CallPhase:   string(s.app.calls.Phase()),
			Messages:    len(s.app.store.Messages()),
			Pending:     s.app.store.PendingCount(),
			Online:      s.app.typing.OnlineCount(),
			Subscribers: s.app.bus.SubscriberCount(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			s.logger.WithError(err).Error("Failed to encode status response")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
