// Package gateway exposes chat sessions, market quotes and the event stream
// over HTTP and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/coinchat/internal/chat"
	"github.com/dohr-michael/coinchat/internal/events"
	"github.com/dohr-michael/coinchat/internal/gateway/ws"
	"github.com/dohr-michael/coinchat/internal/models"
	"github.com/dohr-michael/coinchat/internal/storage"
)

const defaultEventLimit = 50

// UsageSource reports per-model call counters.
type UsageSource interface {
	Usage() []storage.ModelUsage
}

// ServerConfig holds dependencies for the server.
type ServerConfig struct {
	Bus      *events.Bus
	Sessions *chat.Manager
	Catalog  *models.Catalog
	Quotes   ws.QuoteSource
	Usage    UsageSource // optional
	Host     string
	Port     int
}

// Server is the coinchat gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	sessions   *chat.Manager
	catalog    *models.Catalog
	quotes     ws.QuoteSource
	usage      UsageSource
}

// NewServer creates a new gateway server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Catalog == nil {
		cfg.Catalog = models.NewCatalog(nil)
	}
	hub := ws.NewHub(ws.HubConfig{
		Bus:      cfg.Bus,
		Sessions: cfg.Sessions,
		Catalog:  cfg.Catalog,
		Quotes:   cfg.Quotes,
	})

	s := &Server{
		hub:      hub,
		bus:      cfg.Bus,
		sessions: cfg.Sessions,
		catalog:  cfg.Catalog,
		quotes:   cfg.Quotes,
		usage:    cfg.Usage,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", hub.ServeWS)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/models", s.handleModels)
	r.Post("/api/models", s.handleModels)
	r.Get("/api/quotes", s.handleQuotes)
	r.Get("/api/usage", s.handleUsage)
	r.Get("/api/sessions", s.handleSessions)
	r.Get("/api/sessions/{id}", s.handleSession)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	slog.Info("coinchat gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	type eventJSON struct {
		ID        string             `json:"id"`
		SessionID string             `json:"session_id,omitempty"`
		Type      string             `json:"type"`
		Timestamp string             `json:"timestamp"`
		Source    events.EventSource `json:"source"`
		Payload   map[string]any     `json:"payload"`
	}

	history := s.bus.History(limit)
	result := make([]eventJSON, len(history))
	for i, e := range history {
		result[i] = eventJSON{
			ID:        e.ID,
			SessionID: e.SessionID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// handleModels answers with the same shape the model-listing endpoint
// expects: {"models": [...]}.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]models.Option{"models": s.catalog.List(r.Context())})
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if s.quotes == nil {
		http.Error(w, "market data not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.quotes.Latest())
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage := []storage.ModelUsage{}
	if s.usage != nil {
		usage = s.usage.Usage()
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if errors.Is(err, chat.ErrSessionNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}
