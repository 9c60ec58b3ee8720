package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/dohr-michael/coinchat/internal/chat"
	"github.com/dohr-michael/coinchat/internal/events"
	"github.com/dohr-michael/coinchat/internal/gateway/ws"
	"github.com/dohr-michael/coinchat/internal/market"
	"github.com/dohr-michael/coinchat/internal/models"
	"github.com/dohr-michael/coinchat/internal/storage"
)

// echoCompleter answers every message with a fixed reply.
type echoCompleter struct{ reply string }

func (c echoCompleter) StreamChat(_ context.Context, _ models.ChatRequest, fn models.ChunkFunc) error {
	fn(c.reply, "", true)
	return nil
}

type staticQuotes struct{ snap market.Snapshot }

func (q staticQuotes) Latest() market.Snapshot { return q.snap }

type staticLister []models.Option

func (l staticLister) ListModels(context.Context) ([]models.Option, error) { return l, nil }

// waitForEvents polls the bus history until at least n events are present.
func waitForEvents(bus *events.Bus, n int) {
	for i := 0; i < 200; i++ {
		if len(bus.History(100)) >= n {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
}

func newTestServer(t *testing.T, quotes ws.QuoteSource) *Server {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(func() { bus.Close() })

	mgr := chat.NewManager(chat.ManagerConfig{
		Completer: echoCompleter{reply: "BTC is $60k"},
		Bus:       bus,
		Defaults:  chat.Defaults{Greeting: "Hello!", Model: "deepseek-chat"},
	})
	t.Cleanup(mgr.Shutdown)

	srv := NewServer(ServerConfig{
		Bus:      bus,
		Sessions: mgr,
		Catalog:  models.NewCatalog(staticLister{{Value: "deepseek-chat", Label: "DeepSeek-V3"}}),
		Quotes:   quotes,
		Host:     "localhost",
	})
	t.Cleanup(srv.hub.Close)
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	w := get(t, srv, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status %q, got %q", "ok", body["status"])
	}
}

func TestHandleEvents_Empty(t *testing.T) {
	srv := newTestServer(t, nil)

	w := get(t, srv, "/api/events")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty array, got %d items", len(body))
	}
}

func TestHandleEvents_LimitParam(t *testing.T) {
	srv := newTestServer(t, nil)

	for i := 0; i < 10; i++ {
		srv.bus.Publish(events.NewEvent(events.EventUserMessage, events.SourceWS, map[string]any{"i": i}))
	}
	waitForEvents(srv.bus, 10)

	w := get(t, srv, "/api/events?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 5 {
		t.Fatalf("expected 5 events with limit=5, got %d", len(body))
	}

	if w := get(t, srv, "/api/events?limit=abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", w.Code)
	}
}

func TestHandleModels(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/api/models", nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", method, w.Code)
		}

		var body struct {
			Models []models.Option `json:"models"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.Models) != 1 || body.Models[0].Value != "deepseek-chat" {
			t.Fatalf("%s: unexpected models: %+v", method, body.Models)
		}
	}
}

func TestHandleQuotes(t *testing.T) {
	if w := get(t, newTestServer(t, nil), "/api/quotes"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a quote source, got %d", w.Code)
	}

	snap := market.Snapshot{Quotes: []market.Quote{{ID: "bitcoin", Symbol: "btc", CurrentPrice: 60000}}}
	w := get(t, newTestServer(t, staticQuotes{snap: snap}), "/api/quotes")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body market.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Quotes) != 1 || body.Quotes[0].Symbol != "btc" {
		t.Fatalf("unexpected quotes: %+v", body.Quotes)
	}
}

func TestHandleSessions(t *testing.T) {
	srv := newTestServer(t, nil)

	s1 := srv.sessions.Create("")
	srv.sessions.Create("deepseek-reasoner")

	w := get(t, srv, "/api/sessions")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var list []chat.State
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}

	w = get(t, srv, "/api/sessions/"+s1.ID())
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var state chat.State
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if state.ID != s1.ID() || len(state.Turns) != 1 {
		t.Fatalf("unexpected state: %+v", state)
	}

	if w := get(t, srv, "/api/sessions/sess_missing"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleUsage(t *testing.T) {
	srv := newTestServer(t, nil)

	w := get(t, srv, "/api/usage")
	if w.Code != http.StatusOK || w.Body.String() != "[]\n" {
		t.Fatalf("expected empty list without a tracker, got %d %q", w.Code, w.Body.String())
	}

	tracker := storage.NewUsageTracker(srv.bus)
	t.Cleanup(tracker.Close)
	srv.usage = tracker

	srv.bus.Publish(events.NewTypedEvent(events.SourceModel, events.LLMCallPayload{Phase: "response", Model: "deepseek-chat"}))
	for i := 0; i < 200 && len(tracker.Usage()) == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	var body []storage.ModelUsage
	if err := json.NewDecoder(get(t, srv, "/api/usage").Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || body[0].Model != "deepseek-chat" || body[0].Calls != 1 {
		t.Fatalf("unexpected usage: %+v", body)
	}
}
