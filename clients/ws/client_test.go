package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/coinchat/internal/chat"
	"github.com/dohr-michael/coinchat/internal/events"
	"github.com/dohr-michael/coinchat/internal/gateway"
	"github.com/dohr-michael/coinchat/internal/models"
)

type stubCompleter struct{ err error }

func (c stubCompleter) StreamChat(_ context.Context, _ models.ChatRequest, fn models.ChunkFunc) error {
	if c.err != nil {
		return c.err
	}
	fn("ETH is", "", false)
	fn("ETH is $3k", "", true)
	return nil
}

func newGateway(t *testing.T, c chat.Completer) string {
	t.Helper()
	bus := events.NewBus(256)
	t.Cleanup(bus.Close)

	mgr := chat.NewManager(chat.ManagerConfig{
		Completer: c,
		Bus:       bus,
		Defaults:  chat.Defaults{Greeting: "Hello!", Model: "deepseek-chat"},
	})
	t.Cleanup(mgr.Shutdown)

	srv := gateway.NewServer(gateway.ServerConfig{Bus: bus, Sessions: mgr})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
}

func dialTest(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	c, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// waitReply reads event frames until the assistant.message of the session.
func waitReply(t *testing.T, c *Client) events.AssistantMessagePayload {
	t.Helper()
	for {
		f, err := c.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if events.EventType(f.Event) != events.EventAssistantMessage {
			continue
		}
		evt := events.Event{Type: events.EventAssistantMessage, Payload: decodeMap(t, f.Payload)}
		p, ok := events.GetAssistantMessagePayload(evt)
		if !ok {
			t.Fatalf("bad payload: %s", f.Payload)
		}
		return p
	}
}

func TestClient_Conversation(t *testing.T) {
	c := dialTest(t, newGateway(t, stubCompleter{}))

	state, err := c.OpenSession("", "")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if c.SessionID() == "" || c.SessionID() != state.ID {
		t.Fatalf("session id not recorded: %q", c.SessionID())
	}
	if state.Model != "deepseek-chat" {
		t.Errorf("expected default model, got %q", state.Model)
	}

	if err := c.SendMessage("ETH price?"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got := waitReply(t, c); got.Content != "ETH is $3k" {
		t.Fatalf("unexpected reply %q", got.Content)
	}

	res, err := c.ListModels()
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(res.Models) != len(models.FallbackOptions) || res.Selected != "deepseek-chat" {
		t.Fatalf("unexpected models: %+v", res)
	}

	if err := c.SelectModel("deepseek-reasoner"); err != nil {
		t.Fatalf("SelectModel: %v", err)
	}
	if err := c.SelectModel(""); err == nil {
		t.Fatal("expected an error for an empty model")
	}
}

func TestClient_FailureShowsBanner(t *testing.T) {
	c := dialTest(t, newGateway(t, stubCompleter{err: errors.New("insufficient balance")}))

	if _, err := c.OpenSession("", ""); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if err := c.SendMessage("BTC?"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got := waitReply(t, c); got.Error != "insufficient balance" {
		t.Fatalf("unexpected error %q", got.Error)
	}
	if err := c.DismissError(); err != nil {
		t.Fatalf("DismissError: %v", err)
	}
}

func TestClient_ResumeUnknownSession(t *testing.T) {
	c := dialTest(t, newGateway(t, stubCompleter{}))

	if _, err := c.OpenSession("sess_missing", ""); err == nil {
		t.Fatal("expected error")
	}
}

func decodeMap(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return m
}
