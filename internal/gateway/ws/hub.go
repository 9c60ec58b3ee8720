package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dohr-michael/coinchat/internal/chat"
	"github.com/dohr-michael/coinchat/internal/events"
	"github.com/dohr-michael/coinchat/internal/market"
	"github.com/dohr-michael/coinchat/internal/models"
)

var errNoSession = errors.New("no session: call open_session first")

// QuoteSource provides the latest market snapshot.
type QuoteSource interface {
	Latest() market.Snapshot
}

// HubConfig holds dependencies for the hub.
type HubConfig struct {
	Bus      *events.Bus
	Sessions *chat.Manager
	Catalog  *models.Catalog
	Quotes   QuoteSource // nil when market polling is disabled
}

// Client represents a connected WebSocket client.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu        sync.RWMutex
	sessionID string
}

func (c *Client) session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Client) attach(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// Hub manages WebSocket clients and bridges them to the event bus. Session
// events reach only the clients attached to that session; global events
// reach everyone.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	bus         *events.Bus
	sessions    *chat.Manager
	catalog     *models.Catalog
	quotes      QuoteSource
	unsubscribe func()
}

// NewHub creates a new WebSocket hub connected to an event bus.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Catalog == nil {
		cfg.Catalog = models.NewCatalog(nil)
	}
	h := &Hub{
		clients:  make(map[*Client]struct{}),
		bus:      cfg.Bus,
		sessions: cfg.Sessions,
		catalog:  cfg.Catalog,
		quotes:   cfg.Quotes,
	}
	h.unsubscribe = cfg.Bus.Subscribe(h.forward)
	return h
}

func (h *Hub) forward(e events.Event) {
	if e.Type == events.EventLLMCall {
		return
	}
	frame, err := NewEventFrame(string(e.Type), e.SessionID, e.Payload)
	if err != nil {
		slog.Error("marshal event frame", "error", err)
		return
	}
	data, err := MarshalFrame(frame)
	if err != nil {
		slog.Error("marshal frame", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !e.Global() && c.session() != e.SessionID {
			continue
		}
		select {
		case c.send <- data:
		default:
			slog.Debug("ws client too slow, event dropped", "event", e.Type)
		}
	}
}

// register adds a client to the hub.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

// unregister removes a client from the hub.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// ServeWS handles a WebSocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // any origin, local tool
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump reads frames from the WS connection and dispatches them.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}
		if frame.Type != FrameTypeRequest {
			slog.Debug("ws unknown frame type", "type", frame.Type)
			continue
		}

		payload, err := c.handleRequest(ctx, frame)
		if err != nil {
			c.reply(frame.ID, false, nil, err.Error())
			continue
		}
		c.reply(frame.ID, true, payload, "")
	}
}

// handleRequest dispatches a request frame to its method.
func (c *Client) handleRequest(ctx context.Context, frame Frame) (any, error) {
	h := c.hub

	if Method(frame.Method) == MethodOpenSession {
		var params OpenSessionParams
		if err := decodeParams(frame.Params, &params); err != nil {
			return nil, err
		}
		var s *chat.Session
		if params.SessionID != "" {
			var err error
			if s, err = h.sessions.Get(params.SessionID); err != nil {
				return nil, err
			}
		} else {
			s = h.sessions.Create(params.Model)
		}
		c.attach(s.ID())
		return s.State(), nil
	}

	if Method(frame.Method) == MethodGetQuotes {
		if h.quotes == nil {
			return market.Snapshot{}, nil
		}
		return h.quotes.Latest(), nil
	}

	s, err := c.target(frame)
	if err != nil {
		return nil, err
	}

	switch Method(frame.Method) {
	case MethodSendMessage:
		var params SendMessageParams
		if err := decodeParams(frame.Params, &params); err != nil {
			return nil, err
		}
		if _, err := s.Start(params.Content); err != nil {
			return nil, err
		}
		return map[string]string{"status": "sent"}, nil

	case MethodSelectModel:
		var params SelectModelParams
		if err := decodeParams(frame.Params, &params); err != nil {
			return nil, err
		}
		if err := s.SelectModel(params.Model); err != nil {
			return nil, err
		}
		return map[string]string{"model": params.Model}, nil

	case MethodListModels:
		opts := h.catalog.List(ctx)
		selected := models.Resolve(opts, s.Model())
		if selected != s.Model() {
			if err := s.SelectModel(selected); err != nil {
				return nil, err
			}
		}
		return ListModelsResult{Models: opts, Selected: selected}, nil

	case MethodDismissError:
		s.DismissError()
		return map[string]bool{"visible": false}, nil

	case MethodGetConversation:
		return s.State(), nil

	default:
		return nil, errors.New("unknown method: " + frame.Method)
	}
}

// target resolves the session a request addresses: the frame's session_id,
// else the one the client opened.
func (c *Client) target(frame Frame) (*chat.Session, error) {
	id := frame.SessionID
	if id == "" {
		id = c.session()
	}
	if id == "" {
		return nil, errNoSession
	}
	return c.hub.sessions.Get(id)
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New("invalid params")
	}
	return nil
}

// writePump writes queued messages to the WS connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) reply(id string, ok bool, payload any, errMsg string) {
	f, err := NewResponseFrame(id, ok, payload, errMsg)
	if err != nil {
		slog.Error("marshal response", "error", err)
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
