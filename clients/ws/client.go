// Package ws provides a WebSocket client for the coinchat gateway.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/dohr-michael/coinchat/internal/chat"
	wsprotocol "github.com/dohr-michael/coinchat/internal/gateway/ws"
	"github.com/dohr-michael/coinchat/internal/market"
)

// Client is a WebSocket client for the coinchat gateway. It is not safe for
// concurrent use.
type Client struct {
	conn      *websocket.Conn
	reqSeq    uint64
	ctx       context.Context
	cancel    context.CancelFunc
	sessionID string

	// events read while waiting for a response, delivered by ReadFrame
	pending []wsprotocol.Frame
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	conn.SetReadLimit(1 << 22)

	clientCtx, cancel := context.WithCancel(ctx)
	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// SessionID returns the session opened by OpenSession.
func (c *Client) SessionID() string { return c.sessionID }

// OpenSession attaches to an existing session, or creates one when id is
// empty.
func (c *Client) OpenSession(id, model string) (chat.State, error) {
	var state chat.State
	err := c.call(wsprotocol.MethodOpenSession, wsprotocol.OpenSessionParams{SessionID: id, Model: model}, &state)
	if err != nil {
		return chat.State{}, err
	}
	c.sessionID = state.ID
	return state, nil
}

// SendMessage submits a user message to the open session.
func (c *Client) SendMessage(content string) error {
	return c.call(wsprotocol.MethodSendMessage, wsprotocol.SendMessageParams{Content: content}, nil)
}

// SelectModel changes the model of the open session.
func (c *Client) SelectModel(model string) error {
	return c.call(wsprotocol.MethodSelectModel, wsprotocol.SelectModelParams{Model: model}, nil)
}

// ListModels returns the selectable models and the session's resolved choice.
func (c *Client) ListModels() (wsprotocol.ListModelsResult, error) {
	var res wsprotocol.ListModelsResult
	err := c.call(wsprotocol.MethodListModels, nil, &res)
	return res, err
}

// DismissError hides the session's error banner.
func (c *Client) DismissError() error {
	return c.call(wsprotocol.MethodDismissError, nil, nil)
}

// Quotes returns the gateway's latest market snapshot.
func (c *Client) Quotes() (market.Snapshot, error) {
	var snap market.Snapshot
	err := c.call(wsprotocol.MethodGetQuotes, nil, &snap)
	return snap, err
}

// call sends a request and waits for its response, queueing any event
// frames received in between.
func (c *Client) call(method wsprotocol.Method, params, out any) error {
	id := fmt.Sprintf("req-%d", atomic.AddUint64(&c.reqSeq, 1))

	frame, err := wsprotocol.NewRequestFrame(id, method, c.sessionID, params)
	if err != nil {
		return err
	}
	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return err
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	for {
		f, err := c.read()
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		if f.Type != wsprotocol.FrameTypeResponse || f.ID != id {
			if f.Type == wsprotocol.FrameTypeEvent {
				c.pending = append(c.pending, f)
			}
			continue
		}
		if f.OK == nil || !*f.OK {
			return fmt.Errorf("%s: %w", method, errors.New(f.Error))
		}
		if out == nil || len(f.Payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(f.Payload, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
		return nil
	}
}

// ReadFrame returns the next event frame.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	if len(c.pending) > 0 {
		f := c.pending[0]
		c.pending = c.pending[1:]
		return f, nil
	}
	return c.read()
}

func (c *Client) read() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
