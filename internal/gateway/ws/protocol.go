package ws

import (
	"encoding/json"

	"github.com/dohr-michael/coinchat/internal/models"
)

// FrameType represents the type of WebSocket frame.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Method represents a WebSocket request method.
type Method string

const (
	MethodOpenSession     Method = "open_session"
	MethodSendMessage     Method = "send_message"
	MethodSelectModel     Method = "select_model"
	MethodListModels      Method = "list_models"
	MethodDismissError    Method = "dismiss_error"
	MethodGetConversation Method = "get_conversation"
	MethodGetQuotes       Method = "get_quotes"
)

// Frame is the WebSocket protocol envelope.
type Frame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	OK        *bool           `json:"ok,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     string          `json:"event,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// OpenSessionParams attaches to SessionID, or creates a session when empty.
type OpenSessionParams struct {
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

type SendMessageParams struct {
	Content string `json:"content"`
}

type SelectModelParams struct {
	Model string `json:"model"`
}

// ListModelsResult is the list_models response, also served by /api/models.
type ListModelsResult struct {
	Models   []models.Option `json:"models"`
	Selected string          `json:"selected,omitempty"`
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// NewRequestFrame creates a request Frame. params may be nil.
func NewRequestFrame(id string, method Method, sessionID string, params any) (Frame, error) {
	f := Frame{
		Type:      FrameTypeRequest,
		ID:        id,
		Method:    string(method),
		SessionID: sessionID,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return Frame{}, err
		}
		f.Params = data
	}
	return f, nil
}

// NewEventFrame creates a Frame for broadcasting an event.
func NewEventFrame(event string, sessionID string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:      FrameTypeEvent,
		Event:     event,
		SessionID: sessionID,
		Payload:   data,
	}, nil
}

// NewResponseFrame creates a response Frame.
func NewResponseFrame(id string, ok bool, payload any, errMsg string) (Frame, error) {
	f := Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: errMsg,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}
