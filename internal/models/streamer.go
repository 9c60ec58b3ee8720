package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/coinchat/internal/events"
)

// ChatMessage is one prior turn sent to the model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one outbound streaming call.
type ChatRequest struct {
	Model        string        `json:"model"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Text         string        `json:"text"`
	History      []ChatMessage `json:"history"`
}

// ChunkFunc receives the reply so far. It is called once per received chunk
// with final=false, then exactly once with final=true when the reply ends
// normally.
type ChunkFunc func(content, reasoning string, final bool)

// ModelSource resolves a model by provider name.
type ModelSource interface {
	Get(ctx context.Context, name string) (model.ToolCallingChatModel, error)
}

// Streamer runs streaming chat completions and reports telemetry on the bus.
type Streamer struct {
	models ModelSource
	bus    *events.Bus
}

// NewStreamer creates a streamer. bus may be nil.
func NewStreamer(models ModelSource, bus *events.Bus) *Streamer {
	return &Streamer{models: models, bus: bus}
}

// StreamChat sends req to its model and relays the cumulative reply to fn.
// A failure before or during streaming is returned, classified by
// HandleError; fn then never sees final=true.
func (s *Streamer) StreamChat(ctx context.Context, req ChatRequest, fn ChunkFunc) error {
	if req.Model == "" {
		return fmt.Errorf("no model selected")
	}

	m, err := s.models.Get(ctx, req.Model)
	if err != nil {
		return err
	}

	msgs := buildMessages(req)
	call := events.LLMCallPayload{Model: req.Model, Provider: s.provider(req.Model), MessageCount: len(msgs)}
	start := time.Now()

	call.Phase = "request"
	s.publish(ctx, call)

	fail := func(err error) error {
		call.Phase = "error"
		call.Duration = time.Since(start)
		call.Error = err.Error()
		s.publish(ctx, call)
		slog.Debug("llm stream failed", "model", req.Model, "error", err)
		return HandleError(err)
	}

	sr, err := m.Stream(ctx, msgs)
	if err != nil {
		return fail(err)
	}
	defer sr.Close()

	var content, reasoning strings.Builder
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(err)
		}
		if chunk == nil {
			continue
		}
		call.Chunks++
		content.WriteString(chunk.Content)
		reasoning.WriteString(chunk.ReasoningContent)
		fn(content.String(), reasoning.String(), false)
	}

	fn(content.String(), reasoning.String(), true)

	call.Phase = "response"
	call.Duration = time.Since(start)
	s.publish(ctx, call)
	return nil
}

func (s *Streamer) provider(name string) string {
	if r, ok := s.models.(*Registry); ok {
		if e, ok := r.Entry(name); ok {
			return e.Config.Driver
		}
	}
	return ""
}

func (s *Streamer) publish(ctx context.Context, payload events.LLMCallPayload) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.NewTypedEventWithSession(events.SourceModel, payload, events.SessionIDFromContext(ctx)))
}

// buildMessages lays out system prompt, history, then the user text unless
// history already ends with it.
func buildMessages(req ChatRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(req.SystemPrompt))
	}
	for _, h := range req.History {
		switch h.Role {
		case string(schema.Assistant):
			msgs = append(msgs, schema.AssistantMessage(h.Content, nil))
		case string(schema.System):
			msgs = append(msgs, schema.SystemMessage(h.Content))
		default:
			msgs = append(msgs, schema.UserMessage(h.Content))
		}
	}

	n := len(req.History)
	if req.Text != "" && (n == 0 || req.History[n-1].Role != string(schema.User) || req.History[n-1].Content != req.Text) {
		msgs = append(msgs, schema.UserMessage(req.Text))
	}
	return msgs
}
