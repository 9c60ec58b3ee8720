// Package chat runs chat sessions: one conversation per session, fed by a
// streaming model call.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/coinchat/internal/conversation"
	"github.com/dohr-michael/coinchat/internal/events"
	"github.com/dohr-michael/coinchat/internal/models"
)

// UnknownError is shown when a failure carries no message.
const UnknownError = "Unknown error"

// Completer performs the outbound streaming call for one reply.
type Completer interface {
	StreamChat(ctx context.Context, req models.ChatRequest, fn models.ChunkFunc) error
}

// Banner is the dismissible error notice of a session.
type Banner struct {
	Message string `json:"message,omitempty"`
	Visible bool   `json:"visible"`
}

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// State is a point-in-time view of a session.
type State struct {
	ID        string              `json:"id"`
	Status    SessionStatus       `json:"status"`
	Model     string              `json:"model"`
	Thinking  bool                `json:"thinking"`
	Banner    Banner              `json:"banner"`
	Turns     []conversation.Turn `json:"turns"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Session owns one conversation. Only one reply is in flight at a time; the
// conversation store rejects a new user turn until the current one settles.
type Session struct {
	id           string
	store        *conversation.Store
	completer    Completer
	bus          *events.Bus
	systemPrompt string
	createdAt    time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	model     string
	thinking  bool
	banner    Banner
	status    SessionStatus
	updatedAt time.Time
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Start submits text. The user turn and its placeholder are appended before
// Start returns; a rejected submission returns the error and leaves the
// conversation unchanged. The reply streams in the background and its
// outcome is delivered on the returned channel.
func (s *Session) Start(text string) (<-chan error, error) {
	if s.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}

	snap, err := s.store.AppendUserTurn(text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.thinking = true
	s.updatedAt = time.Now()
	req := models.ChatRequest{
		Model:        s.model,
		SystemPrompt: s.systemPrompt,
		Text:         text,
		History:      toHistory(s.store.Prior()),
	}
	s.mu.Unlock()

	s.publish(events.UserMessagePayload{Content: text, Model: req.Model})
	s.publishConversation(snap)
	s.publish(events.AssistantStreamPayload{Phase: events.StreamPhaseStart})

	done := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		done <- s.run(req)
		close(done)
	}()
	return done, nil
}

// Submit is Start followed by waiting for the reply to settle.
func (s *Session) Submit(ctx context.Context, text string) error {
	done, err := s.Start(text)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run(req models.ChatRequest) error {
	ctx := events.ContextWithSessionID(s.ctx, s.id)

	src := func(ctx context.Context, emit func(conversation.Fragment)) error {
		return s.completer.StreamChat(ctx, req, func(content, reasoning string, final bool) {
			emit(conversation.Fragment{Content: content, Reasoning: reasoning, Final: final})
		})
	}

	index := 0
	var last conversation.Fragment
	err := conversation.Reconcile(ctx, s.store, conversation.Stream(ctx, src), func(snap []conversation.Turn, f conversation.Fragment) {
		index++
		last = f
		phase := events.StreamPhaseDelta
		if f.Final {
			phase = events.StreamPhaseEnd
			s.setThinking(false)
		}
		s.publish(events.AssistantStreamPayload{Phase: phase, Content: f.Content, Reasoning: f.Reasoning, Index: index})
		s.publishConversation(snap)
	})
	if err != nil {
		s.fail(err)
		return err
	}

	s.publish(events.AssistantMessagePayload{Content: last.Content, Reasoning: last.Reasoning})
	return nil
}

// fail turns the placeholder into the error turn and raises the banner.
func (s *Session) fail(err error) {
	s.store.ApplyFailure()
	snap := s.store.Settle()

	msg := err.Error()
	if msg == "" {
		msg = UnknownError
	}
	if errors.Is(err, context.Canceled) {
		slog.Debug("chat reply cancelled", "session", s.id)
	} else {
		slog.Warn("chat reply failed", "session", s.id, "error", err)
	}

	s.mu.Lock()
	s.thinking = false
	s.banner = Banner{Message: msg, Visible: true}
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.publish(events.ErrorBannerPayload{Message: msg, Visible: true})
	s.publish(events.AssistantMessagePayload{Error: msg})
	s.publishConversation(snap)
}

// DismissError hides the error banner.
func (s *Session) DismissError() {
	s.mu.Lock()
	s.banner.Visible = false
	banner := s.banner
	s.mu.Unlock()

	s.publish(events.ErrorBannerPayload{Message: banner.Message, Visible: false})
}

// SelectModel sets the model used for the next reply. A reply already
// streaming keeps its model.
func (s *Session) SelectModel(name string) error {
	if name == "" {
		return ErrNoModel
	}
	s.mu.Lock()
	s.model = name
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.publishConversation(s.store.Snapshot())
	return nil
}

// Model returns the selected model.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	turns := s.store.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		ID:        s.id,
		Status:    s.status,
		Model:     s.model,
		Thinking:  s.thinking,
		Banner:    s.banner,
		Turns:     turns,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

// Wait blocks until no reply is streaming.
func (s *Session) Wait() {
	s.wg.Wait()
}

// close cancels a streaming reply and waits for it to settle.
func (s *Session) close() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.status = SessionClosed
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) setThinking(v bool) {
	s.mu.Lock()
	s.thinking = v
	s.mu.Unlock()
}

func (s *Session) publishConversation(turns []conversation.Turn) {
	s.mu.Lock()
	payload := events.ConversationUpdatedPayload{Turns: turns, Thinking: s.thinking, Model: s.model}
	s.mu.Unlock()
	s.publish(payload)
}

func (s *Session) publish(payload events.EventPayload) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.NewTypedEventWithSession(events.SourceChat, payload, s.id))
}

// toHistory maps finalized turns to model messages.
func toHistory(turns []conversation.Turn) []models.ChatMessage {
	out := make([]models.ChatMessage, len(turns))
	for i, t := range turns {
		out[i] = models.ChatMessage{Role: string(t.Role), Content: t.Content}
	}
	return out
}
