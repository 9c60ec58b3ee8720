package events

import (
	"encoding/json"
	"time"

	"github.com/dohr-michael/coinchat/internal/conversation"
	"github.com/dohr-michael/coinchat/internal/market"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// USER EVENTS
// =============================================================================

type UserMessagePayload struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

func (UserMessagePayload) EventType() EventType { return EventUserMessage }

// =============================================================================
// ASSISTANT EVENTS
// =============================================================================

type StreamPhase string

const (
	StreamPhaseStart StreamPhase = "start"
	StreamPhaseDelta StreamPhase = "delta"
	StreamPhaseEnd   StreamPhase = "end"
)

// AssistantStreamPayload carries the reply so far; Content is cumulative.
type AssistantStreamPayload struct {
	Phase     StreamPhase `json:"phase"`
	Content   string      `json:"content,omitempty"`
	Reasoning string      `json:"reasoning,omitempty"`
	Index     int         `json:"index"`
}

func (AssistantStreamPayload) EventType() EventType { return EventAssistantStream }

// AssistantMessagePayload closes a reply, successfully or not.
type AssistantMessagePayload struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (AssistantMessagePayload) EventType() EventType { return EventAssistantMessage }

// =============================================================================
// SESSION STATE EVENTS
// =============================================================================

type ConversationUpdatedPayload struct {
	Turns    []conversation.Turn `json:"turns"`
	Thinking bool                `json:"thinking"`
	Model    string              `json:"model,omitempty"`
}

func (ConversationUpdatedPayload) EventType() EventType { return EventConversationUpdated }

type ErrorBannerPayload struct {
	Message string `json:"message,omitempty"`
	Visible bool   `json:"visible"`
}

func (ErrorBannerPayload) EventType() EventType { return EventErrorBanner }

type SessionPayload struct {
	Model string `json:"model,omitempty"`
}

// SessionCreatedPayload announces a new chat session.
type SessionCreatedPayload SessionPayload

func (SessionCreatedPayload) EventType() EventType { return EventSessionCreated }

// SessionClosedPayload announces a session was closed.
type SessionClosedPayload SessionPayload

func (SessionClosedPayload) EventType() EventType { return EventSessionClosed }

// =============================================================================
// MARKET EVENTS
// =============================================================================

type MarketQuotesPayload struct {
	Quotes    []market.Quote `json:"quotes"`
	FetchedAt time.Time      `json:"fetched_at"`
}

func (MarketQuotesPayload) EventType() EventType { return EventMarketQuotes }

// =============================================================================
// INTERNAL EVENTS
// =============================================================================

type LLMCallPayload struct {
	Phase        string        `json:"phase"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider,omitempty"`
	MessageCount int           `json:"message_count,omitempty"`
	Chunks       int           `json:"chunks,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func (LLMCallPayload) EventType() EventType { return EventLLMCall }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return NewTypedEventWithSession(source, payload, "")
}

func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	return Event{
		ID:        generateEventID(),
		SessionID: sessionID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetUserMessagePayload(e Event) (UserMessagePayload, bool) {
	return ExtractPayload[UserMessagePayload](e)
}

func GetAssistantStreamPayload(e Event) (AssistantStreamPayload, bool) {
	return ExtractPayload[AssistantStreamPayload](e)
}

func GetAssistantMessagePayload(e Event) (AssistantMessagePayload, bool) {
	return ExtractPayload[AssistantMessagePayload](e)
}

func GetConversationUpdatedPayload(e Event) (ConversationUpdatedPayload, bool) {
	return ExtractPayload[ConversationUpdatedPayload](e)
}

func GetErrorBannerPayload(e Event) (ErrorBannerPayload, bool) {
	return ExtractPayload[ErrorBannerPayload](e)
}

func GetMarketQuotesPayload(e Event) (MarketQuotesPayload, bool) {
	return ExtractPayload[MarketQuotesPayload](e)
}

func GetLLMCallPayload(e Event) (LLMCallPayload, bool) {
	return ExtractPayload[LLMCallPayload](e)
}
