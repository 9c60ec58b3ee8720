package storage

import (
	"slices"
	"sync"
	"time"

	"github.com/dohr-michael/coinchat/internal/events"
)

// ModelUsage aggregates the model calls of one provider.
type ModelUsage struct {
	Model    string        `json:"model"`
	Provider string        `json:"provider,omitempty"`
	Calls    int           `json:"calls"`
	Errors   int           `json:"errors"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
	LastCall time.Time     `json:"last_call"`
}

// UsageTracker counts model calls from internal.llm.call events.
type UsageTracker struct {
	mu          sync.Mutex
	byModel     map[string]*ModelUsage
	unsubscribe func()
}

// NewUsageTracker subscribes to model call telemetry on bus.
func NewUsageTracker(bus *events.Bus) *UsageTracker {
	ut := &UsageTracker{byModel: make(map[string]*ModelUsage)}
	ut.unsubscribe = bus.Subscribe(ut.handleEvent, events.EventLLMCall)
	return ut
}

// Close unsubscribes the tracker from the event bus.
func (ut *UsageTracker) Close() {
	if ut.unsubscribe != nil {
		ut.unsubscribe()
	}
}

func (ut *UsageTracker) handleEvent(e events.Event) {
	payload, ok := events.GetLLMCallPayload(e)
	if !ok || payload.Model == "" {
		return
	}
	// Requests are counted through their outcome.
	if payload.Phase != "response" && payload.Phase != "error" {
		return
	}

	ut.mu.Lock()
	defer ut.mu.Unlock()

	u, ok := ut.byModel[payload.Model]
	if !ok {
		u = &ModelUsage{Model: payload.Model}
		ut.byModel[payload.Model] = u
	}
	if payload.Provider != "" {
		u.Provider = payload.Provider
	}
	u.Calls++
	if payload.Phase == "error" {
		u.Errors++
	}
	u.Chunks += payload.Chunks
	u.Duration += payload.Duration
	u.LastCall = e.Timestamp
}

// Usage returns the counters of every model seen, by model name.
func (ut *UsageTracker) Usage() []ModelUsage {
	ut.mu.Lock()
	defer ut.mu.Unlock()

	out := make([]ModelUsage, 0, len(ut.byModel))
	for _, u := range ut.byModel {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b ModelUsage) int {
		switch {
		case a.Model < b.Model:
			return -1
		case a.Model > b.Model:
			return 1
		}
		return 0
	})
	return out
}
