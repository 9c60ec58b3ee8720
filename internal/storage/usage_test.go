package storage

import (
	"testing"
	"time"

	"github.com/dohr-michael/coinchat/internal/events"
)

func publishCall(bus *events.Bus, p events.LLMCallPayload) {
	bus.Publish(events.NewTypedEventWithSession(events.SourceModel, p, "sess_1"))
}

func TestUsageTracker_Accumulation(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()

	ut := NewUsageTracker(bus)
	defer ut.Close()

	publishCall(bus, events.LLMCallPayload{Phase: "request", Model: "deepseek-chat", Provider: "deepseek"})
	publishCall(bus, events.LLMCallPayload{Phase: "response", Model: "deepseek-chat", Provider: "deepseek", Chunks: 4, Duration: time.Second})
	publishCall(bus, events.LLMCallPayload{Phase: "error", Model: "deepseek-chat", Duration: 2 * time.Second, Error: "rate limited"})
	publishCall(bus, events.LLMCallPayload{Phase: "response", Model: "claude", Chunks: 1})

	waitFor(t, func() bool { return len(ut.Usage()) == 2 && ut.Usage()[1].Calls == 2 })

	got := ut.Usage()
	if got[0].Model != "claude" || got[0].Calls != 1 || got[0].Chunks != 1 {
		t.Errorf("unexpected claude usage: %+v", got[0])
	}
	ds := got[1]
	if ds.Provider != "deepseek" || ds.Errors != 1 || ds.Chunks != 4 || ds.Duration != 3*time.Second {
		t.Errorf("unexpected deepseek usage: %+v", ds)
	}
	if ds.LastCall.IsZero() {
		t.Error("last call not recorded")
	}
}

func TestUsageTracker_IgnoresRequestsAndOtherEvents(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()

	ut := NewUsageTracker(bus)
	defer ut.Close()

	publishCall(bus, events.LLMCallPayload{Phase: "request", Model: "deepseek-chat"})
	publishCall(bus, events.LLMCallPayload{Phase: "response"})
	bus.Publish(events.NewTypedEvent(events.SourceChat, events.UserMessagePayload{Content: "hi"}))
	publishCall(bus, events.LLMCallPayload{Phase: "response", Model: "marker"})

	waitFor(t, func() bool { return len(ut.Usage()) > 0 })

	got := ut.Usage()
	if len(got) != 1 || got[0].Model != "marker" {
		t.Fatalf("expected only the marker, got %+v", got)
	}
}
