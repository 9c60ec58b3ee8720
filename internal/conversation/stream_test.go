package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fragments(fs ...Fragment) Source {
	return func(_ context.Context, emit func(Fragment)) error {
		for _, f := range fs {
			emit(f)
		}
		return nil
	}
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatal("timeout waiting for stream to close")
		}
	}
}

func TestStream_EndsOnFinal(t *testing.T) {
	src := fragments(
		Fragment{Content: "a"},
		Fragment{Content: "ab", Final: true},
		Fragment{Content: "ignored"},
	)

	got := collect(t, Stream(context.Background(), src))
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if !got[1].Fragment.Final || got[1].Fragment.Content != "ab" {
		t.Errorf("unexpected last event: %+v", got[1])
	}
}

func TestStream_SynthesizesFinal(t *testing.T) {
	got := collect(t, Stream(context.Background(), fragments(Fragment{Content: "a"}, Fragment{Content: "ab"})))
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	last := got[2].Fragment
	if !last.Final || last.Content != "ab" {
		t.Errorf("unexpected synthesized final: %+v", last)
	}
}

func TestStream_Error(t *testing.T) {
	boom := errors.New("boom")
	src := func(_ context.Context, emit func(Fragment)) error {
		emit(Fragment{Content: "a"})
		return boom
	}

	got := collect(t, Stream(context.Background(), src))
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if !errors.Is(got[1].Err, boom) {
		t.Errorf("expected boom, got %v", got[1].Err)
	}
}

func TestReconcile_SinglePlaceholderMutated(t *testing.T) {
	store := NewStore(greeting)
	if _, err := store.AppendUserTurn("hi"); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	updates := 0
	src := fragments(
		Fragment{Content: "H"},
		Fragment{Content: "He"},
		Fragment{Content: "Hey", Final: true},
	)
	err := Reconcile(context.Background(), store, Stream(context.Background(), src), func(snap []Turn, _ Fragment) {
		mu.Lock()
		updates++
		mu.Unlock()
		if len(snap) != 3 {
			t.Errorf("turn count changed mid-stream: %d", len(snap))
		}
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if updates != 3 {
		t.Errorf("expected 3 updates, got %d", updates)
	}
	snap := store.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(snap))
	}
	if snap[2].Content != "Hey" || snap[2].Status != StatusFinal {
		t.Errorf("unexpected reply: %+v", snap[2])
	}
	if store.InFlight() {
		t.Error("store still in flight")
	}
}

func TestReconcile_ReturnsFailureWithoutApplying(t *testing.T) {
	store := NewStore(greeting)
	if _, err := store.AppendUserTurn("hi"); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("upstream down")
	src := func(context.Context, func(Fragment)) error { return boom }

	err := Reconcile(context.Background(), store, Stream(context.Background(), src), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if snap := store.Snapshot(); snap[2].Status != StatusPending {
		t.Errorf("placeholder should still be pending, got %+v", snap[2])
	}
}

func TestReconcile_Cancelled(t *testing.T) {
	store := NewStore(greeting)
	if _, err := store.AppendUserTurn("hi"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	src := func(ctx context.Context, emit func(Fragment)) error {
		emit(Fragment{Content: "a"})
		<-ctx.Done()
		return ctx.Err()
	}

	events := Stream(ctx, src)
	done := make(chan error, 1)
	go func() {
		done <- Reconcile(ctx, store, events, func([]Turn, Fragment) { cancel() })
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Reconcile did not return after cancel")
	}
}
