package conversation

import "context"

// Source produces the fragments of one assistant reply by calling emit, and
// returns once the reply is complete. A non-nil error fails the reply.
type Source func(ctx context.Context, emit func(Fragment)) error

// Event is one element of a reply stream: either a fragment or the error
// that terminated it.
type Event struct {
	Fragment Fragment
	Err      error
}

// Stream runs src in its own goroutine and returns the sequence of events it
// produces. The sequence ends with a final fragment or an error event, then
// the channel is closed. Cancelling ctx stops delivery.
func Stream(ctx context.Context, src Source) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)

		var (
			last Fragment
			sent bool
			done bool
		)
		send := func(e Event) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := src(ctx, func(f Fragment) {
			if done || ctx.Err() != nil {
				return
			}
			last, sent = f, true
			if f.Final {
				done = true
			}
			send(Event{Fragment: f})
		})

		switch {
		case done:
			return
		case err != nil:
			send(Event{Err: err})
		case ctx.Err() != nil:
			return
		default:
			// Source returned without a final fragment: close the reply with
			// whatever it produced last.
			last.Final = true
			if !sent {
				last = Fragment{Final: true}
			}
			send(Event{Fragment: last})
		}
	}()

	return out
}

// Reconcile applies each fragment of events to store, calling onUpdate with
// the resulting snapshot. It returns the error that terminated the stream,
// ctx.Err() if cancelled first, or nil once the final fragment is applied.
// Failures are not applied to the store.
func Reconcile(ctx context.Context, store *Store, events <-chan Event, onUpdate func([]Turn, Fragment)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			if e.Err != nil {
				return e.Err
			}
			snap := store.ApplyFragment(e.Fragment)
			if onUpdate != nil {
				onUpdate(snap, e.Fragment)
			}
			if e.Fragment.Final {
				return nil
			}
		}
	}
}
