package conversation

import (
	"slices"
	"sync"
)

// Store owns a conversation and serializes every transition on it, so a
// fragment is fully applied before the next one is admitted.
type Store struct {
	mu    sync.Mutex
	turns []Turn
}

// NewStore creates a store seeded with the given turns.
func NewStore(initial ...Turn) *Store {
	return &Store{turns: slices.Clone(initial)}
}

// Snapshot returns a copy of the current turns.
func (s *Store) Snapshot() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.turns)
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// InFlight reports whether a reply is pending or streaming.
func (s *Store) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return InFlight(s.turns)
}

// Prior returns the finalized turns.
func (s *Store) Prior() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Prior(s.turns)
}

// AppendUserTurn appends the user turn and its pending placeholder. On error
// the conversation is not modified.
func (s *Store) AppendUserTurn(text string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := AppendUserTurn(s.turns, text)
	if err != nil {
		return slices.Clone(s.turns), err
	}
	s.turns = next
	return slices.Clone(next), nil
}

// ApplyFragment folds a streamed fragment into the conversation.
func (s *Store) ApplyFragment(f Fragment) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = ApplyFragment(s.turns, f)
	return slices.Clone(s.turns)
}

// ApplyFailure turns the pending placeholder into the error turn.
func (s *Store) ApplyFailure() ([]Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, replaced := ApplyFailure(s.turns)
	s.turns = next
	return slices.Clone(next), replaced
}

// Settle finalizes a turn left streaming by an interrupted reply.
func (s *Store) Settle() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = Settle(s.turns)
	return slices.Clone(s.turns)
}
