// Package conversation holds the ordered list of chat turns and the rules for
// folding a streamed assistant reply into it.
package conversation

import (
	"errors"
	"slices"
	"strings"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the lifecycle state of a turn.
type Status string

const (
	StatusFinal     Status = "final"
	StatusPending   Status = "pending"   // placeholder awaiting its first fragment
	StatusStreaming Status = "streaming" // partial content received
)

// ErrorContent replaces a pending turn whose reply could not be obtained.
const ErrorContent = "[Error contacting AI service]"

var (
	ErrEmptyText    = errors.New("message is empty")
	ErrTurnInFlight = errors.New("a reply is still in progress")
)

// Turn is one message of the conversation.
type Turn struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
	Status    Status `json:"status"`
}

// Open reports whether the turn is still waiting on the stream.
func (t Turn) Open() bool {
	return t.Status == StatusPending || t.Status == StatusStreaming
}

// Fragment is one incremental piece of a streamed assistant reply. Content and
// Reasoning carry the reply so far, not a delta.
type Fragment struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
	Final     bool   `json:"final"`
}

// InFlight reports whether any turn is pending or streaming.
func InFlight(turns []Turn) bool {
	return slices.ContainsFunc(turns, Turn.Open)
}

// AppendUserTurn adds the user's text and a pending assistant placeholder.
// The input slice is left untouched.
func AppendUserTurn(turns []Turn, text string) ([]Turn, error) {
	if strings.TrimSpace(text) == "" {
		return turns, ErrEmptyText
	}
	if InFlight(turns) {
		return turns, ErrTurnInFlight
	}

	next := make([]Turn, 0, len(turns)+2)
	next = append(next, turns...)
	next = append(next,
		Turn{Role: RoleUser, Content: text, Status: StatusFinal},
		Turn{Role: RoleAssistant, Status: StatusPending},
	)
	return next, nil
}

// ApplyFragment writes f into the turn it belongs to: the pending placeholder
// if there is one, otherwise the most recent assistant turn. When neither
// exists a new assistant turn is appended.
func ApplyFragment(turns []Turn, f Fragment) []Turn {
	status := StatusStreaming
	if f.Final {
		status = StatusFinal
	}
	updated := Turn{
		Role:      RoleAssistant,
		Content:   f.Content,
		Reasoning: f.Reasoning,
		Status:    status,
	}

	idx := target(turns)
	if idx < 0 {
		return append(slices.Clone(turns), updated)
	}

	next := slices.Clone(turns)
	next[idx] = updated
	return next
}

// target finds the slot a fragment should land in, or -1.
func target(turns []Turn) int {
	if idx := slices.IndexFunc(turns, func(t Turn) bool { return t.Status == StatusPending }); idx >= 0 {
		return idx
	}
	// The pending flag can already be gone when a late fragment arrives; fall
	// back to the last assistant turn so it never lands on a user turn.
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}

// ApplyFailure replaces the pending turn with the error turn. The boolean is
// false when nothing was pending and the snapshot is returned unchanged.
func ApplyFailure(turns []Turn) ([]Turn, bool) {
	idx := slices.IndexFunc(turns, func(t Turn) bool { return t.Status == StatusPending })
	if idx < 0 {
		return turns, false
	}

	next := slices.Clone(turns)
	next[idx] = Turn{Role: RoleAssistant, Content: ErrorContent, Status: StatusFinal}
	return next, true
}

// Settle freezes a turn left streaming by an interrupted reply, keeping
// whatever content it had received.
func Settle(turns []Turn) []Turn {
	idx := slices.IndexFunc(turns, func(t Turn) bool { return t.Status == StatusStreaming })
	if idx < 0 {
		return turns
	}

	next := slices.Clone(turns)
	next[idx].Status = StatusFinal
	return next
}

// Prior returns the finalized turns, the history a model sees.
func Prior(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.Status == StatusFinal {
			out = append(out, t)
		}
	}
	return out
}
