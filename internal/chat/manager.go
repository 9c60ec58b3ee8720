package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/coinchat/internal/conversation"
	"github.com/dohr-michael/coinchat/internal/events"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrNoModel         = errors.New("no model selected")
)

// Defaults configures new sessions.
type Defaults struct {
	Greeting     string
	SystemPrompt string
	Model        string
}

// ManagerConfig holds dependencies for the manager.
type ManagerConfig struct {
	Completer Completer
	Bus       *events.Bus
	Defaults  Defaults
}

// Manager creates and tracks chat sessions in memory.
type Manager struct {
	completer Completer
	bus       *events.Bus

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	defaults Defaults
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		completer: cfg.Completer,
		bus:       cfg.Bus,
		ctx:       ctx,
		cancel:    cancel,
		defaults:  cfg.Defaults,
		sessions:  make(map[string]*Session),
	}
}

func generateSessionID() string {
	u := uuid.New().String()
	return "sess_" + strings.ReplaceAll(u[:8], "-", "")
}

// SetDefaults changes the settings applied to sessions created afterwards.
func (m *Manager) SetDefaults(d Defaults) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = d
}

// Create opens a session seeded with the greeting. An empty model selects
// the default one.
func (m *Manager) Create(model string) *Session {
	m.mu.Lock()
	d := m.defaults
	if model == "" {
		model = d.Model
	}

	var seed []conversation.Turn
	if d.Greeting != "" {
		seed = append(seed, conversation.Turn{Role: conversation.RoleAssistant, Content: d.Greeting, Status: conversation.StatusFinal})
	}

	ctx, cancel := context.WithCancel(m.ctx)
	now := time.Now()
	s := &Session{
		id:           generateSessionID(),
		store:        conversation.NewStore(seed...),
		completer:    m.completer,
		bus:          m.bus,
		systemPrompt: d.SystemPrompt,
		createdAt:    now,
		ctx:          ctx,
		cancel:       cancel,
		model:        model,
		status:       SessionActive,
		updatedAt:    now,
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	slog.Info("session created", "session", s.id, "model", model)
	s.publish(events.SessionCreatedPayload{Model: model})
	return s
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns the state of every open session, most recently updated first.
func (m *Manager) List() []State {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	states := make([]State, len(sessions))
	for i, s := range sessions {
		states[i] = s.State()
	}
	slices.SortFunc(states, func(a, b State) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return states
}

// Close cancels the session's reply, if any, and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.close()
	slog.Info("session closed", "session", id)
	s.publish(events.SessionClosedPayload{Model: s.Model()})
	return nil
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.cancel()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
