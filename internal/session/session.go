// Package session manages conversation transcripts keyed by
// (channel, user). Transcripts are append-only: messages are never
// edited or removed once appended. Persistence is best-effort: a
// storage failure is reported to the caller but the in-memory
// transcript remains authoritative for the life of the process.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one entry in a conversation transcript.
type Message struct {
	Role      string    `json:"role"` // user, assistant, system
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is an ordered conversation transcript for one (channel, user)
// pair. The identity is immutable for the session's lifetime.
type Session struct {
	id      string
	channel string
	user    string

	mu        sync.Mutex
	messages  []Message
	createdAt time.Time
	updatedAt time.Time

	store  *Store
	logger *slog.Logger
}

// ID returns the session's stable identifier.
func (s *Session) ID() string { return s.id }

// Channel returns the channel half of the session key.
func (s *Session) Channel() string { return s.channel }

// User returns the user half of the session key.
func (s *Session) User() string { return s.user }

// Append adds a message to the transcript and persists it. The
// in-memory transcript always reflects the append; a persistence
// failure is returned so the caller can log it, not so the caller can
// roll back.
func (s *Session) Append(ctx context.Context, role, content string) error {
	m := Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.updatedAt = m.Timestamp
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.AppendMessage(ctx, s.id, m); err != nil {
			return fmt.Errorf("persist message: %w", err)
		}
	}
	return nil
}

// History returns a copy of the ordered transcript. Repeated calls
// without an intervening Append return identical results.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return msgs
}

// Len returns the current transcript length.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// Manager owns the in-process session map. GetOrCreate serializes
// creation per key so two near-simultaneous first messages for the
// same (channel, user) converge on one Session even though loading
// suspends on store I/O.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	store   *Store
	logger  *slog.Logger
}

// entry guards one session key. The sync.Once ensures the load/create
// path runs exactly once per key regardless of interleaving.
type entry struct {
	once sync.Once
	sess *Session
}

// NewManager creates a session manager. store may be nil, in which
// case sessions are purely in-memory.
func NewManager(store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		entries: make(map[string]*entry),
		store:   store,
		logger:  logger,
	}
}

// GetOrCreate returns the session for (channel, user), loading it from
// the store or creating and persisting a new empty one. Concurrent
// first calls for the same key return the same instance.
func (m *Manager) GetOrCreate(ctx context.Context, channel, user string) *Session {
	key := channel + "\x00" + user

	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.sess = m.load(ctx, channel, user)
	})
	return e.sess
}

// load fetches a persisted session or creates a fresh one. Persistence
// failures degrade to an in-memory session: the user still gets a
// conversation even when durability is compromised.
func (m *Manager) load(ctx context.Context, channel, user string) *Session {
	now := time.Now()
	sess := &Session{
		id:        uuid.NewString(),
		channel:   channel,
		user:      user,
		createdAt: now,
		updatedAt: now,
		store:     m.store,
		logger:    m.logger,
	}

	if m.store == nil {
		return sess
	}

	rec, err := m.store.Load(ctx, channel, user)
	if err != nil {
		m.logger.Error("session load failed, continuing in-memory",
			"channel", channel, "user", user, "error", err)
		sess.store = nil
		return sess
	}

	if rec != nil {
		sess.id = rec.ID
		sess.messages = rec.Messages
		sess.createdAt = rec.CreatedAt
		sess.updatedAt = rec.UpdatedAt
		return sess
	}

	if err := m.store.Create(ctx, &Record{
		ID:        sess.id,
		Channel:   channel,
		User:      user,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		m.logger.Error("session create not persisted",
			"channel", channel, "user", user, "error", err)
	}
	return sess
}

// Count returns the number of sessions currently resident in memory.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
