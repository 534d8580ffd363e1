package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sessions_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMissing(t *testing.T) {
	s := testStore(t)

	rec, err := s.Load(context.Background(), "general", "nobody")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if rec != nil {
		t.Errorf("Load() = %+v, want nil for unknown key", rec)
	}
}

func TestCreateAndLoad(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	rec := &Record{ID: "s1", Channel: "general", User: "ana", CreatedAt: now, UpdatedAt: now}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := s.Load(ctx, "general", "ana")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got == nil {
		t.Fatal("Load() = nil, want the created record")
	}
	if got.ID != "s1" {
		t.Errorf("ID = %q, want s1", got.ID)
	}
	if len(got.Messages) != 0 {
		t.Errorf("new session has %d messages, want 0", len(got.Messages))
	}
}

func TestCreateIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	first := &Record{ID: "s1", Channel: "c", User: "u", CreatedAt: now, UpdatedAt: now}
	if err := s.Create(ctx, first); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	// A racing second create for the same key must not clobber the row.
	second := &Record{ID: "s2", Channel: "c", User: "u", CreatedAt: now, UpdatedAt: now}
	if err := s.Create(ctx, second); err != nil {
		t.Fatalf("Create() second error: %v", err)
	}

	got, err := s.Load(ctx, "c", "u")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.ID != "s1" {
		t.Errorf("ID = %q, want the first writer's s1", got.ID)
	}
}

func TestAppendMessageRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	rec := &Record{ID: "s1", Channel: "c", User: "u", CreatedAt: now, UpdatedAt: now}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	msgs := []Message{
		{Role: "user", Content: "hello", Timestamp: time.Now()},
		{Role: "assistant", Content: "hi", Timestamp: time.Now().Add(time.Millisecond)},
		{Role: "user", Content: "bye", Timestamp: time.Now().Add(2 * time.Millisecond)},
	}
	for _, m := range msgs {
		if err := s.AppendMessage(ctx, "s1", m); err != nil {
			t.Fatalf("AppendMessage(%q) error: %v", m.Content, err)
		}
	}

	got, err := s.Load(ctx, "c", "u")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got.Messages) != len(msgs) {
		t.Fatalf("loaded %d messages, want %d", len(got.Messages), len(msgs))
	}
	for i, want := range msgs {
		if got.Messages[i].Role != want.Role || got.Messages[i].Content != want.Content {
			t.Errorf("messages[%d] = %+v, want role=%q content=%q",
				i, got.Messages[i], want.Role, want.Content)
		}
	}
}

func TestManagerReloadsPersistedSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions_test.db")
	ctx := context.Background()

	s1, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(): %v", err)
	}
	m1 := NewManager(s1, discardLogger())
	sess := m1.GetOrCreate(ctx, "general", "ana")
	sess.Append(ctx, "user", "remember me")
	sess.Append(ctx, "assistant", "I will")
	id := sess.ID()
	s1.Close()

	// A fresh process over the same database resumes the transcript.
	s2, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore() reopen: %v", err)
	}
	t.Cleanup(func() { s2.Close() })
	m2 := NewManager(s2, discardLogger())
	resumed := m2.GetOrCreate(ctx, "general", "ana")

	if resumed.ID() != id {
		t.Errorf("resumed ID = %q, want %q", resumed.ID(), id)
	}
	h := resumed.History()
	if len(h) != 2 {
		t.Fatalf("resumed history has %d messages, want 2", len(h))
	}
	if h[0].Content != "remember me" || h[1].Content != "I will" {
		t.Errorf("resumed history = %+v", h)
	}
}
