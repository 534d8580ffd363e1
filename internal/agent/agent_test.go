package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/hankl/microbot/internal/bus"
	"github.com/hankl/microbot/internal/session"
)

func newTestAgent(t *testing.T, client *scriptedClient) (*Agent, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(nil, discardLogger())
	assembler := NewAssembler("", nil, nil, discardLogger())
	loop := NewLoop(client, &recordingDispatcher{}, LoopSettings{Model: "m"}, discardLogger())
	return New(mgr, assembler, loop, discardLogger()), mgr
}

func TestHandleMessage(t *testing.T) {
	a, mgr := newTestAgent(t, &scriptedClient{replies: []string{"Hi there"}})

	out, err := a.HandleMessage(context.Background(), bus.InboundMessage{
		Content: "hello",
		User:    "ana",
		Channel: "general",
	})
	if err != nil {
		t.Fatalf("HandleMessage() error: %v", err)
	}
	if out.Type != bus.TypeResponse {
		t.Errorf("Type = %q, want %q", out.Type, bus.TypeResponse)
	}
	if out.Message != "Hi there" {
		t.Errorf("Message = %q, want %q", out.Message, "Hi there")
	}
	if out.SessionID == "" {
		t.Error("SessionID empty, want the session's id")
	}

	// Exactly one user and one assistant entry persisted for the turn.
	sess := mgr.GetOrCreate(context.Background(), "general", "ana")
	history := sess.History()
	if len(history) != 2 {
		t.Fatalf("session has %d messages, want 2", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "hello" {
		t.Errorf("history[0] = %+v, want the inbound user entry", history[0])
	}
	if history[1].Role != "assistant" || history[1].Content != "Hi there" {
		t.Errorf("history[1] = %+v, want the final reply", history[1])
	}
}

func TestHandleMessageToolTurnPersistsOnlyFinalReply(t *testing.T) {
	client := &scriptedClient{replies: []string{
		"<search>weather</search>",
		"Sunny.",
	}}
	a, mgr := newTestAgent(t, client)

	out, err := a.HandleMessage(context.Background(), bus.InboundMessage{
		Content: "weather?", User: "ana", Channel: "general",
	})
	if err != nil {
		t.Fatalf("HandleMessage() error: %v", err)
	}
	if out.Message != "Sunny." {
		t.Errorf("Message = %q, want %q", out.Message, "Sunny.")
	}

	// Tool round-trips stay in the transient turn, never the session.
	sess := mgr.GetOrCreate(context.Background(), "general", "ana")
	if got := sess.Len(); got != 2 {
		t.Errorf("session has %d messages, want 2", got)
	}
}

func TestHandleMessageValidation(t *testing.T) {
	a, mgr := newTestAgent(t, &scriptedClient{replies: []string{"unused"}})

	tests := []struct {
		name string
		msg  bus.InboundMessage
		want error
	}{
		{"missing content", bus.InboundMessage{User: "u", Channel: "c"}, bus.ErrMissingContent},
		{"missing user", bus.InboundMessage{Content: "hi", Channel: "c"}, bus.ErrMissingUser},
		{"missing channel", bus.InboundMessage{Content: "hi", User: "u"}, bus.ErrMissingChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.HandleMessage(context.Background(), tt.msg)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	// Rejected messages must not create sessions.
	if got := mgr.Count(); got != 0 {
		t.Errorf("sessions created = %d, want 0", got)
	}
}

func TestHandleMessageSessionContinuity(t *testing.T) {
	a, _ := newTestAgent(t, &scriptedClient{replies: []string{"one", "two"}})
	ctx := context.Background()

	first, err := a.HandleMessage(ctx, bus.InboundMessage{Content: "a", User: "u", Channel: "c"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.HandleMessage(ctx, bus.InboundMessage{Content: "b", User: "u", Channel: "c"})
	if err != nil {
		t.Fatal(err)
	}
	if first.SessionID != second.SessionID {
		t.Errorf("session ids differ: %q vs %q, want same (channel, user) session", first.SessionID, second.SessionID)
	}

	third, err := a.HandleMessage(ctx, bus.InboundMessage{Content: "c", User: "other", Channel: "c"})
	if err != nil {
		t.Fatal(err)
	}
	if third.SessionID == first.SessionID {
		t.Error("different user shares a session, want isolation")
	}
}

func TestHandleMessageModelFailure(t *testing.T) {
	mgr := session.NewManager(nil, discardLogger())
	assembler := NewAssembler("", nil, nil, discardLogger())
	loop := NewLoop(failingClient{}, &recordingDispatcher{}, LoopSettings{Model: "m"}, discardLogger())
	a := New(mgr, assembler, loop, discardLogger())

	_, err := a.HandleMessage(context.Background(), bus.InboundMessage{
		Content: "hi", User: "u", Channel: "c",
	})
	if err == nil {
		t.Fatal("error = nil, want orchestration failure")
	}
	if bus.IsValidation(err) {
		t.Error("model failure misclassified as validation error")
	}
}
