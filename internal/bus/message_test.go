package bus

import (
	"errors"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  InboundMessage
		want error
	}{
		{"valid", InboundMessage{Content: "hi", User: "u", Channel: "c"}, nil},
		{"missing content", InboundMessage{User: "u", Channel: "c"}, ErrMissingContent},
		{"missing user", InboundMessage{Content: "hi", Channel: "c"}, ErrMissingUser},
		{"missing channel", InboundMessage{Content: "hi", User: "u"}, ErrMissingChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIsValidation(t *testing.T) {
	for _, err := range []error{ErrMissingContent, ErrMissingUser, ErrMissingChannel} {
		if !IsValidation(err) {
			t.Errorf("IsValidation(%v) = false, want true", err)
		}
	}
	if IsValidation(errors.New("other failure")) {
		t.Error("IsValidation(other) = true, want false")
	}
	if IsValidation(nil) {
		t.Error("IsValidation(nil) = true, want false")
	}
}

func TestNormalize(t *testing.T) {
	m := InboundMessage{Content: "hi", User: "u", Channel: "c"}
	m.Normalize()

	if m.ID == "" {
		t.Error("Normalize() left ID empty")
	}
	if m.Timestamp.IsZero() {
		t.Error("Normalize() left Timestamp zero")
	}

	// Supplied values are preserved.
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m2 := InboundMessage{ID: "given", Content: "hi", User: "u", Channel: "c", Timestamp: ts}
	m2.Normalize()
	if m2.ID != "given" || !m2.Timestamp.Equal(ts) {
		t.Errorf("Normalize() overwrote supplied fields: %+v", m2)
	}
}

func TestResponseEnvelope(t *testing.T) {
	out := Response("hello", "sess-1")
	if out.Type != TypeResponse {
		t.Errorf("Type = %q, want %q", out.Type, TypeResponse)
	}
	if out.Message != "hello" || out.SessionID != "sess-1" {
		t.Errorf("envelope = %+v", out)
	}
	if out.Timestamp.IsZero() {
		t.Error("Timestamp zero")
	}
	if out.Error != "" {
		t.Errorf("Error = %q, want empty", out.Error)
	}
}

func TestErrorReplyEnvelope(t *testing.T) {
	out := ErrorReply("something broke", errors.New("cause"))
	if out.Type != TypeError {
		t.Errorf("Type = %q, want %q", out.Type, TypeError)
	}
	if out.Message != "something broke" {
		t.Errorf("Message = %q", out.Message)
	}
	if out.Error != "cause" {
		t.Errorf("Error = %q, want cause", out.Error)
	}

	if out := ErrorReply("no cause", nil); out.Error != "" {
		t.Errorf("Error = %q, want empty for nil err", out.Error)
	}
}
