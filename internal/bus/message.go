// Package bus defines the message types exchanged between transports
// and the orchestrator. Every transport (WebSocket, webhook, MQTT)
// normalizes its wire format into these types before handing a message
// to the agent, and renders replies from them on the way out.
package bus

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Reply type values for the Outbound envelope.
const (
	TypeResponse = "response"
	TypeError    = "error"
)

// InboundMessage is a normalized message arriving from any transport.
// Content, User, and Channel are required; everything else is optional.
type InboundMessage struct {
	ID        string    `json:"id,omitempty"`
	Content   string    `json:"content"`
	User      string    `json:"user"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Type      string    `json:"type,omitempty"`
}

// Validation errors returned by [InboundMessage.Validate].
var (
	ErrMissingContent = errors.New("inbound message missing content")
	ErrMissingUser    = errors.New("inbound message missing user")
	ErrMissingChannel = errors.New("inbound message missing channel")
)

// Validate checks the required fields. A message that fails validation
// must be rejected before any session is created or mutated.
func (m *InboundMessage) Validate() error {
	if m.Content == "" {
		return ErrMissingContent
	}
	if m.User == "" {
		return ErrMissingUser
	}
	if m.Channel == "" {
		return ErrMissingChannel
	}
	return nil
}

// IsValidation reports whether err is one of the inbound-message
// validation errors. Transports use it to distinguish "log and drop"
// from failures that warrant an error envelope.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingContent) ||
		errors.Is(err, ErrMissingUser) ||
		errors.Is(err, ErrMissingChannel)
}

// Normalize fills in defaults for optional fields: a generated ID and
// the current time. It does not touch required fields.
func (m *InboundMessage) Normalize() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
}

// Outbound is the reply envelope delivered back to the originating
// connection. Type is "response" on success and "error" on failure.
type Outbound struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Response builds a success envelope.
func Response(message, sessionID string) Outbound {
	return Outbound{
		Type:      TypeResponse,
		Message:   message,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// ErrorReply builds an error envelope. The message is user-facing;
// err carries the machine-readable cause.
func ErrorReply(message string, err error) Outbound {
	out := Outbound{
		Type:    TypeError,
		Message: message,
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
