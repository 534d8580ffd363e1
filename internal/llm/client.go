// Package llm provides model backend client implementations.
package llm

import (
	"context"
	"time"
)

// Message represents a chat message for the model backend.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatResponse is the unified response from any model backend.
// Wire format conversion happens at provider boundaries
// (ollama.go, openai.go), never in the orchestration loop.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message

	// Token usage (provider-neutral, zero when unreported)
	InputTokens  int
	OutputTokens int
}

// Client is the interface every model backend must implement.
type Client interface {
	// Chat sends a chat completion request and returns one reply.
	Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error)

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error
}

// ModelChecker is an optional capability: backends that can enumerate
// their models implement it so callers can verify a model exists before
// starting work. Callers probe with a type assertion and treat absence
// of the interface as "assume available".
type ModelChecker interface {
	ModelExists(ctx context.Context, model string) (bool, error)
}
