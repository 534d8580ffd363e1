package agent

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/hankl/microbot/internal/bus"
	"github.com/hankl/microbot/internal/llm"
	"github.com/hankl/microbot/internal/prompts"
	"github.com/hankl/microbot/internal/session"
	"github.com/hankl/microbot/internal/skills"
)

// MemorySource supplies the opaque memory excerpt injected into each
// turn's context. The store behind it is an external collaborator.
type MemorySource interface {
	Excerpt(ctx context.Context) (string, error)
}

// Turn is the transient model-facing context for one inbound message.
// It is built fresh per turn; only the loop appends to Messages after
// construction, and nothing in it is persisted.
type Turn struct {
	System   string
	Messages []llm.Message
}

// Assembler builds the model-facing context for a turn from the
// identity prompt, memory excerpt, skill summary, and session history.
// Missing optional inputs degrade to defaults with a log line; Build
// never fails.
type Assembler struct {
	personaFile string
	catalog     *skills.Catalog
	memory      MemorySource
	logger      *slog.Logger
}

// NewAssembler creates a context assembler. personaFile and memory
// may be empty/nil; the hard-coded identity and an empty excerpt are
// used instead.
func NewAssembler(personaFile string, catalog *skills.Catalog, memory MemorySource, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		personaFile: personaFile,
		catalog:     catalog,
		memory:      memory,
		logger:      logger,
	}
}

// Build assembles the turn context: system prompt (identity + memory +
// skill summary), prior session history, and the inbound message as
// the final user entry. The inbound message must not yet have been
// appended to the session.
func (a *Assembler) Build(ctx context.Context, sess *session.Session, inbound bus.InboundMessage) *Turn {
	identity := prompts.BaseIdentity()
	if a.personaFile != "" {
		data, err := os.ReadFile(a.personaFile)
		if err != nil {
			a.logger.Warn("persona file unavailable, using default identity",
				"file", a.personaFile, "error", err)
		} else {
			identity = strings.TrimSpace(string(data))
		}
	}

	var excerpt string
	if a.memory != nil {
		e, err := a.memory.Excerpt(ctx)
		if err != nil {
			a.logger.Warn("memory excerpt unavailable", "error", err)
		} else {
			excerpt = e
		}
	}

	var summary string
	if a.catalog != nil {
		summary = a.catalog.Summarize()
	}

	system := prompts.Compose(identity, excerpt, summary)

	history := sess.History()
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: inbound.Content})

	return &Turn{System: system, Messages: messages}
}
