package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hankl/microbot/internal/bus"
	"github.com/hankl/microbot/internal/session"
)

// Agent is the top-level orchestrator: it owns the session map and
// ties validation, context assembly, the resolution loop, and
// persistence together for every transport.
type Agent struct {
	sessions  *session.Manager
	assembler *Assembler
	loop      *Loop
	logger    *slog.Logger
}

// New creates the orchestrator.
func New(sessions *session.Manager, assembler *Assembler, loop *Loop, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		sessions:  sessions,
		assembler: assembler,
		loop:      loop,
		logger:    logger,
	}
}

// HandleMessage processes one inbound message end to end and returns
// the reply envelope for the originating connection.
//
// A validation failure is returned before any session is created or
// mutated; transports log it and emit nothing. The persisted session
// receives exactly one user entry (the inbound message) and one
// assistant entry (the final reply); intermediate tool round-trips
// live only in the transient turn context.
func (a *Agent) HandleMessage(ctx context.Context, msg bus.InboundMessage) (bus.Outbound, error) {
	if err := msg.Validate(); err != nil {
		return bus.Outbound{}, err
	}
	msg.Normalize()

	sess := a.sessions.GetOrCreate(ctx, msg.Channel, msg.User)

	// Build the turn context before appending the inbound message, so
	// history and the current message appear exactly once each.
	turn := a.assembler.Build(ctx, sess, msg)

	if err := sess.Append(ctx, "user", msg.Content); err != nil {
		a.logger.Error("inbound turn not persisted", "session", sess.ID(), "error", err)
	}

	reply, err := a.loop.Run(ctx, turn)
	if err != nil {
		return bus.Outbound{}, fmt.Errorf("orchestration: %w", err)
	}

	if err := sess.Append(ctx, "assistant", reply); err != nil {
		a.logger.Error("assistant turn not persisted", "session", sess.ID(), "error", err)
	}

	a.logger.Info("message handled",
		"id", msg.ID,
		"channel", msg.Channel,
		"user", msg.User,
		"session", sess.ID(),
		"reply_chars", len(reply),
	)
	return bus.Response(reply, sess.ID()), nil
}
