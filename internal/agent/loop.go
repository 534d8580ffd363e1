// Package agent implements the conversational orchestration core:
// context assembly, tool-call parsing, and the model/tool resolution
// loop that turns one inbound message into a final reply.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hankl/microbot/internal/llm"
)

// UnavailableReply is delivered when the configured model is not
// resolvable on the backend. The turn still completes and persists.
const UnavailableReply = "I'm sorry — my language model is currently unavailable, so I can't help right now. Please try again in a little while."

// DefaultMaxIterations caps model/tool round-trips per inbound message.
const DefaultMaxIterations = 10

// Dispatcher executes one named tool invocation and renders the
// outcome as text. Implementations must not panic; failures come back
// as textual results the model can react to.
type Dispatcher interface {
	Execute(ctx context.Context, name string, params map[string]string) string
}

// LoopSettings bounds a Loop.
type LoopSettings struct {
	Model         string
	MaxIterations int           // default DefaultMaxIterations
	ModelTimeout  time.Duration // per model call, default 2m
	ProbeTimeout  time.Duration // availability pre-check, default 10s
}

// Loop is the orchestration state machine. Within one Run, model
// calls and tool executions are strictly sequential; concurrent Runs
// for different sessions are independent.
type Loop struct {
	client   llm.Client
	dispatch Dispatcher
	settings LoopSettings
	logger   *slog.Logger
}

// NewLoop creates an orchestration loop over a model backend and a
// dispatcher.
func NewLoop(client llm.Client, dispatch Dispatcher, settings LoopSettings, logger *slog.Logger) *Loop {
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = DefaultMaxIterations
	}
	if settings.ModelTimeout <= 0 {
		settings.ModelTimeout = 2 * time.Minute
	}
	if settings.ProbeTimeout <= 0 {
		settings.ProbeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		client:   client,
		dispatch: dispatch,
		settings: settings,
		logger:   logger,
	}
}

// Run drives the resolution loop over the turn's message list until
// the model produces a reply with no tool calls, or the iteration cap
// is hit. Hitting the cap is a truncation, not an error: the last
// reply is returned and a warning logged.
//
// The turn's message list is appended to in place; the caller must
// not reuse it across turns.
func (l *Loop) Run(ctx context.Context, turn *Turn) (string, error) {
	// Backend availability pre-check. Only backends exposing the
	// optional ModelChecker capability are probed; probe errors are
	// advisory and never block the turn.
	if checker, ok := l.client.(llm.ModelChecker); ok {
		probeCtx, cancel := context.WithTimeout(ctx, l.settings.ProbeTimeout)
		exists, err := checker.ModelExists(probeCtx, l.settings.Model)
		cancel()
		switch {
		case err != nil:
			l.logger.Warn("model availability check failed, proceeding",
				"model", l.settings.Model, "error", err)
		case !exists:
			l.logger.Warn("configured model not available on backend",
				"model", l.settings.Model)
			return UnavailableReply, nil
		}
	}

	var lastReply string
	for iter := 0; iter < l.settings.MaxIterations; iter++ {
		callCtx, cancel := context.WithTimeout(ctx, l.settings.ModelTimeout)
		resp, err := l.client.Chat(callCtx, l.settings.Model, turn.Messages)
		cancel()
		if err != nil {
			return "", fmt.Errorf("model call (iteration %d): %w", iter, err)
		}

		reply := resp.Message.Content
		lastReply = reply
		l.logger.Debug("model reply",
			"iteration", iter,
			"model", l.settings.Model,
			"chars", len(reply),
			"preview", truncate(reply, 120),
		)

		calls := ParseToolCalls(reply, l.logger)
		if len(calls) == 0 {
			return reply, nil
		}

		// Feed the model's own reply back as an assistant entry, then
		// each tool result as a user entry. The user role is deliberate:
		// some backends reject roles outside {user, assistant, system}
		// and others ignore system entries mid-conversation.
		turn.Messages = append(turn.Messages, llm.Message{Role: "assistant", Content: reply})
		for _, call := range calls {
			result := l.dispatch.Execute(ctx, call.Name, call.Params)
			l.logger.Info("tool executed",
				"iteration", iter,
				"skill", call.Name,
				"params", truncate(fmt.Sprintf("%v", call.Params), 200),
				"result_preview", truncate(result, 120),
			)
			turn.Messages = append(turn.Messages, llm.Message{
				Role:    "user",
				Content: fmt.Sprintf("Tool %s result:\n%s", call.Name, result),
			})
		}
	}

	l.logger.Warn("iteration cap reached, returning last reply",
		"cap", l.settings.MaxIterations)
	return lastReply, nil
}

// truncate shortens s for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
