// Package server exposes microbot over HTTP: a chat-platform webhook
// endpoint and a WebSocket endpoint for interactive clients. Both
// normalize into bus types and hand off to the orchestrator; neither
// knows anything about models or skills.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hankl/microbot/internal/bus"
)

// Handler is the orchestrator surface the transports need.
type Handler interface {
	HandleMessage(ctx context.Context, msg bus.InboundMessage) (bus.Outbound, error)
}

// Server is the HTTP transport server.
type Server struct {
	address string
	port    int
	agent   Handler
	logger  *slog.Logger

	baseCtx    context.Context
	httpServer *http.Server
}

// New creates the transport server.
func New(address string, port int, agent Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		agent:   agent,
		logger:  logger,
	}
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown", "error", err)
		}
	}()

	s.logger.Info("transport server listening", "address", s.address, "port", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

// handleWebhook accepts one inbound message per POST and replies with
// the outcome envelope in the response body.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg bus.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	out, err := s.handle(r.Context(), msg)
	if err != nil {
		// Validation failures get a status code but no reply envelope:
		// no session was created and nothing should look like a turn.
		s.logger.Warn("rejected invalid inbound message", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, out, s.logger)
}

// handle runs the orchestrator inside the outer defensive boundary:
// validation errors propagate, everything else degrades to an error
// envelope so no failure escapes to the transport as a crash.
func (s *Server) handle(ctx context.Context, msg bus.InboundMessage) (out bus.Outbound, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling message", "panic", r)
			out = bus.ErrorReply("Something went wrong while handling your message.", fmt.Errorf("panic: %v", r))
			err = nil
		}
	}()

	out, handleErr := s.agent.HandleMessage(ctx, msg)
	if handleErr != nil {
		if bus.IsValidation(handleErr) {
			return bus.Outbound{}, handleErr
		}
		s.logger.Error("message handling failed", "error", handleErr)
		return bus.ErrorReply("Something went wrong while handling your message.", handleErr), nil
	}
	return out, nil
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}
