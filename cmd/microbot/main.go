// Microbot is a conversational agent daemon.
//
// It receives chat messages over a WebSocket endpoint, a webhook
// endpoint, or an MQTT bridge, drives a tool-call resolution loop
// against a model backend, and persists each conversation turn.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	microbot init [dir]        Initialize a working directory with defaults
//	microbot serve             Start the transport server
//	microbot ask <question>    Ask a single question (for testing)
//	microbot version           Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hankl/microbot/internal/agent"
	"github.com/hankl/microbot/internal/buildinfo"
	"github.com/hankl/microbot/internal/bus"
	"github.com/hankl/microbot/internal/config"
	"github.com/hankl/microbot/internal/llm"
	"github.com/hankl/microbot/internal/memory"
	"github.com/hankl/microbot/internal/mqtt"
	"github.com/hankl/microbot/internal/server"
	"github.com/hankl/microbot/internal/session"
	"github.com/hankl/microbot/internal/skills"
)

// main constructs the OS-level environment and delegates to [run],
// keeping os.Exit and os.Args out of the application logic so the
// full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, and our argument surface
// is small enough that manual parsing is clearer.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "version":
		return printVersion(stdout, outputFmt)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "serve":
		return serve(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: microbot ask <question>")
		}
		return ask(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, `microbot — conversational agent daemon

Usage:
  microbot init [dir]        Initialize a working directory with defaults
  microbot serve             Start the transport server
  microbot ask <question>    Ask a single question (for testing)
  microbot version           Print version and build information

Flags:
  -config <path>   Explicit config file path
  -o <format>      Output format for version: text (default) or json`)
	return nil
}

func printVersion(w io.Writer, format string) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(buildinfo.Info())
	}
	fmt.Fprintln(w, buildinfo.String())
	return nil
}

// loadConfig resolves and loads configuration, falling back to the
// built-in defaults when no file is found.
func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	path, err := config.FindConfig(configPath)
	if err != nil {
		if configPath != "" {
			return nil, err
		}
		logger.Warn("no config file found, using defaults")
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	logger.Info("config loaded", "path", path)
	return cfg, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: config.ReplaceLogLevelNames,
	})), nil
}

// buildAgent wires the orchestrator from configuration. The returned
// cleanup closes the session store.
func buildAgent(cfg *config.Config, logger *slog.Logger) (*agent.Agent, func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := session.NewStore(filepath.Join(cfg.DataDir, "sessions.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}
	sessions := session.NewManager(store, logger)

	catalog := skills.NewCatalog(logger)
	if err := catalog.Load(cfg.SkillsDir); err != nil {
		logger.Warn("skill catalog load failed, starting with empty catalog", "error", err)
	}

	memoryFile := cfg.MemoryFile
	if memoryFile == "" {
		memoryFile = filepath.Join(cfg.DataDir, "memory.md")
	}
	notes := memory.NewNotes(memoryFile, 0)

	dispatcher := skills.NewDispatcher(catalog, skills.DispatcherOptions{
		Shell: skills.ShellOptions{
			Enabled:         cfg.Shell.Enabled,
			WorkingDir:      cfg.Shell.WorkingDir,
			DeniedPatterns:  cfg.Shell.DeniedPatterns,
			AllowedPrefixes: cfg.Shell.AllowedPrefixes,
			Timeout:         time.Duration(cfg.Shell.DefaultTimeoutSec) * time.Second,
		},
		DataQuery: skills.DataQueryOptions{
			AnalyzerCmd: cfg.DataQuery.AnalyzerCmd,
			Timeout:     time.Duration(cfg.DataQuery.TimeoutSec) * time.Second,
		},
		Memory: notes,
	}, logger)

	var client llm.Client
	switch cfg.Models.Provider {
	case "openai":
		client = llm.NewOpenAIClient(cfg.Models.OpenAI.BaseURL, cfg.Models.OpenAI.APIKey, logger)
	default:
		client = llm.NewOllamaClient(cfg.Models.OllamaURL, logger)
	}

	assembler := agent.NewAssembler(cfg.PersonaFile, catalog, notes, logger)
	loop := agent.NewLoop(client, dispatcher, agent.LoopSettings{
		Model:         cfg.Models.Default,
		MaxIterations: cfg.Loop.MaxIterations,
		ModelTimeout:  time.Duration(cfg.Loop.ModelTimeoutSec) * time.Second,
	}, logger)

	a := agent.New(sessions, assembler, loop, logger)
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("session store close", "error", err)
		}
	}
	return a, cleanup, nil
}

// serve runs the transport server (and MQTT bridge when enabled)
// until interrupted.
func serve(ctx context.Context, stdout io.Writer, configPath string) error {
	bootLogger := slog.New(slog.NewTextHandler(stdout, nil))

	cfg, err := loadConfig(configPath, bootLogger)
	if err != nil {
		return err
	}

	logger, err := newLogger(stdout, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting", "build", buildinfo.String())

	a, cleanup, err := buildAgent(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MQTT.Enabled {
		bridge := mqtt.NewBridge(cfg.MQTT, a, logger)
		go func() {
			if err := bridge.Start(ctx); err != nil {
				logger.Error("mqtt bridge failed", "error", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := bridge.Stop(stopCtx); err != nil {
				logger.Warn("mqtt bridge stop", "error", err)
			}
		}()
	}

	srv := server.New(cfg.Listen.Address, cfg.Listen.Port, a, logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("transport server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// ask runs a single question through the orchestrator and prints the
// reply. Useful for smoke-testing a deployment without a client.
func ask(ctx context.Context, stdout io.Writer, configPath, question string) error {
	bootLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg, err := loadConfig(configPath, bootLogger)
	if err != nil {
		return err
	}

	logger, err := newLogger(io.Discard, cfg.LogLevel)
	if err != nil {
		return err
	}

	a, cleanup, err := buildAgent(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := a.HandleMessage(ctx, bus.InboundMessage{
		Content: question,
		User:    "cli",
		Channel: "cli",
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, out.Message)
	return nil
}
