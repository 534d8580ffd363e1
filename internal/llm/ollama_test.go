package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ollamaTestServer(t *testing.T) (*httptest.Server, *[]Message) {
	t.Helper()
	var lastMessages []Message

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
			Stream   bool      `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Stream {
			http.Error(w, "streaming not supported in test", http.StatusBadRequest)
			return
		}
		lastMessages = req.Messages

		json.NewEncoder(w).Encode(map[string]any{
			"model":             req.Model,
			"created_at":        "2025-03-01T10:00:00Z",
			"message":           Message{Role: "assistant", Content: "pong"},
			"done":              true,
			"prompt_eval_count": 12,
			"eval_count":        3,
		})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "qwen3:4b"},
				{"name": "llama3:8b"},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &lastMessages
}

func TestOllamaChat(t *testing.T) {
	srv, lastMessages := ollamaTestServer(t)
	c := NewOllamaClient(srv.URL, discardLogger())

	sent := []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "ping"},
	}
	resp, err := c.Chat(context.Background(), "qwen3:4b", sent)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Message.Content != "pong" {
		t.Errorf("Content = %q, want pong", resp.Message.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 12/3", resp.InputTokens, resp.OutputTokens)
	}
	if resp.CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}
	if !reflect.DeepEqual(*lastMessages, sent) {
		t.Errorf("server saw %v, want %v", *lastMessages, sent)
	}
}

func TestOllamaChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewOllamaClient(srv.URL, discardLogger())
	_, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("Chat() error = nil, want API error")
	}
}

func TestOllamaPing(t *testing.T) {
	srv, _ := ollamaTestServer(t)
	c := NewOllamaClient(srv.URL, discardLogger())

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestOllamaListModels(t *testing.T) {
	srv, _ := ollamaTestServer(t)
	c := NewOllamaClient(srv.URL, discardLogger())

	names, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error: %v", err)
	}
	want := []string{"qwen3:4b", "llama3:8b"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("ListModels() = %v, want %v", names, want)
	}
}

func TestOllamaModelExists(t *testing.T) {
	srv, _ := ollamaTestServer(t)
	c := NewOllamaClient(srv.URL, discardLogger())
	ctx := context.Background()

	exists, err := c.ModelExists(ctx, "qwen3:4b")
	if err != nil {
		t.Fatalf("ModelExists() error: %v", err)
	}
	if !exists {
		t.Error("ModelExists(qwen3:4b) = false, want true")
	}

	exists, err = c.ModelExists(ctx, "ghost:1b")
	if err != nil {
		t.Fatalf("ModelExists() error: %v", err)
	}
	if exists {
		t.Error("ModelExists(ghost:1b) = true, want false")
	}
}

// The loop's availability pre-check depends on this assertion holding.
var _ ModelChecker = (*OllamaClient)(nil)
var _ Client = (*OllamaClient)(nil)
var _ Client = (*OpenAIClient)(nil)
