package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChatCompletion_ForwardsPayload(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1",
			"choices": []any{
				map[string]any{"message": map[string]any{"role": "assistant", "content": "hi"}},
			},
			"usage": map[string]any{"total_tokens": 42},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk-test", 5*time.Second)
	resp, err := client.ChatCompletion(context.Background(), map[string]any{
		"model":  "gpt-4o-mini",
		"stream": true,
		"messages": []any{
			map[string]any{"role": "user", "content": "hello"},
		},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPayload["stream"] != false {
		t.Error("stream must be forced off before forwarding")
	}
	if gotPayload["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", gotPayload["model"])
	}
	if got := ExtractAssistantText(resp); got != "hi" {
		t.Errorf("assistant text = %q", got)
	}
	if got := ExtractTotalTokens(resp); got != 42 {
		t.Errorf("total tokens = %d", got)
	}
}

func TestChatCompletion_UpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk-bad", 5*time.Second)
	_, err := client.ChatCompletion(context.Background(), map[string]any{"model": "gpt-4o-mini"})

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", upErr.Status)
	}
	if upErr.Message != "bad api key" {
		t.Errorf("message = %q", upErr.Message)
	}
}

func TestChatCompletion_UnreachableUpstream(t *testing.T) {
	t.Parallel()

	client := NewClient("http://127.0.0.1:1", "sk-test", time.Second)
	_, err := client.ChatCompletion(context.Background(), map[string]any{})

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestPayloadHelpers(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"messages": []any{
			map[string]any{"role": "system", "content": "be helpful"},
			map[string]any{"role": "user", "content": "first"},
			map[string]any{"role": "assistant", "content": "reply"},
			map[string]any{"role": "user", "content": "second"},
		},
	}

	if got := ExtractUserPrompt(payload); got != "second" {
		t.Errorf("ExtractUserPrompt = %q, want most recent user message", got)
	}

	ReplaceUserPrompt(payload, "redacted")
	if got := ExtractUserPrompt(payload); got != "redacted" {
		t.Errorf("after replace, prompt = %q", got)
	}
	// The earlier user message is untouched.
	first := payload["messages"].([]any)[1].(map[string]any)
	if first["content"] != "first" {
		t.Errorf("earlier user message changed: %v", first["content"])
	}

	if got := ExtractUserPrompt(map[string]any{}); got != "" {
		t.Errorf("missing messages should yield empty prompt, got %q", got)
	}

	response := map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": "original"}},
		},
	}
	ReplaceAssistantText(response, "sanitized")
	if got := ExtractAssistantText(response); got != "sanitized" {
		t.Errorf("assistant text = %q", got)
	}

	ReplaceAssistantText(map[string]any{}, "noop")
	if got := ExtractTotalTokens(map[string]any{}); got != 0 {
		t.Errorf("missing usage should yield 0, got %d", got)
	}
}
