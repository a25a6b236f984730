// Package openai provides the outbound client for OpenAI-compatible
// chat completion backends, plus helpers for reading and rewriting
// chat completion payloads.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultMaxResponseBytes bounds upstream response bodies.
const defaultMaxResponseBytes = 4 * 1024 * 1024

// UpstreamError is returned when the upstream responds with a non-2xx
// status or an unusable body.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream error: %s", e.Message)
}

// Client forwards chat completion payloads to an OpenAI-compatible API.
// Payloads are passed through as-is except that streaming is disabled:
// responses are scanned whole before release.
type Client struct {
	baseURL          string
	apiKey           string
	client           *http.Client
	maxResponseBytes int64
}

// NewClient creates an upstream client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		maxResponseBytes: defaultMaxResponseBytes,
		client:           &http.Client{Timeout: timeout},
	}
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ChatCompletion forwards the payload to POST /v1/chat/completions and
// returns the decoded response. The payload's stream flag is forced off
// before forwarding.
func (c *Client) ChatCompletion(ctx context.Context, payload map[string]any) (map[string]any, error) {
	if _, ok := payload["stream"]; ok {
		payload["stream"] = false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.maxResponseBytes+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: "failed to read response body: " + err.Error()}
	}
	if int64(len(respBody)) > c.maxResponseBytes {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: fmt.Sprintf("response body exceeded limit (%d bytes)", c.maxResponseBytes)}
	}

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(respBody))
		var errBody errorResponse
		if err := json.Unmarshal(respBody, &errBody); err == nil && errBody.Error.Message != "" {
			msg = errBody.Error.Message
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Message: msg}
	}

	var decoded map[string]any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: "failed to decode response body: " + err.Error()}
	}
	return decoded, nil
}
