// Package genai wraps the external text-generation provider behind a small
// chat-style interface and implements the parsing/validation of its
// free-form output into the typed reading payload.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one chat turn sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the external generation collaborator. Implementations must
// honor the context for cancellation and carry their own per-call timeout.
type Provider interface {
	// Invoke sends the message sequence and returns the raw generated text.
	Invoke(ctx context.Context, messages []Message) (string, error)
}

// ErrProviderUnavailable wraps transport failures, non-2xx responses, and
// per-call timeouts from the provider.
var ErrProviderUnavailable = errors.New("generation provider unavailable")

// HTTPProvider talks to an OpenAI-compatible chat-completions endpoint.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewHTTPProvider constructs an HTTPProvider. The timeout is the hard
// per-call budget; exceeding it is a pipeline failure, distinct from the
// advisory time estimate shown to clients.
func NewHTTPProvider(baseURL, apiKey, model string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
		// Per-request deadlines come from the context; the client itself
		// stays unbounded so the budget is in one place.
		httpClient: &http.Client{Timeout: 0},
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke sends one chat-completion call and returns the first choice's text.
func (p *HTTPProvider) Invoke(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{Model: p.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded slice of the body for diagnostics.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrProviderUnavailable, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrProviderUnavailable, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrProviderUnavailable)
	}
	return out.Choices[0].Message.Content, nil
}
