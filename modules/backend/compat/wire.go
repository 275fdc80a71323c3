package compat

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/parleyhq/parley/internal/backend"
)

// Wire types for the OpenAI-compatible chat completions interface.

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Message message `json:"message"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// buildRequest converts a backend.CompletionRequest into the wire form.
// Image references are dropped: compat targets text-only deployments, and
// most of them reject block-structured content outright.
func buildRequest(cfg Config, req backend.CompletionRequest) request {
	messages := make([]message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = message{Role: string(m.Role), Content: m.Content}
	}

	model := cfg.Model
	if req.Settings.Model != "" {
		model = req.Settings.Model
	}
	maxTokens := cfg.MaxTokens
	if req.Settings.MaxTokens > 0 {
		maxTokens = req.Settings.MaxTokens
	}
	temperature := cfg.Temperature
	if req.Settings.Temperature != nil {
		temperature = req.Settings.Temperature
	}

	return request{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// parseResponse converts the wire form into a backend.Completion.
func parseResponse(resp response) *backend.Completion {
	c := &backend.Completion{
		Model: resp.Model,
		Usage: backend.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) > 0 {
		c.Text = resp.Choices[0].Message.Content
	}
	return c
}

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// mapErrorResponse maps HTTP error status codes to backend sentinels.
func mapErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", backend.ErrRateLimit, body)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", backend.ErrCredential, resp.StatusCode, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", backend.ErrUnavailable, resp.StatusCode, body)
	case resp.StatusCode == http.StatusBadRequest && isContextLengthError(body):
		return fmt.Errorf("%w: %s", backend.ErrContextLength, body)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
}

func isContextLengthError(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "context length") ||
		strings.Contains(lower, "maximum context") ||
		strings.Contains(lower, "token limit")
}
