package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/parleyhq/parley/internal/backend"
)

// Thread-mode support via the assistants API. All thread operations run
// on the configured credential; self-pay overrides force chat mode
// upstream, so no credential parameter appears here.

type threadObject struct {
	ID string `json:"id"`
}

type runObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type threadMessageList struct {
	Data []threadMessage `json:"data"`
}

type threadMessage struct {
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

type appendMessageRequest struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type startRunRequest struct {
	AssistantID         string   `json:"assistant_id"`
	Model               string   `json:"model,omitempty"`
	Instructions        string   `json:"instructions,omitempty"`
	MaxCompletionTokens int      `json:"max_completion_tokens,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty"`
}

// CreateThread implements backend.ThreadClient.
func (o *OpenAI) CreateThread(ctx context.Context) (string, error) {
	if o.config.AssistantID == "" {
		return "", backend.ErrThreadUnsupported
	}

	var thread threadObject
	if err := o.doJSON(ctx, http.MethodPost, "/threads", "", struct{}{}, &thread); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// AppendMessage implements backend.ThreadClient.
func (o *OpenAI) AppendMessage(ctx context.Context, threadID, text string, images []string) error {
	body := appendMessageRequest{
		Role:    string(backend.MessageRoleUser),
		Content: messageContent(backend.Message{Content: text, Images: images}),
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := o.doJSON(ctx, http.MethodPost, path, "", body, nil); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// StartRun implements backend.ThreadClient.
func (o *OpenAI) StartRun(ctx context.Context, threadID string, settings backend.Settings) (string, error) {
	if o.config.AssistantID == "" {
		return "", backend.ErrThreadUnsupported
	}

	body := startRunRequest{
		AssistantID:         o.config.AssistantID,
		Model:               settings.Model,
		Instructions:        settings.Instructions,
		MaxCompletionTokens: settings.MaxTokens,
		Temperature:         settings.Temperature,
	}

	var run runObject
	path := "/threads/" + url.PathEscape(threadID) + "/runs"
	if err := o.doJSON(ctx, http.MethodPost, path, "", body, &run); err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return run.ID, nil
}

// PollRun implements backend.ThreadClient.
func (o *OpenAI) PollRun(ctx context.Context, threadID, runID string) (backend.RunStatus, error) {
	var run runObject
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := o.doJSON(ctx, http.MethodGet, path, "", nil, &run); err != nil {
		return "", fmt.Errorf("poll run: %w", err)
	}
	return backend.RunStatus(run.Status), nil
}

// LatestMessage implements backend.ThreadClient. Thread-mode usage is not
// reported per message, so the completion carries zero token counts.
func (o *OpenAI) LatestMessage(ctx context.Context, threadID string) (*backend.Completion, error) {
	var list threadMessageList
	path := "/threads/" + url.PathEscape(threadID) + "/messages?limit=1&order=desc"
	if err := o.doJSON(ctx, http.MethodGet, path, "", nil, &list); err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}
	if len(list.Data) == 0 {
		return nil, fmt.Errorf("%w: thread has no messages", backend.ErrRunFailed)
	}

	msg := list.Data[0]
	if msg.Role != string(backend.MessageRoleAssistant) {
		return nil, fmt.Errorf("%w: newest message is %q, not assistant", backend.ErrRunFailed, msg.Role)
	}

	c := &backend.Completion{Model: o.config.Model}
	for _, block := range msg.Content {
		if block.Type == "text" {
			c.Text += block.Text.Value
		}
	}
	return c, nil
}
