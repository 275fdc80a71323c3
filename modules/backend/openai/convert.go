package openai

import (
	"github.com/parleyhq/parley/internal/backend"
)

// OpenAI wire types for JSON serialization.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	// Content is a string for plain text, or a block list when the
	// message carries images.
	Content any `json:"content"`
}

type contentBlock struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   usage        `json:"usage"`
}

type chatChoice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// buildChatRequest converts a backend.CompletionRequest into the wire form.
// Request settings override config defaults field by field.
func buildChatRequest(cfg Config, req backend.CompletionRequest) chatRequest {
	messages := make([]chatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chatMessage{
			Role:    string(m.Role),
			Content: messageContent(m),
		}
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

	return chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// messageContent returns a plain string for text-only messages, or a
// block list when images are attached.
func messageContent(m backend.Message) any {
	if len(m.Images) == 0 {
		return m.Content
	}
	blocks := make([]contentBlock, 0, len(m.Images)+1)
	if m.Content != "" {
		blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
	}
	for _, img := range m.Images {
		blocks = append(blocks, contentBlock{Type: "image_url", ImageURL: &imageURL{URL: img}})
	}
	return blocks
}

// parseChatResponse converts the wire form into a backend.Completion.
func parseChatResponse(resp chatResponse) *backend.Completion {
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
