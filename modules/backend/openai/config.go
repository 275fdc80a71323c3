package openai

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// knownContextWindows maps model prefixes to context window sizes, used
// when context_window is not configured explicitly.
var knownContextWindows = map[string]int{
	"gpt-4o":        128000,
	"gpt-4-turbo":   128000,
	"gpt-4":         8192,
	"gpt-3.5-turbo": 16385,
	"o1":            200000,
	"o3":            200000,
}

// Config holds the configuration for the OpenAI backend.
type Config struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	ContextWindow int           `yaml:"context_window"`
	MaxTokens     int           `yaml:"max_tokens"`
	Temperature   *float64      `yaml:"temperature"`
	Timeout       time.Duration `yaml:"timeout"`

	// AssistantID enables thread mode. Empty means chat-only.
	AssistantID string `yaml:"assistant_id"`
}

// defaults sets default values for unset fields.
func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = lookupContextWindow(c.Model)
	}
}

// lookupContextWindow resolves a window size by longest model prefix,
// falling back to a conservative default.
func lookupContextWindow(model string) int {
	best, bestLen := 0, 0
	for prefix, window := range knownContextWindows {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = window, len(prefix)
		}
	}
	if best == 0 {
		return 16385
	}
	return best
}

// validate returns an error if required fields are missing.
func (c *Config) validate() error {
	if c.APIKey == "" {
		return errMissingField("api_key")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.openai: base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.openai: base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("backend.openai: context_window must not be negative")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("backend.openai: max_tokens must not be negative")
	}
	return nil
}

// errMissingField returns a validation error for a missing required field.
func errMissingField(field string) error {
	return fmt.Errorf("backend.openai: %s is required", field)
}
