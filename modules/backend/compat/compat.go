// Package compat provides a chat-only backend module for any API that
// implements the OpenAI chat completions interface (Mistral, Groq,
// DeepSeek, Together, vLLM, LiteLLM, etc.) via a configurable base_url.
// It has no thread support; conversations on this backend always run in
// chat mode.
package compat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/core"
)

func init() {
	core.RegisterModule(&Compat{})
}

// Config holds the configuration for an OpenAI-compatible backend.
type Config struct {
	// Name is the registry name for this backend. Required, since several
	// compat instances can coexist behind different names.
	Name string `yaml:"name"`

	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	Model         string            `yaml:"model"`
	ContextWindow int               `yaml:"context_window"`
	MaxTokens     int               `yaml:"max_tokens"`
	Temperature   *float64          `yaml:"temperature"`
	Headers       map[string]string `yaml:"headers"`
	Timeout       time.Duration     `yaml:"timeout"`
}

// defaults sets default values for unset fields.
func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = 8192
	}
	if c.BaseURL != "" {
		c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	}
}

// validate returns an error if required fields are missing.
func (c *Config) validate() error {
	if c.Name == "" {
		return errMissingField("name")
	}
	if c.BaseURL == "" {
		return errMissingField("base_url")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.compat: base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.compat: base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Model == "" {
		return errMissingField("model")
	}
	return nil
}

func errMissingField(field string) error {
	return fmt.Errorf("backend.compat: %s is required", field)
}

// Compat is an OpenAI-compatible chat backend.
type Compat struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (c *Compat) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "backend.compat",
		New: func() core.Module { return &Compat{} },
	}
}

// Configure implements core.Configurable.
func (c *Compat) Configure(node *yaml.Node) error {
	if err := node.Decode(&c.config); err != nil {
		return err
	}
	c.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (c *Compat) Provision(ctx *core.AppContext) error {
	c.logger = ctx.Logger
	c.client = &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: c.config.Timeout,
		},
	}
	return nil
}

// Validate implements core.Validator.
func (c *Compat) Validate() error {
	return c.config.validate()
}

// Name implements backend.Client.
func (c *Compat) Name() string { return c.config.Name }

// ModelName implements backend.Client.
func (c *Compat) ModelName() string { return c.config.Model }

// ContextWindow implements backend.Client.
func (c *Compat) ContextWindow() int { return c.config.ContextWindow }

// Complete implements backend.Client.
func (c *Compat) Complete(ctx context.Context, req backend.CompletionRequest) (*backend.Completion, error) {
	wire := buildRequest(c.config, req)

	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq, req.Credential)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if backend.IsCallerCancel(ctx.Err()) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return nil, mapErrorResponse(resp)
	}

	var wireResp response
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parseResponse(wireResp), nil
}

// HealthCheck implements backend.HealthChecker by probing /models.
func (c *Compat) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/models", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, "")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", backend.ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health check returned HTTP %d", backend.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Compat) setHeaders(req *http.Request, credential string) {
	key := c.config.APIKey
	if credential != "" {
		key = credential
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
}

// Compile-time interface assertions.
var (
	_ core.Module           = (*Compat)(nil)
	_ core.Configurable     = (*Compat)(nil)
	_ core.Provisioner      = (*Compat)(nil)
	_ core.Validator        = (*Compat)(nil)
	_ backend.Client        = (*Compat)(nil)
	_ backend.HealthChecker = (*Compat)(nil)
)
