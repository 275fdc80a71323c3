// Package openai provides the OpenAI backend module. It implements both
// chat-mode completions and thread mode via the assistants API, so it can
// serve either side of the engine's thread-to-chat fallback.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/core"
)

func init() {
	core.RegisterModule(&OpenAI{})
}

// maxResponseBodySize caps how much of any response body is read.
const maxResponseBodySize = 10 << 20

// OpenAI is the OpenAI backend.
type OpenAI struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (o *OpenAI) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "backend.openai",
		New: func() core.Module { return &OpenAI{} },
	}
}

// Configure implements core.Configurable.
func (o *OpenAI) Configure(node *yaml.Node) error {
	if err := node.Decode(&o.config); err != nil {
		return err
	}
	o.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (o *OpenAI) Provision(ctx *core.AppContext) error {
	o.logger = ctx.Logger
	// Response-header timeout instead of a global client timeout: thread
	// polling issues many short requests under one caller context, and the
	// context already bounds the whole call.
	o.client = &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: o.config.Timeout,
		},
	}
	return nil
}

// Validate implements core.Validator.
func (o *OpenAI) Validate() error {
	return o.config.validate()
}

// Name implements backend.Client.
func (o *OpenAI) Name() string { return "openai" }

// ModelName implements backend.Client.
func (o *OpenAI) ModelName() string { return o.config.Model }

// ContextWindow implements backend.Client.
func (o *OpenAI) ContextWindow() int { return o.config.ContextWindow }

// Complete implements backend.Client. A non-empty req.Credential replaces
// the configured API key for this call only.
func (o *OpenAI) Complete(ctx context.Context, req backend.CompletionRequest) (*backend.Completion, error) {
	wire := buildChatRequest(o.config, req)

	var resp chatResponse
	if err := o.doJSON(ctx, http.MethodPost, "/chat/completions", req.Credential, wire, &resp); err != nil {
		return nil, err
	}
	return parseChatResponse(resp), nil
}

// HealthCheck implements backend.HealthChecker by probing /models.
func (o *OpenAI) HealthCheck(ctx context.Context) error {
	resp, err := o.do(ctx, http.MethodGet, "/models", "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health check returned HTTP %d", backend.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// do executes one request against the configured base URL. credential
// overrides the configured key when non-empty.
func (o *OpenAI) do(ctx context.Context, method, path, credential string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	key := o.config.APIKey
	if credential != "" {
		key = credential
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := o.client.Do(req)
	if err != nil {
		if backend.IsCallerCancel(ctx.Err()) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
	}
	return resp, nil
}

// doJSON executes a request and decodes a 2xx body into out. Error
// statuses are mapped to backend sentinels.
func (o *OpenAI) doJSON(ctx context.Context, method, path, credential string, body, out any) error {
	resp, err := o.do(ctx, method, path, credential, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapErrorResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Compile-time interface assertions.
var (
	_ core.Module           = (*OpenAI)(nil)
	_ core.Configurable     = (*OpenAI)(nil)
	_ core.Provisioner      = (*OpenAI)(nil)
	_ core.Validator        = (*OpenAI)(nil)
	_ backend.Client        = (*OpenAI)(nil)
	_ backend.ThreadClient  = (*OpenAI)(nil)
	_ backend.HealthChecker = (*OpenAI)(nil)
)
