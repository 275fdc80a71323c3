// Package mcp implements a knowledge source backed by an MCP server over
// streamable HTTP. The server exposes a search tool; snippets come back
// as text content blocks and feed the prompt builder's context assembly.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/knowledge"
)

func init() {
	core.RegisterModule(&Module{})
}

// Config holds the MCP knowledge module configuration.
type Config struct {
	// Endpoint is the MCP server's streamable HTTP URL.
	Endpoint string `yaml:"endpoint"`

	// Tool is the search tool name on the server. Defaults to "search".
	Tool string `yaml:"tool"`

	// Timeout bounds each tool call.
	Timeout time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.Tool == "" {
		c.Tool = "search"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("knowledge.mcp: endpoint is required")
	}
	return nil
}

// Module is the MCP-backed knowledge source.
type Module struct {
	config Config
	client *mcpclient.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "knowledge.mcp",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("knowledge.mcp: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger

	c, err := mcpclient.NewStreamableHttpClient(m.config.Endpoint)
	if err != nil {
		return fmt.Errorf("knowledge.mcp: create client: %w", err)
	}
	m.client = c

	ctx.RegisterService("knowledge", m)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter: connects and runs the MCP handshake.
func (m *Module) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	defer cancel()

	if err := m.client.Start(ctx); err != nil {
		return fmt.Errorf("knowledge.mcp: start transport: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "parley",
		Version: "1.0.0",
	}
	if _, err := m.client.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("knowledge.mcp: initialize: %w", err)
	}

	m.logger.Info("mcp knowledge source connected",
		"endpoint", m.config.Endpoint,
		"tool", m.config.Tool,
	)
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Search implements knowledge.Source by calling the configured tool.
func (m *Module) Search(ctx context.Context, category, query string, limit int) ([]string, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = m.config.Tool
	req.Params.Arguments = map[string]any{
		"category": category,
		"query":    query,
		"limit":    limit,
	}

	result, err := m.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("knowledge.mcp: call %s: %w", m.config.Tool, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("knowledge.mcp: %s returned an error result", m.config.Tool)
	}

	return extractTexts(result.Content), nil
}

// extractTexts collects text content blocks, skipping other kinds.
func extractTexts(content []mcp.Content) []string {
	var texts []string
	for _, c := range content {
		if tc, ok := mcp.AsTextContent(c); ok && tc.Text != "" {
			texts = append(texts, tc.Text)
		}
	}
	return texts
}

// Compile-time interface guards.
var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
	_ knowledge.Source  = (*Module)(nil)
)
