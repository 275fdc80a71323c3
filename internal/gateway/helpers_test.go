package gateway

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/backend/backendtest"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/session"
	"github.com/parleyhq/parley/pkg/chat"
)

// fakeEngine is a stub MessageHandler with a scripted response.
type fakeEngine struct {
	respond func(req *chat.Request) *chat.Response
}

func (e *fakeEngine) HandleMessage(_ context.Context, req *chat.Request) *chat.Response {
	if e.respond != nil {
		return e.respond(req)
	}
	return &chat.Response{ID: req.ID, Success: true, Status: chat.StatusOK, Text: "hello"}
}

// newTestRegistry builds a backend registry with one healthy mock.
func newTestRegistry(t *testing.T) *backend.Registry {
	t.Helper()
	reg := backend.NewRegistry()
	if err := reg.Register(&backendtest.MockClient{NameValue: "mock"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

// newTestGateway wires a gateway with a fake engine and in-memory
// collaborators, without going through module loading.
func newTestGateway(t *testing.T, addr string, auth AuthConfig) *Gateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	appCtx := core.NewAppContext(logger, t.TempDir())

	appCtx.RegisterService("engine", &fakeEngine{})
	appCtx.RegisterService("sessions", session.NewStore(session.Config{}))
	appCtx.RegisterService("backends", newTestRegistry(t))

	g := &Gateway{}
	g.config = Config{Bind: addr, Auth: auth, ShutdownTimeout: 2 * time.Second}
	g.config.defaults()
	g.appCtx = appCtx
	g.logger = logger
	g.counters = &Counters{}
	return g
}

// freeAddr returns a free TCP address on localhost.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

// doReq makes a request with optional bearer token and body.
func doReq(t *testing.T, method, url, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// doGet makes a GET request with context.
func doGet(t *testing.T, url string) *http.Response {
	t.Helper()
	return doReq(t, http.MethodGet, url, "", nil)
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}
