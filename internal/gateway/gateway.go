// Package gateway provides the HTTP surface of the engine: the message
// endpoint, health and status reporting, Prometheus metrics, the relay
// WebSocket mount, and admin endpoints. It binds to loopback by default
// and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/conversation"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/session"
	"github.com/parleyhq/parley/pkg/chat"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// MessageHandler processes one inbound chat request. Satisfied by the
// orchestrator engine; narrowed here so tests can stub it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, req *chat.Request) *chat.Response
}

// ConversationEnder ends the active durable conversation for a
// (user, channel) pair. Satisfied by the conversation manager.
type ConversationEnder interface {
	EndActive(ctx context.Context, userID, channelID string) (*conversation.Conversation, error)
}

// Gateway is the HTTP gateway module. It is a leaf module — nothing
// imports it; collaborators arrive through the service registry.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	counters  *Counters
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	engine        MessageHandler
	sessions      *session.Store
	backends      *backend.Registry
	conversations ConversationEnder
	limiter       *security.RateLimiter
	prom          *metrics.Set
	tracer        trace.Tracer
	relayHandler  http.Handler
	reloadFn      func(context.Context) error
	auditDropped  func() int64
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.counters = &Counters{}

	ctx.RegisterService("gateway.counters", g.counters)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the
// service registry (lazy binding) and starts the HTTP server. The
// engine is required; everything else degrades gracefully when absent.
func (g *Gateway) Start() error {
	if svc, ok := g.appCtx.Service("engine"); ok {
		if h, ok := svc.(MessageHandler); ok {
			g.engine = h
		}
	}
	if g.engine == nil {
		return errors.New("gateway: no engine service registered")
	}
	if svc, ok := g.appCtx.Service("sessions"); ok {
		if store, ok := svc.(*session.Store); ok {
			g.sessions = store
		}
	}
	if svc, ok := g.appCtx.Service("backends"); ok {
		if reg, ok := svc.(*backend.Registry); ok {
			g.backends = reg
		}
	}
	if svc, ok := g.appCtx.Service("conversations"); ok {
		if ce, ok := svc.(ConversationEnder); ok {
			g.conversations = ce
		}
	}
	if svc, ok := g.appCtx.Service("ratelimit"); ok {
		if rl, ok := svc.(*security.RateLimiter); ok {
			g.limiter = rl
		}
	}
	if svc, ok := g.appCtx.Service("metrics"); ok {
		if m, ok := svc.(*metrics.Set); ok {
			g.prom = m
		}
	}
	if svc, ok := g.appCtx.Service("tracer"); ok {
		if tr, ok := svc.(trace.Tracer); ok {
			g.tracer = tr
		}
	}
	if svc, ok := g.appCtx.Service("relay.handler"); ok {
		if h, ok := svc.(http.Handler); ok {
			g.relayHandler = h
		}
	}
	if svc, ok := g.appCtx.Service("config.reload"); ok {
		if fn, ok := svc.(func(context.Context) error); ok {
			g.reloadFn = fn
		}
	}
	if svc, ok := g.appCtx.Service("audit.dropped"); ok {
		if fn, ok := svc.(func() int64); ok {
			g.auditDropped = fn
		}
	}

	g.startedAt = time.Now()

	mux := g.buildRouter()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      mux,
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
