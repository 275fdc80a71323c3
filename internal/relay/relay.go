// Package relay accepts long-lived WebSocket connections from platform
// connectors and feeds their messages through the engine via a bounded
// inbox and a fixed worker pool. Responses travel back on the same
// connection, correlated by envelope ID.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/pkg/chat"
)

func init() {
	core.RegisterModule(&Relay{})
}

const helloReadTimeout = 10 * time.Second

// Relay errors.
var (
	ErrInvalidToken = errors.New("relay: invalid token")
	ErrMaxClients   = errors.New("relay: maximum number of clients reached")
)

// MessageHandler processes one inbound chat request. Satisfied by the
// orchestrator engine.
type MessageHandler interface {
	HandleMessage(ctx context.Context, req *chat.Request) *chat.Response
}

// Config holds YAML configuration for the relay module.
type Config struct {
	// Tokens authenticate connecting platform connectors.
	Tokens []string `yaml:"tokens"`

	// MaxClients caps concurrent connections.
	MaxClients int `yaml:"max_clients"`

	// Workers sets the handler pool size; InboxSize bounds the queue
	// between the read loops and the workers.
	Workers   int `yaml:"workers"`
	InboxSize int `yaml:"inbox_size"`

	// WriteTimeout bounds each outbound frame write.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.MaxClients <= 0 {
		c.MaxClients = 64
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkerCount
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Relay is the WebSocket relay module.
type Relay struct {
	config Config
	appCtx *core.AppContext
	logger *slog.Logger
	store  *ClientStore
	tokens map[string]struct{}

	engine MessageHandler
	prom   *metrics.Set

	inbox  chan envelope
	pool   *WorkerPool
	cancel context.CancelFunc
}

// ModuleInfo implements core.Module.
func (r *Relay) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "relay.ws",
		New: func() core.Module { return &Relay{} },
	}
}

// Configure implements core.Configurable.
func (r *Relay) Configure(node *yaml.Node) error {
	if err := node.Decode(&r.config); err != nil {
		return err
	}
	r.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (r *Relay) Provision(ctx *core.AppContext) error {
	r.appCtx = ctx
	r.logger = ctx.Logger
	r.store = NewClientStore()

	r.tokens = make(map[string]struct{}, len(r.config.Tokens))
	for _, t := range r.config.Tokens {
		r.tokens[t] = struct{}{}
	}

	ctx.RegisterService("relay.store", r.store)
	ctx.RegisterService("relay.handler", http.HandlerFunc(r.handleWebSocket))

	return nil
}

// Validate implements core.Validator.
func (r *Relay) Validate() error {
	if len(r.tokens) == 0 {
		return errors.New("relay: at least one token is required")
	}
	return nil
}

// Start implements core.Starter. The engine must already be registered;
// wiring orders module startup so the relay comes last.
func (r *Relay) Start() error {
	if svc, ok := r.appCtx.Service("engine"); ok {
		if h, ok := svc.(MessageHandler); ok {
			r.engine = h
		}
	}
	if r.engine == nil {
		return errors.New("relay: no engine service registered")
	}
	if svc, ok := r.appCtx.Service("metrics"); ok {
		if m, ok := svc.(*metrics.Set); ok {
			r.prom = m
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.inbox = make(chan envelope, r.config.InboxSize)
	r.pool = NewWorkerPool(r.config.Workers)
	r.pool.Start(ctx, r.inbox, r.process)

	r.logger.Info("relay started",
		"workers", r.config.Workers,
		"inbox_size", r.config.InboxSize,
		"max_clients", r.config.MaxClients,
	)
	return nil
}

// Stop implements core.Stopper. Closes the inbox, waits for in-flight
// work, then drops all connections.
func (r *Relay) Stop(_ context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.inbox != nil {
		close(r.inbox)
		r.pool.Wait()
	}

	r.store.Range(func(_ string, c *Client) bool {
		c.close(websocket.StatusGoingAway, "server shutting down")
		return true
	})

	r.logger.Info("relay stopped")
	return nil
}

// handleWebSocket runs the full connection lifecycle: hello -> read loop.
func (r *Relay) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		r.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	client := &Client{
		ConnectedAt: time.Now(),
		lastSeenAt:  time.Now(),
		conn:        conn,
	}

	if err := r.handleHello(req.Context(), conn, client); err != nil {
		r.logger.Warn("relay handshake failed", "error", err)
		return
	}

	r.logger.Info("relay client connected",
		"client_id", client.ID,
		"name", client.Name,
		"platform", client.Platform,
	)

	r.readLoop(req.Context(), conn, client)

	r.store.Remove(client.ID)
	r.logger.Info("relay client disconnected", "client_id", client.ID)
}

// handleHello reads and validates the authentication frame.
func (r *Relay) handleHello(ctx context.Context, conn *websocket.Conn, client *Client) error {
	helloCtx, cancel := context.WithTimeout(ctx, helloReadTimeout)
	defer cancel()

	_, data, err := conn.Read(helloCtx)
	if err != nil {
		return errors.New("relay: reading hello: " + err.Error())
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.sendError(ctx, client, "", "invalid message format")
		return errors.New("relay: invalid hello envelope")
	}
	if env.Type != MsgHello {
		r.sendError(ctx, client, env.ID, "expected hello")
		return errors.New("relay: unexpected message type " + string(env.Type))
	}

	var hello HelloRequest
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		r.sendError(ctx, client, env.ID, "invalid hello payload")
		return errors.New("relay: invalid hello payload")
	}

	if _, ok := r.tokens[hello.Token]; !ok {
		r.sendHelloAck(ctx, client, env.ID, HelloAck{Accepted: false, Reason: "invalid token"})
		return ErrInvalidToken
	}

	client.ID = uuid.NewString()
	client.Name = hello.ClientName
	client.Platform = hello.Platform

	if !r.store.AddIfUnder(client, r.config.MaxClients) {
		r.sendHelloAck(ctx, client, env.ID, HelloAck{Accepted: false, Reason: "maximum number of clients reached"})
		return ErrMaxClients
	}

	r.sendHelloAck(ctx, client, env.ID, HelloAck{Accepted: true, ClientID: client.ID})
	return nil
}

// readLoop consumes frames until the connection drops.
func (r *Relay) readLoop(ctx context.Context, conn *websocket.Conn, client *Client) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			r.logger.Warn("invalid frame from client", "client_id", client.ID, "error", err)
			continue
		}

		client.touch()

		switch env.Type {
		case MsgPing:
			r.sendEnvelope(ctx, client, Envelope{Type: MsgPong, ID: env.ID, Timestamp: time.Now()})

		case MsgMessage:
			var req chat.Request
			if err := json.Unmarshal(env.Payload, &req); err != nil {
				r.sendError(ctx, client, env.ID, "invalid message payload")
				continue
			}
			if req.ID == "" {
				req.ID = env.ID
			}
			if req.ID == "" {
				req.ID = uuid.NewString()
			}
			if req.Timestamp.IsZero() {
				req.Timestamp = time.Now()
			}
			if !r.enqueue(envelope{client: client, corrID: env.ID, req: &req}) {
				r.sendError(ctx, client, env.ID, "server busy, try again")
			}

		default:
			r.logger.Warn("unexpected message type in read loop",
				"client_id", client.ID,
				"type", env.Type,
			)
		}
	}
}

// enqueue submits work without blocking the read loop. A full inbox
// sheds load instead of stalling every client on the connection.
func (r *Relay) enqueue(env envelope) bool {
	select {
	case r.inbox <- env:
		return true
	default:
		if r.prom != nil {
			r.prom.ObserveRelayDrop()
		}
		r.logger.Warn("relay inbox full, dropping message", "client_id", env.client.ID)
		return false
	}
}

// process runs one message through the engine and writes the correlated
// response.
func (r *Relay) process(ctx context.Context, env envelope) {
	resp := r.engine.HandleMessage(ctx, env.req)

	payload, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error("marshal response failed", "error", err)
		return
	}
	r.sendEnvelope(ctx, env.client, Envelope{
		Type:      MsgResponse,
		ID:        env.corrID,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// sendEnvelope writes one envelope, logging failures.
func (r *Relay) sendEnvelope(ctx context.Context, client *Client, env Envelope) {
	if err := client.send(ctx, env, r.config.WriteTimeout); err != nil {
		r.logger.Warn("write envelope failed", "client_id", client.ID, "error", err)
	}
}

func (r *Relay) sendHelloAck(ctx context.Context, client *Client, id string, ack HelloAck) {
	payload, _ := json.Marshal(ack)
	r.sendEnvelope(ctx, client, Envelope{
		Type:      MsgHelloAck,
		ID:        id,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func (r *Relay) sendError(ctx context.Context, client *Client, id, message string) {
	payload, _ := json.Marshal(ErrorPayload{Message: message})
	r.sendEnvelope(ctx, client, Envelope{
		Type:      MsgError,
		ID:        id,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}
