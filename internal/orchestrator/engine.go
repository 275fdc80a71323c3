// Package orchestrator composes the full conversation pipeline for one
// inbound message: validation, eligibility, billing, session state,
// context assembly, backend dispatch, output filtering, settlement, and
// response shaping. It owns the ordering and failure semantics; the
// heavy lifting lives in the leaf packages it composes.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/parleyhq/parley/internal/audit"
	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/billing"
	"github.com/parleyhq/parley/internal/category"
	"github.com/parleyhq/parley/internal/compliance"
	"github.com/parleyhq/parley/internal/conversation"
	"github.com/parleyhq/parley/internal/knowledge"
	"github.com/parleyhq/parley/internal/prompt"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/session"
	"github.com/parleyhq/parley/internal/verify"
	"github.com/parleyhq/parley/pkg/chat"
)

// Escalation policies for restricted classification hits on otherwise
// general conversations. Block requires the same eligibility as an
// age-gated category; annotate lets the exchange proceed and records
// the signal in the compliance metadata.
const (
	EscalationBlock    = "block"
	EscalationAnnotate = "annotate"
)

// Config holds the engine tuning knobs.
type Config struct {
	// ReserveTokens is subtracted from the backend context window to
	// leave room for the reply when a user has no explicit response
	// length preference. Zero means the default of 1024.
	ReserveTokens int `yaml:"reserve_tokens"`

	// PageLimit is the platform display limit per reply page, in bytes.
	// Zero means the default of 2000.
	PageLimit int `yaml:"page_limit"`

	// MaxTextRunes and MaxImages bound inbound requests. Zero selects
	// the validation defaults.
	MaxTextRunes int `yaml:"max_text_runes"`
	MaxImages    int `yaml:"max_images"`

	// RequestTimeout bounds one HandleMessage call end to end, so a
	// stalled backend cannot pin resources indefinitely. Zero means the
	// default of 2 minutes.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// KnowledgeLimit caps snippets fetched per exchange. Zero means the
	// default of 3.
	KnowledgeLimit int `yaml:"knowledge_limit"`

	// EscalationPolicy is EscalationBlock or EscalationAnnotate.
	// Anything else falls back to EscalationBlock.
	EscalationPolicy string `yaml:"escalation_policy"`

	// VIPRoles lists platform roles whose members are billed as
	// sponsored regardless of their stored preferences.
	VIPRoles []string `yaml:"vip_roles"`

	Logger *slog.Logger `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.ReserveTokens <= 0 {
		c.ReserveTokens = 1024
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 2000
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 2 * time.Minute
	}
	if c.KnowledgeLimit <= 0 {
		c.KnowledgeLimit = 3
	}
	if c.EscalationPolicy != EscalationAnnotate {
		c.EscalationPolicy = EscalationBlock
	}
	return c
}

// Responder produces a backend reply for an assembled prompt, advancing
// the conversation's mode state as a side effect.
type Responder interface {
	Respond(ctx context.Context, st *backend.ModeState, req backend.Request) (*backend.Reply, error)
}

// Compile-time interface check.
var _ Responder = (*backend.Selector)(nil)

// Deps groups the engine's collaborators.
type Deps struct {
	Sessions      *session.Store
	Lanes         *session.LaneLock
	Conversations *conversation.Manager
	Repo          conversation.Repository
	Categories    *category.Registry
	Classifier    *compliance.Classifier
	Backends      Responder
	Registry      *backend.Registry
	Meter         *billing.Meter
	Verifier      verify.Checker

	// Filter may be nil; a nil filter passes output through unmodified.
	Filter *compliance.Filter

	// Builder and Estimator default to the character estimator when nil.
	Builder   *prompt.Builder
	Estimator prompt.Estimator

	// Knowledge may be nil; categories without a knowledge domain never
	// trigger a lookup anyway.
	Knowledge knowledge.Source

	// RateLimit may be nil, meaning no rate limiting.
	RateLimit *security.RateLimiter

	// Audit may be nil; publishing to a nil dispatcher is a no-op.
	Audit *audit.Dispatcher
}

// Engine executes the conversation pipeline.
type Engine struct {
	cfg  Config
	deps Deps
}

// New creates an Engine. All non-optional collaborators must be set.
func New(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("orchestrator: session store is required")
	case deps.Lanes == nil:
		return nil, errors.New("orchestrator: lane lock is required")
	case deps.Conversations == nil:
		return nil, errors.New("orchestrator: conversation manager is required")
	case deps.Repo == nil:
		return nil, errors.New("orchestrator: repository is required")
	case deps.Categories == nil:
		return nil, errors.New("orchestrator: category registry is required")
	case deps.Classifier == nil:
		return nil, errors.New("orchestrator: classifier is required")
	case deps.Backends == nil:
		return nil, errors.New("orchestrator: backend responder is required")
	case deps.Registry == nil:
		return nil, errors.New("orchestrator: backend registry is required")
	case deps.Meter == nil:
		return nil, errors.New("orchestrator: usage meter is required")
	case deps.Verifier == nil:
		return nil, errors.New("orchestrator: verifier is required")
	}
	if deps.Estimator == nil {
		deps.Estimator = prompt.NewCharEstimator(0)
	}
	if deps.Builder == nil {
		deps.Builder = prompt.NewBuilder(deps.Estimator, prompt.Config{})
	}
	return &Engine{cfg: cfg.withDefaults(), deps: deps}, nil
}

// logger returns the configured logger, or the process default.
func (e *Engine) logger() *slog.Logger {
	if e.cfg.Logger != nil {
		return e.cfg.Logger
	}
	return slog.Default()
}

// baseEvent builds an audit event carrying the request identity.
func baseEvent(req *chat.Request, typ audit.EventType) audit.Event {
	return audit.Event{
		Type:      typ,
		RequestID: req.ID,
		UserID:    req.UserID,
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
	}
}
