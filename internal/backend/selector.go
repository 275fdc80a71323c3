// Package backend defines the client contracts for LLM backends and the
// per-conversation mode selector: thread mode (server-side conversation
// state, polled runs) versus chat mode (full context resent every call), with a
// permanent one-way downgrade to chat after any thread-mode failure.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool { return false }
func (nopHandler) Handle(context.Context, slog.Record) error {
	return nil
}
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler      { return nopHandler{} }

// SelectorConfig holds the tuning knobs for mode selection and run polling.
type SelectorConfig struct {
	// ThreadsEnabled gates thread mode globally. Off means every
	// conversation runs in chat mode.
	ThreadsEnabled bool

	// PollInterval is the fixed delay between run status polls.
	PollInterval time.Duration

	// PollCeiling is the wall-clock budget for one run. A run that has not
	// completed by then is treated as failed and triggers the downgrade.
	PollCeiling time.Duration
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// sensible defaults.
func (c SelectorConfig) withDefaults() SelectorConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PollCeiling <= 0 {
		c.PollCeiling = 60 * time.Second
	}
	return c
}

// Request bundles one selector dispatch.
type Request struct {
	// Backend selects the client by registry name; empty means default.
	Backend string

	// Messages is the full budgeted prompt, system message first. Chat mode
	// sends it verbatim.
	Messages []Message

	// Latest is the newest user text. Thread mode appends only this, since
	// prior turns already live on the provider side.
	Latest string

	// Images lists attachment references for the latest turn.
	Images []string

	Settings Settings

	// Credential is a self-pay API key override. A non-empty credential
	// forces chat mode so the user's own key is the one spent.
	Credential string
}

// Reply is the selector outcome.
type Reply struct {
	Text  string
	Model string
	Usage TokenUsage

	// Mode is the backend mode that produced the reply.
	Mode Mode

	// FellBack is true when thread mode failed and chat mode answered
	// within the same call.
	FellBack bool
}

// Selector drives the per-conversation backend state machine:
//
//	ModeUnset → thread {creating, active, failed} → ModeChat
//
// Thread mode is attempted lazily, at most once per conversation: any thread
// failure permanently downgrades the conversation to chat mode. Downgrades
// are recorded on the ModeState even when the chat fallback also fails, so
// the caller persists them regardless of outcome.
type Selector struct {
	registry *Registry
	cfg      SelectorConfig
	logger   *slog.Logger
}

// NewSelector creates a Selector over the given client registry.
// A nil logger discards all output.
func NewSelector(registry *Registry, cfg SelectorConfig, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	return &Selector{
		registry: registry,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Respond produces a reply for the request, advancing st as a side effect.
// Caller-context cancellation is returned as-is and never downgrades the
// conversation. Terminal failures wrap ErrExhausted.
func (s *Selector) Respond(ctx context.Context, st *ModeState, req Request) (*Reply, error) {
	client, err := s.registry.Get(req.Backend)
	if err != nil {
		return nil, err
	}

	var (
		fellBack  bool
		threadErr error
	)

	if tc, ok := client.(ThreadClient); ok && s.shouldTryThread(st, req) {
		reply, err := s.thread(ctx, tc, st, req)
		if err == nil {
			st.Mode = ModeThread
			return reply, nil
		}
		if IsCallerCancel(err) {
			return nil, err
		}

		// Permanent one-way downgrade. The stale thread handle is kept for
		// the reaper job.
		st.Mode = ModeChat
		fellBack = true
		threadErr = err
		s.logger.Warn("thread mode failed, downgrading conversation to chat",
			"backend", client.Name(),
			"thread_id", st.ThreadID,
			"error", err,
		)
	}

	reply, err := s.chat(ctx, client, req)
	if err != nil {
		if IsCallerCancel(err) {
			return nil, err
		}
		if threadErr != nil {
			return nil, fmt.Errorf("%w: thread: %w; chat: %w", ErrExhausted, threadErr, err)
		}
		return nil, fmt.Errorf("%w: chat: %w", ErrExhausted, err)
	}

	st.Mode = ModeChat
	reply.FellBack = fellBack
	return reply, nil
}

// shouldTryThread applies the mode selection rules: feature flag on, no
// prior downgrade, and no self-pay credential in play.
func (s *Selector) shouldTryThread(st *ModeState, req Request) bool {
	if !s.cfg.ThreadsEnabled || req.Credential != "" {
		return false
	}
	return st.Mode == ModeUnset || st.Mode == ModeThread
}

// thread runs one full thread-mode exchange: lazy thread creation, message
// append, run start, poll to completion, fetch reply.
func (s *Selector) thread(ctx context.Context, tc ThreadClient, st *ModeState, req Request) (*Reply, error) {
	if st.ThreadID == "" {
		id, err := tc.CreateThread(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating thread: %w", err)
		}
		st.ThreadID = id
	}

	if err := tc.AppendMessage(ctx, st.ThreadID, req.Latest, req.Images); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	runID, err := tc.StartRun(ctx, st.ThreadID, req.Settings)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	if err := s.pollRun(ctx, tc, st.ThreadID, runID); err != nil {
		return nil, err
	}

	msg, err := tc.LatestMessage(ctx, st.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("fetching reply: %w", err)
	}

	model := msg.Model
	if model == "" {
		model = req.Settings.Model
	}

	return &Reply{
		Text:  msg.Text,
		Model: model,
		Usage: msg.Usage,
		Mode:  ModeThread,
	}, nil
}

// pollRun polls at the configured interval until the run completes, reaches
// a non-completed terminal status, or the wall-clock ceiling expires.
func (s *Selector) pollRun(ctx context.Context, tc ThreadClient, threadID, runID string) error {
	deadline := time.Now().Add(s.cfg.PollCeiling)

	for {
		status, err := tc.PollRun(ctx, threadID, runID)
		if err != nil {
			return fmt.Errorf("polling run: %w", err)
		}

		switch {
		case status == RunCompleted:
			return nil
		case status.Terminal():
			return fmt.Errorf("%w: status %q", ErrRunFailed, status)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s (status %q)", ErrRunTimeout, s.cfg.PollCeiling, status)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// chat sends the full budgeted prompt as one stateless completion.
func (s *Selector) chat(ctx context.Context, client Client, req Request) (*Reply, error) {
	resp, err := client.Complete(ctx, CompletionRequest{
		Messages:   req.Messages,
		Settings:   req.Settings,
		Credential: req.Credential,
	})
	if err != nil {
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = req.Settings.Model
	}

	return &Reply{
		Text:  resp.Text,
		Model: model,
		Usage: resp.Usage,
		Mode:  ModeChat,
	}, nil
}
