// Package verify defines the eligibility check consulted before
// age-gated categories are served, plus checkers backed by member roles,
// persisted verification state, and a failover chain across both.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllCheckers is returned by Chain when every checker failed to
// produce a verdict.
var ErrAllCheckers = errors.New("verify: all checkers failed")

// DefaultReason is the reason attached to an ineligible result when no
// checker supplied a more specific one.
const DefaultReason = "age verification required for this category"

// Subject identifies who is being verified.
type Subject struct {
	UserID  string
	GuildID string

	// Roles are the subject's member roles in the guild, when known.
	Roles []string
}

// Result is an eligibility verdict.
type Result struct {
	Eligible bool
	Reason   string // set when ineligible; actionable for the user
}

// Checker decides whether a subject may access age-gated content.
// Implementations must be safe for concurrent use.
type Checker interface {
	Verify(ctx context.Context, sub Subject) (Result, error)
}

// StaticChecker returns a fixed verdict. Useful for deployments without
// an age-gate and for tests.
type StaticChecker struct {
	Result Result
}

func (c StaticChecker) Verify(context.Context, Subject) (Result, error) {
	return c.Result, nil
}

// RoleChecker grants eligibility when the subject holds any of the
// configured guild roles.
type RoleChecker struct {
	// VerifiedRoles are role names that imply a completed age check.
	VerifiedRoles []string
}

func (c RoleChecker) Verify(_ context.Context, sub Subject) (Result, error) {
	for _, have := range sub.Roles {
		for _, want := range c.VerifiedRoles {
			if have == want {
				return Result{Eligible: true}, nil
			}
		}
	}
	return Result{Reason: DefaultReason}, nil
}

// VerificationStore reads persisted verification state, typically the
// preferences record kept by the repository.
type VerificationStore interface {
	Verified(ctx context.Context, userID, guildID string) (bool, error)
}

// StoreChecker grants eligibility from a persisted verification flag set
// by an out-of-band verification flow.
type StoreChecker struct {
	Store VerificationStore
}

func (c StoreChecker) Verify(ctx context.Context, sub Subject) (Result, error) {
	verified, err := c.Store.Verified(ctx, sub.UserID, sub.GuildID)
	if err != nil {
		return Result{}, fmt.Errorf("verify: store lookup: %w", err)
	}
	if verified {
		return Result{Eligible: true}, nil
	}
	return Result{Reason: DefaultReason}, nil
}

// Chain consults checkers in order and grants eligibility on the first
// positive verdict. A checker error is logged and skipped so one broken
// source cannot lock every user out; only when all checkers error does
// the chain fail.
type Chain struct {
	checkers []Checker
	logger   *slog.Logger
}

// NewChain creates a Chain over the given checkers.
func NewChain(logger *slog.Logger, checkers ...Checker) (*Chain, error) {
	if len(checkers) == 0 {
		return nil, errors.New("verify: no checkers")
	}
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	return &Chain{checkers: checkers, logger: logger}, nil
}

func (c *Chain) Verify(ctx context.Context, sub Subject) (Result, error) {
	var (
		reason  string
		errs    int
		lastErr error
	)

	for _, checker := range c.checkers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		res, err := checker.Verify(ctx, sub)
		if err != nil {
			errs++
			lastErr = err
			c.logger.Warn("eligibility checker failed, trying next",
				"user_id", sub.UserID,
				"error", err,
			)
			continue
		}
		if res.Eligible {
			return res, nil
		}
		if reason == "" {
			reason = res.Reason
		}
	}

	if errs == len(c.checkers) {
		return Result{}, fmt.Errorf("%w: last error: %w", ErrAllCheckers, lastErr)
	}
	if reason == "" {
		reason = DefaultReason
	}
	return Result{Reason: reason}, nil
}

// Compile-time interface checks.
var (
	_ Checker = StaticChecker{}
	_ Checker = RoleChecker{}
	_ Checker = StoreChecker{}
	_ Checker = (*Chain)(nil)
)

// nopHandler is a slog.Handler that discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
