package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/audit"
	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/billing"
	"github.com/parleyhq/parley/internal/category"
	"github.com/parleyhq/parley/internal/conversation"
	"github.com/parleyhq/parley/internal/prompt"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/session"
	"github.com/parleyhq/parley/internal/verify"
	"github.com/parleyhq/parley/pkg/chat"
)

// HandleMessage runs the conversation pipeline for one inbound message
// and always returns a structured response; failures are encoded in the
// response status, never raised to the caller.
//
// Ledger deduction only happens after a reply has been produced, and
// durable logging never blocks the response path. Session mutation is
// guarded by a per-key lane, split into two short critical sections so
// the lane is never held across the backend call.
func (e *Engine) HandleMessage(ctx context.Context, req *chat.Request) *chat.Response {
	logger := e.logger()

	if req == nil {
		return chat.Failure("", chat.StatusInvalid, "empty request")
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	// Step 1: Validation. Malformed input fails fast with no side effects.
	if err := e.validate(req); err != nil {
		return chat.Failure(req.ID, chat.StatusInvalid, err.Error())
	}
	if e.deps.RateLimit != nil {
		if err := e.deps.RateLimit.Allow(req.UserID); err != nil {
			retry := int(e.deps.RateLimit.RetryAfter(req.UserID).Seconds()) + 1
			ev := baseEvent(req, audit.EventMessageRejected)
			ev.Detail = "rate limited"
			e.deps.Audit.Publish(ev)
			return chat.Failure(req.ID, chat.StatusRateLimited,
				fmt.Sprintf("you are sending messages too quickly, try again in %ds", retry))
		}
	}

	// Step 2: Preferences and category profile.
	prefs, err := e.deps.Repo.GetOrCreatePreferences(ctx, req.UserID, req.GuildID)
	if err != nil {
		logger.Error("preferences load failed", "user_id", req.UserID, "error", err)
		return chat.Failure(req.ID, chat.StatusUnavailable, "preferences are unavailable, try again shortly")
	}
	profile := e.deps.Categories.Resolve(req.Category)

	// Step 3: Eligibility for the requested category (age-gate).
	if profile.AgeGated {
		if resp := e.checkEligibility(ctx, req, prefs, profile); resp != nil {
			return resp
		}
	}

	// Step 4: Billing mode and pre-flight balance check. In credit mode an
	// insufficient balance short-circuits before any backend spend.
	bp := billing.Profile{
		UserID:  req.UserID,
		GuildID: req.GuildID,
		VIP:     e.isVIP(req, prefs),
		APIKey:  prefs.APIKey,
	}
	decision := e.deps.Meter.Resolve(bp)
	if err := e.deps.Meter.Preflight(ctx, bp); err != nil {
		if errors.Is(err, billing.ErrInsufficientCredit) {
			ev := baseEvent(req, audit.EventBillingDenied)
			ev.Category = profile.Name
			e.deps.Audit.Publish(ev)
			return chat.Failure(req.ID, chat.StatusInsufficientCredit,
				"your balance is too low for this request, top up to continue")
		}
		logger.Error("billing pre-flight failed", "user_id", req.UserID, "error", err)
		return chat.Failure(req.ID, chat.StatusUnavailable, "billing is unavailable, try again shortly")
	}

	// Step 5: Durable conversation scope.
	conv, convCreated, err := e.deps.Conversations.GetOrCreate(ctx, req.UserID, req.GuildID, req.ChannelID, profile)
	if err != nil {
		logger.Error("conversation load failed", "user_id", req.UserID, "channel_id", req.ChannelID, "error", err)
		return chat.Failure(req.ID, chat.StatusUnavailable, "conversation state is unavailable, try again shortly")
	}
	if convCreated {
		logger.Info("conversation started",
			"conversation_id", conv.ID,
			"category", conv.Category,
			"user_id", req.UserID)
	}

	// Step 6: Inbound classification. A restricted hit on a general
	// conversation widens the gate per the escalation policy.
	cls := e.deps.Classifier.Classify(req.Text)
	escalated := cls.Restricted && !profile.AgeGated
	if escalated && e.cfg.EscalationPolicy == EscalationBlock {
		if resp := e.checkEligibility(ctx, req, prefs, profile); resp != nil {
			return resp
		}
	}

	// Step 7: Session snapshot and user turn. First critical section:
	// everything between Acquire and Release is in-memory only.
	key := session.KeyFromRequest(req)
	userTurn := backend.Message{
		Role:    backend.MessageRoleUser,
		Content: req.Text,
		Images:  req.ImageRefs,
	}
	e.deps.Lanes.Acquire(key)
	e.deps.Sessions.GetOrCreate(key)
	history := e.deps.Sessions.History(key)
	e.deps.Sessions.Append(key, userTurn)
	e.deps.Lanes.Release(key)

	// Durably log the user turn (best-effort, honoring the history opt-in).
	if prefs.HistoryOptIn {
		e.saveMessage(ctx, logger, &conversation.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           backend.MessageRoleUser,
			Content:        req.Text,
			Restricted:     cls.Restricted,
			TokenCount:     prompt.EstimateMessage(e.deps.Estimator, userTurn),
		})
	}

	// Step 8: Context assembly under the backend's token budget.
	client, err := e.deps.Registry.Get(profile.Backend)
	if err != nil {
		logger.Error("no backend client", "backend", profile.Backend, "error", err)
		return chat.Failure(req.ID, chat.StatusUnavailable, "no assistant backend is configured")
	}
	reserve := e.cfg.ReserveTokens
	if prefs.MaxResponseTokens > 0 {
		reserve = prefs.MaxResponseTokens
	}
	plan, err := e.deps.Builder.Build(prompt.BuildRequest{
		BudgetTokens: client.ContextWindow() - reserve,
		SystemParts:  e.systemParts(profile, prefs),
		Snippets:     e.lookupSnippets(ctx, logger, profile, req.Text),
		History:      history,
		Latest:       userTurn,
	})
	if err != nil {
		logger.Error("context assembly failed", "conversation_id", conv.ID, "error", err)
		return chat.Failure(req.ID, chat.StatusUnavailable, "the assistant cannot fit this request, try a shorter message")
	}

	// Step 9: Backend dispatch, outside any lane. The mode state advances
	// even on failure so a thread downgrade survives this exchange.
	st := conv.ModeState()
	reply, rerr := e.deps.Backends.Respond(ctx, &st, backend.Request{
		Backend:  profile.Backend,
		Messages: plan.Messages,
		Latest:   req.Text,
		Images:   req.ImageRefs,
		Settings: backend.Settings{
			Model:        profile.Model,
			MaxTokens:    reserve,
			Instructions: plan.SystemPrompt,
		},
		Credential: decision.Credential,
	})
	if rerr != nil {
		if err := e.deps.Conversations.SaveMode(ctx, conv, st); err != nil {
			logger.Warn("mode persistence failed", "conversation_id", conv.ID, "error", err)
		}
		logger.Error("backend dispatch failed", "conversation_id", conv.ID, "error", rerr)
		ev := baseEvent(req, audit.EventMessageRejected)
		ev.ConversationID = conv.ID
		ev.Category = profile.Name
		ev.Detail = "backend exhausted"
		e.deps.Audit.Publish(ev)
		return chat.Failure(req.ID, chat.StatusUnavailable,
			"the assistant is unavailable right now, please try again in a moment")
	}
	if reply.FellBack {
		ev := baseEvent(req, audit.EventBackendFallback)
		ev.ConversationID = conv.ID
		ev.Model = reply.Model
		e.deps.Audit.Publish(ev)
	}

	// Step 10: Output filtering (never fails) and the assistant turn.
	// Second critical section mirrors the first.
	fres := e.deps.Filter.Output(reply.Text, profile.Disclaimer, prefs.Strictness)
	assistantTurn := backend.Message{Role: backend.MessageRoleAssistant, Content: fres.Text}
	e.deps.Lanes.Acquire(key)
	turnCount := e.deps.Sessions.Append(key, assistantTurn)
	e.deps.Lanes.Release(key)

	promptTokens, completionTokens := e.usageFor(plan, reply)
	cost := e.deps.Meter.EstimateCost(promptTokens, completionTokens, reply.Model)

	if prefs.HistoryOptIn {
		e.saveMessage(ctx, logger, &conversation.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           backend.MessageRoleAssistant,
			Content:        fres.Text,
			Filtered:       fres.Modified,
			FilterIssues:   fres.Issues,
			TokenCount:     completionTokens,
			Backend:        string(reply.Mode),
			Model:          reply.Model,
			Cost:           cost,
		})
	}
	if fres.Modified {
		ev := baseEvent(req, audit.EventFilterApplied)
		ev.ConversationID = conv.ID
		ev.Category = profile.Name
		ev.Detail = strings.Join(fres.Issues, "; ")
		e.deps.Audit.Publish(ev)
	}

	// Step 11: Settlement. The reply has been produced, so settlement
	// failures are logged and reported but never void the response.
	deducted, serr := e.deps.Meter.Settle(ctx, bp, cost)
	if serr != nil {
		logger.Error("settlement failed", "user_id", req.UserID, "cost", cost, "error", serr)
	}
	if decision.Metered() && serr == nil && deducted < cost {
		ev := baseEvent(req, audit.EventBillingSettled)
		ev.ConversationID = conv.ID
		ev.Cost = cost
		ev.Deducted = deducted
		ev.Detail = "partial settlement, balance exhausted"
		e.deps.Audit.Publish(ev)
	}
	if err := e.deps.Conversations.RecordExchange(ctx, conv, promptTokens+completionTokens, deducted, st); err != nil {
		logger.Warn("conversation update failed", "conversation_id", conv.ID, "error", err)
	}

	// Step 12: Response assembly.
	first, pages := splitPages(fres.Text, e.cfg.PageLimit)
	resp := &chat.Response{
		ID:      req.ID,
		Success: true,
		Status:  chat.StatusOK,
		Text:    first,
		Pages:   pages,
		Compliance: chat.Compliance{
			Category:   profile.Name,
			Restricted: profile.Restricted || cls.Restricted,
			Escalated:  escalated,
			Filtered:   fres.Modified,
			Issues:     fres.Issues,
		},
		Usage: chat.Usage{
			BillingMode:      string(decision.Mode),
			Model:            reply.Model,
			BackendMode:      string(reply.Mode),
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			Cost:             cost,
			Deducted:         deducted,
		},
		Session: chat.SessionInfo{
			TurnCount:        turnCount,
			MaxTurns:         e.deps.Sessions.Config().MaxTurns,
			SecondsRemaining: int64(e.deps.Sessions.TTL(key).Seconds()),
		},
		Context: chat.ContextInfo{
			IncludedTurns: plan.IncludedTurns,
			DroppedTurns:  plan.DroppedTurns,
			Truncated:     plan.Truncated,
		},
		Suggestions: profile.FollowUps,
	}
	if plan.Truncated {
		resp.Message = "your message was shortened to fit the context limit"
	}

	ev := baseEvent(req, audit.EventMessageHandled)
	ev.ConversationID = conv.ID
	ev.Category = profile.Name
	ev.Status = string(chat.StatusOK)
	ev.BillingMode = string(decision.Mode)
	ev.Model = reply.Model
	ev.Cost = cost
	ev.Deducted = deducted
	ev.InboundHash = audit.HashContent(req.Text)
	ev.OutboundHash = audit.HashContent(fres.Text)
	e.deps.Audit.Publish(ev)

	return resp
}

// validate checks request shape before any side effects.
func (e *Engine) validate(req *chat.Request) error {
	if req.UserID == "" || req.ChannelID == "" {
		return errors.New("user and channel identity are required")
	}
	if err := security.ValidateText(req.Text, e.cfg.MaxTextRunes); err != nil {
		return err
	}
	return security.ValidateImageCount(len(req.ImageRefs), e.cfg.MaxImages)
}

// checkEligibility enforces the age-gate: the user must have restricted
// assistance enabled and pass the verification chain. A nil return means
// eligible; otherwise the structured refusal to send back.
func (e *Engine) checkEligibility(ctx context.Context, req *chat.Request, prefs *conversation.Preferences, profile category.Profile) *chat.Response {
	deny := func(reason string) *chat.Response {
		ev := baseEvent(req, audit.EventVerificationDenied)
		ev.Category = profile.Name
		ev.Detail = reason
		e.deps.Audit.Publish(ev)
		resp := chat.Failure(req.ID, chat.StatusNeedsVerification, reason)
		resp.Compliance = chat.Compliance{Category: profile.Name, Restricted: true}
		return resp
	}

	if !prefs.RestrictedOptIn {
		return deny("restricted assistance is disabled in your preferences, opt in to continue")
	}

	res, err := e.deps.Verifier.Verify(ctx, verify.Subject{
		UserID:  req.UserID,
		GuildID: req.GuildID,
		Roles:   req.MemberRoles,
	})
	if err != nil {
		e.logger().Error("verification unavailable", "user_id", req.UserID, "error", err)
		return chat.Failure(req.ID, chat.StatusUnavailable, "verification is unavailable, try again shortly")
	}
	if !res.Eligible {
		reason := res.Reason
		if reason == "" {
			reason = verify.DefaultReason
		}
		return deny(reason)
	}
	return nil
}

// isVIP reports whether the user is sponsored, by stored preference or
// by holding a configured platform role.
func (e *Engine) isVIP(req *chat.Request, prefs *conversation.Preferences) bool {
	if prefs.VIP {
		return true
	}
	for _, role := range req.MemberRoles {
		for _, vip := range e.cfg.VIPRoles {
			if role == vip {
				return true
			}
		}
	}
	return false
}

// systemParts assembles the system prompt components: category persona
// and rules, plus a style hint from the user's preferences.
func (e *Engine) systemParts(profile category.Profile, prefs *conversation.Preferences) []string {
	parts := profile.SystemParts()
	if s := styleInstruction(prefs.ResponseStyle); s != "" {
		parts = append(parts, s)
	}
	return parts
}

func styleInstruction(style string) string {
	switch style {
	case "concise":
		return "Keep replies short and direct."
	case "detailed":
		return "Give thorough replies, stepping through reasoning where it helps."
	default:
		return ""
	}
}

// lookupSnippets fetches knowledge snippets for categories that enable
// them. Lookup failures degrade to no snippets.
func (e *Engine) lookupSnippets(ctx context.Context, logger *slog.Logger, profile category.Profile, query string) []string {
	if e.deps.Knowledge == nil || !profile.Knowledge {
		return nil
	}
	snippets, err := e.deps.Knowledge.Search(ctx, profile.Name, query, e.cfg.KnowledgeLimit)
	if err != nil {
		logger.Warn("knowledge lookup failed", "category", profile.Name, "error", err)
		return nil
	}
	return snippets
}

// usageFor extracts token usage from the reply, estimating when the
// backend reported none so metered usage never rides for free.
func (e *Engine) usageFor(plan prompt.Plan, reply *backend.Reply) (promptTokens, completionTokens int) {
	promptTokens = reply.Usage.PromptTokens
	completionTokens = reply.Usage.CompletionTokens
	if promptTokens == 0 && completionTokens == 0 {
		promptTokens = plan.Budget.Used()
		completionTokens = prompt.EstimateMessage(e.deps.Estimator,
			backend.Message{Role: backend.MessageRoleAssistant, Content: reply.Text})
	}
	return promptTokens, completionTokens
}

// saveMessage persists one durable turn, best-effort: failures are
// logged and never block the response path.
func (e *Engine) saveMessage(ctx context.Context, logger *slog.Logger, msg *conversation.Message) {
	if err := e.deps.Repo.SaveMessage(ctx, msg); err != nil {
		logger.Warn("durable message log failed",
			"conversation_id", msg.ConversationID,
			"role", msg.Role,
			"error", err)
	}
}
