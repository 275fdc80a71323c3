package prompt

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/parleyhq/parley/internal/backend"
)

// ErrNoBudget is returned when Build is called with a non-positive budget.
var ErrNoBudget = errors.New("prompt: no token budget")

// BuildRequest contains the inputs for one context assembly.
type BuildRequest struct {
	// BudgetTokens is the total allowance for the assembled prompt
	// (system + included history + latest turn). The caller has already
	// subtracted whatever it reserves for the reply.
	BudgetTokens int

	// SystemParts are the components of the system prompt (persona,
	// compliance preamble). Always retained, never trimmed.
	SystemParts []string

	// Snippets are knowledge lookups folded into the system message. They
	// never enter history, to avoid turn-order ambiguity.
	Snippets []string

	// History is the session's prior turns, oldest first.
	History []backend.Message

	// Latest is the incoming user turn.
	Latest backend.Message
}

// Budget is the token accounting for an assembled prompt.
type Budget struct {
	Limit   int // total allowance
	System  int // system prompt (with folded snippets)
	History int // included prior turns
	Latest  int // the latest user turn
}

// Used returns the total number of tokens consumed.
func (b Budget) Used() int {
	return b.System + b.History + b.Latest
}

// Available returns the number of tokens remaining under the limit.
// Returns 0 if the budget is already exceeded.
func (b Budget) Available() int {
	avail := b.Limit - b.Used()
	if avail < 0 {
		return 0
	}
	return avail
}

// Exceeded reports whether usage exceeds the limit.
func (b Budget) Exceeded() bool {
	return b.Used() > b.Limit
}

// Plan is the output of context assembly: the ordered prompt plus telemetry
// about what was included, dropped, or truncated.
type Plan struct {
	// Messages is the final prompt: system first, then surviving history in
	// chronological order, then the latest user turn.
	Messages []backend.Message

	// SystemPrompt is the fully assembled system message content.
	SystemPrompt string

	Budget Budget

	// IncludedTurns and DroppedTurns count history turns kept and shed.
	IncludedTurns int
	DroppedTurns  int

	// Truncated is true when even system + latest alone exceeded the budget
	// and the latest turn was hard-cut to fit. Callers warn the user.
	Truncated bool
}

// Config holds the tuning knobs for the builder.
type Config struct {
	// MaxSnippets caps the number of knowledge snippets folded into the
	// system prompt. Zero means the default of 3.
	MaxSnippets int
}

func (c Config) withDefaults() Config {
	if c.MaxSnippets == 0 {
		c.MaxSnippets = 3
	}
	return c
}

// Builder assembles bounded prompts.
type Builder struct {
	estimator Estimator
	cfg       Config
}

// NewBuilder creates a Builder with the given estimator and config.
// A nil estimator falls back to the default CharEstimator.
func NewBuilder(estimator Estimator, cfg Config) *Builder {
	if estimator == nil {
		estimator = NewCharEstimator(0)
	}
	return &Builder{estimator: estimator, cfg: cfg.withDefaults()}
}

// Build assembles the prompt for one exchange.
//
// The walk is newest-backward over history for inclusion, so recency wins;
// emission order is chronological. History turns are dropped whole, never
// cut. When system + latest alone exceed the budget, the latest turn is
// hard-truncated to fit and the plan is flagged.
func (b *Builder) Build(req BuildRequest) (Plan, error) {
	if req.BudgetTokens <= 0 {
		return Plan{}, ErrNoBudget
	}

	system := b.systemPrompt(req.SystemParts, req.Snippets)
	systemMsg := backend.Message{Role: backend.MessageRoleSystem, Content: system}
	latest := req.Latest
	latest.Role = backend.MessageRoleUser

	budget := Budget{
		Limit:  req.BudgetTokens,
		System: EstimateMessage(b.estimator, systemMsg),
		Latest: EstimateMessage(b.estimator, latest),
	}

	plan := Plan{SystemPrompt: system, Budget: budget}

	historyBudget := budget.Limit - budget.System - budget.Latest
	if historyBudget < 0 {
		// Not even the latest turn fits whole: hard-truncate it and flag.
		keep := budget.Limit - budget.System - messageOverhead - imageTokens*len(latest.Images)
		latest.Content = truncateToTokens(b.estimator, latest.Content, keep)
		plan.Budget.Latest = EstimateMessage(b.estimator, latest)
		plan.Truncated = true
		plan.DroppedTurns = len(req.History)
		plan.Messages = []backend.Message{systemMsg, latest}
		return plan, nil
	}

	// Walk newest-backward, accumulating whole turns while they fit.
	included := 0
	used := 0
	for i := len(req.History) - 1; i >= 0; i-- {
		cost := EstimateMessage(b.estimator, req.History[i])
		if used+cost > historyBudget {
			break
		}
		used += cost
		included++
	}

	plan.Budget.History = used
	plan.IncludedTurns = included
	plan.DroppedTurns = len(req.History) - included

	messages := make([]backend.Message, 0, included+2)
	messages = append(messages, systemMsg)
	messages = append(messages, req.History[len(req.History)-included:]...)
	messages = append(messages, latest)
	plan.Messages = messages

	return plan, nil
}

// systemPrompt joins the system parts and folds capped knowledge snippets in
// under a reference heading.
func (b *Builder) systemPrompt(parts, snippets []string) string {
	system := strings.Join(parts, "\n\n")

	if b.cfg.MaxSnippets > 0 && len(snippets) > b.cfg.MaxSnippets {
		snippets = snippets[:b.cfg.MaxSnippets]
	}
	if len(snippets) == 0 {
		return system
	}

	var sb strings.Builder
	sb.WriteString(system)
	sb.WriteString("\n\n## Reference Notes\n\n")
	for _, s := range snippets {
		sb.WriteString("- ")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return sb.String()
}

// truncateToTokens returns the longest prefix of text, on a rune boundary,
// whose estimate fits within budget. A non-positive budget returns empty.
func truncateToTokens(estimator Estimator, text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if estimator.Estimate(text) <= budget {
		return text
	}

	// Binary search the byte length, then back off to a rune boundary.
	lo, hi := 0, len(text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if estimator.Estimate(text[:mid]) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	return text[:lo]
}
