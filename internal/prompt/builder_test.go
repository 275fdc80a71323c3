package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/parleyhq/parley/internal/backend"
)

// content returns a string whose CharEstimator cost, including the
// per-message overhead, equals tokens.
func content(t *testing.T, tokens int) string {
	t.Helper()
	if tokens <= messageOverhead {
		t.Fatalf("tokens %d does not cover message overhead", tokens)
	}
	return strings.Repeat("a", (tokens-messageOverhead-1)*4)
}

func turns(t *testing.T, n, tokens int) []backend.Message {
	t.Helper()
	msgs := make([]backend.Message, 0, n)
	for i := 0; i < n; i++ {
		role := backend.MessageRoleUser
		if i%2 == 1 {
			role = backend.MessageRoleAssistant
		}
		msgs = append(msgs, backend.Message{Role: role, Content: content(t, tokens)})
	}
	return msgs
}

func TestBuildRecencyWalk(t *testing.T) {
	t.Parallel()

	b := NewBuilder(nil, Config{})

	// Budget 3000, system 400, twenty 150-token turns, latest 100. The
	// history budget is 2500, which fits 16 whole turns from the recent end.
	history := turns(t, 20, 150)
	plan, err := b.Build(BuildRequest{
		BudgetTokens: 3000,
		SystemParts:  []string{content(t, 400)},
		History:      history,
		Latest:       backend.Message{Role: backend.MessageRoleUser, Content: content(t, 100)},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if plan.IncludedTurns != 16 {
		t.Errorf("IncludedTurns = %d, want 16", plan.IncludedTurns)
	}
	if plan.DroppedTurns != 4 {
		t.Errorf("DroppedTurns = %d, want 4", plan.DroppedTurns)
	}
	if plan.Truncated {
		t.Error("Truncated = true, want false")
	}
	if got := plan.Budget.Used(); got != 2900 {
		t.Errorf("Budget.Used() = %d, want 2900", got)
	}
	if plan.Budget.Exceeded() {
		t.Errorf("Budget.Exceeded() = true with used %d of %d", plan.Budget.Used(), plan.Budget.Limit)
	}

	// Dropped turns are the oldest: the first surviving history message is
	// history[4], and order stays chronological.
	if len(plan.Messages) != 18 {
		t.Fatalf("len(Messages) = %d, want 18", len(plan.Messages))
	}
	if plan.Messages[0].Role != backend.MessageRoleSystem {
		t.Errorf("Messages[0].Role = %q, want system", plan.Messages[0].Role)
	}
	if plan.Messages[1].Content != history[4].Content || plan.Messages[1].Role != history[4].Role {
		t.Error("first included turn is not history[4]")
	}
	if last := plan.Messages[len(plan.Messages)-1]; last.Role != backend.MessageRoleUser {
		t.Errorf("last message role = %q, want user", last.Role)
	}
}

func TestBuildNeverExceedsBudget(t *testing.T) {
	t.Parallel()

	b := NewBuilder(nil, Config{})

	budgets := []int{50, 120, 400, 1000, 2500, 10000}
	for _, budget := range budgets {
		plan, err := b.Build(BuildRequest{
			BudgetTokens: budget,
			SystemParts:  []string{"You are a concise assistant."},
			History:      turns(t, 30, 90),
			Latest:       backend.Message{Content: strings.Repeat("q", 200)},
		})
		if err != nil {
			t.Fatalf("Build(budget=%d) error = %v", budget, err)
		}
		if plan.Budget.Exceeded() {
			t.Errorf("budget %d: Used() = %d exceeds limit", budget, plan.Budget.Used())
		}
	}
}

func TestBuildSystemAlwaysKept(t *testing.T) {
	t.Parallel()

	b := NewBuilder(nil, Config{})

	plan, err := b.Build(BuildRequest{
		BudgetTokens: 600,
		SystemParts:  []string{content(t, 500), "Stay in character."},
		History:      turns(t, 10, 200),
		Latest:       backend.Message{Content: content(t, 300)},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if plan.Messages[0].Role != backend.MessageRoleSystem {
		t.Fatalf("Messages[0].Role = %q, want system", plan.Messages[0].Role)
	}
	if !strings.Contains(plan.SystemPrompt, "Stay in character.") {
		t.Error("system prompt lost a part")
	}
	if !plan.Truncated {
		t.Error("Truncated = false, want true when system + latest exceed budget")
	}
	if plan.DroppedTurns != 10 {
		t.Errorf("DroppedTurns = %d, want all 10", plan.DroppedTurns)
	}
	if plan.IncludedTurns != 0 {
		t.Errorf("IncludedTurns = %d, want 0", plan.IncludedTurns)
	}
	if plan.Budget.Exceeded() {
		t.Errorf("Budget.Used() = %d exceeds limit %d after truncation", plan.Budget.Used(), plan.Budget.Limit)
	}

	// The truncated latest turn still arrives last and keeps a prefix.
	last := plan.Messages[len(plan.Messages)-1]
	if last.Role != backend.MessageRoleUser {
		t.Errorf("last role = %q, want user", last.Role)
	}
	if len(last.Content) == 0 {
		t.Error("latest turn truncated to empty with budget to spare")
	}
}

func TestBuildSnippetsFoldIntoSystem(t *testing.T) {
	t.Parallel()

	b := NewBuilder(nil, Config{MaxSnippets: 2})

	plan, err := b.Build(BuildRequest{
		BudgetTokens: 2000,
		SystemParts:  []string{"You are a helpful assistant."},
		Snippets:     []string{"fact one", "fact two", "fact three"},
		Latest:       backend.Message{Content: "hello"},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !strings.Contains(plan.SystemPrompt, "## Reference Notes") {
		t.Error("system prompt missing reference heading")
	}
	if !strings.Contains(plan.SystemPrompt, "fact one") || !strings.Contains(plan.SystemPrompt, "fact two") {
		t.Error("system prompt missing folded snippets")
	}
	if strings.Contains(plan.SystemPrompt, "fact three") {
		t.Error("snippet cap not applied")
	}

	// Snippets never appear as separate history messages.
	for _, msg := range plan.Messages[1:] {
		if strings.Contains(msg.Content, "fact one") {
			t.Error("snippet leaked out of the system message")
		}
	}
}

func TestBuildNoSnippets(t *testing.T) {
	t.Parallel()

	b := NewBuilder(nil, Config{})

	plan, err := b.Build(BuildRequest{
		BudgetTokens: 500,
		SystemParts:  []string{"Persona.", "Rules."},
		Latest:       backend.Message{Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if want := "Persona.\n\nRules."; plan.SystemPrompt != want {
		t.Errorf("SystemPrompt = %q, want %q", plan.SystemPrompt, want)
	}
	if strings.Contains(plan.SystemPrompt, "Reference Notes") {
		t.Error("reference heading added with no snippets")
	}
}

func TestBuildImagesCostTokens(t *testing.T) {
	t.Parallel()

	b := NewBuilder(nil, Config{})

	plan, err := b.Build(BuildRequest{
		BudgetTokens: 2000,
		SystemParts:  []string{"sys"},
		Latest: backend.Message{
			Content: "what is this?",
			Images:  []string{"img-1", "img-2"},
		},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if plan.Budget.Latest < 2*imageTokens {
		t.Errorf("Budget.Latest = %d, want at least %d for two images", plan.Budget.Latest, 2*imageTokens)
	}
}

func TestBuildNoBudget(t *testing.T) {
	t.Parallel()

	b := NewBuilder(nil, Config{})
	if _, err := b.Build(BuildRequest{BudgetTokens: 0}); !errors.Is(err, ErrNoBudget) {
		t.Errorf("Build(budget=0) error = %v, want ErrNoBudget", err)
	}
	if _, err := b.Build(BuildRequest{BudgetTokens: -5}); !errors.Is(err, ErrNoBudget) {
		t.Errorf("Build(budget=-5) error = %v, want ErrNoBudget", err)
	}
}

func TestTruncateToTokens(t *testing.T) {
	t.Parallel()

	est := NewCharEstimator(4)

	long := strings.Repeat("x", 1000)
	got := truncateToTokens(est, long, 50)
	if est.Estimate(got) > 50 {
		t.Errorf("Estimate(truncated) = %d, want <= 50", est.Estimate(got))
	}
	if len(got) == 0 {
		t.Error("truncated to empty with budget to spare")
	}

	if got := truncateToTokens(est, "short", 1000); got != "short" {
		t.Errorf("truncateToTokens(short) = %q, want unchanged", got)
	}
	if got := truncateToTokens(est, long, 0); got != "" {
		t.Errorf("truncateToTokens(budget=0) = %q, want empty", got)
	}

	// Cuts land on rune boundaries.
	multi := strings.Repeat("héllo wörld ", 100)
	cut := truncateToTokens(est, multi, 40)
	if !strings.HasPrefix(multi, cut) {
		t.Error("truncated text is not a prefix of the input")
	}
	for _, r := range cut {
		if r == '�' {
			t.Fatal("truncation split a rune")
		}
	}
}
