package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func newTestMeter(t *testing.T, cfg Config) (*Meter, *MemoryLedger) {
	t.Helper()
	ledger := NewMemoryLedger()
	m, err := NewMeter(cfg, ledger)
	if err != nil {
		t.Fatalf("NewMeter() error = %v", err)
	}
	return m, ledger
}

func TestMeter_Resolve(t *testing.T) {
	t.Parallel()

	m, _ := newTestMeter(t, Config{})

	tests := []struct {
		name    string
		profile Profile
		want    Mode
	}{
		{name: "default is credit", profile: Profile{UserID: "u1"}, want: ModeCredit},
		{name: "vip flag", profile: Profile{UserID: "u1", VIP: true}, want: ModeVIP},
		{name: "own key", profile: Profile{UserID: "u1", APIKey: "sk-user"}, want: ModeSelfPay},
		{name: "own key beats vip", profile: Profile{UserID: "u1", VIP: true, APIKey: "sk-user"}, want: ModeSelfPay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dec := m.Resolve(tt.profile)
			if dec.Mode != tt.want {
				t.Errorf("Resolve().Mode = %q, want %q", dec.Mode, tt.want)
			}
			if tt.want == ModeSelfPay && dec.Credential != tt.profile.APIKey {
				t.Errorf("Credential = %q, want user key", dec.Credential)
			}
			if tt.want != ModeSelfPay && dec.Credential != "" {
				t.Errorf("Credential = %q, want empty for %s", dec.Credential, tt.want)
			}
		})
	}
}

func TestMeter_EstimateCost(t *testing.T) {
	t.Parallel()

	m, _ := newTestMeter(t, Config{})

	tests := []struct {
		name      string
		tokensIn  int
		tokensOut int
		model     string
		want      int64
	}{
		// gpt-4o: 5 in / 15 out per 1K.
		{name: "exact thousands", tokensIn: 1000, tokensOut: 1000, model: "gpt-4o", want: 20},
		{name: "rounds up", tokensIn: 100, tokensOut: 10, model: "gpt-4o", want: 1},
		{name: "rounds up mixed", tokensIn: 1000, tokensOut: 100, model: "gpt-4o", want: 7},
		{name: "zero tokens", tokensIn: 0, tokensOut: 0, model: "gpt-4o", want: 0},
		{name: "negative treated as zero", tokensIn: -5, tokensOut: 0, model: "gpt-4o", want: 0},
		{name: "cheap model", tokensIn: 1000, tokensOut: 1000, model: "gpt-4o-mini", want: 3},
		{name: "unknown model uses fallback", tokensIn: 1000, tokensOut: 1000, model: "mystery-9000", want: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := m.EstimateCost(tt.tokensIn, tt.tokensOut, tt.model); got != tt.want {
				t.Errorf("EstimateCost(%d, %d, %q) = %d, want %d", tt.tokensIn, tt.tokensOut, tt.model, got, tt.want)
			}
		})
	}
}

func TestMeter_Preflight(t *testing.T) {
	t.Parallel()

	m, ledger := newTestMeter(t, Config{MinBalance: 1})
	ctx := context.Background()

	// Zero balance fails before any backend spend.
	err := m.Preflight(ctx, Profile{UserID: "broke", GuildID: "g1"})
	if !errors.Is(err, ErrInsufficientCredit) {
		t.Errorf("Preflight(zero balance) error = %v, want ErrInsufficientCredit", err)
	}

	ledger.SetBalance("funded", "g1", 100)
	if err := m.Preflight(ctx, Profile{UserID: "funded", GuildID: "g1"}); err != nil {
		t.Errorf("Preflight(funded) error = %v, want nil", err)
	}

	// Non-metered modes never check the ledger.
	if err := m.Preflight(ctx, Profile{UserID: "broke", GuildID: "g1", VIP: true}); err != nil {
		t.Errorf("Preflight(vip) error = %v, want nil", err)
	}
	if err := m.Preflight(ctx, Profile{UserID: "broke", GuildID: "g1", APIKey: "sk-user"}); err != nil {
		t.Errorf("Preflight(self-pay) error = %v, want nil", err)
	}
}

func TestMeter_Preflight_MinBalance(t *testing.T) {
	t.Parallel()

	m, ledger := newTestMeter(t, Config{MinBalance: 10})
	ctx := context.Background()

	ledger.SetBalance("u1", "g1", 9)
	if err := m.Preflight(ctx, Profile{UserID: "u1", GuildID: "g1"}); !errors.Is(err, ErrInsufficientCredit) {
		t.Errorf("Preflight(below threshold) error = %v, want ErrInsufficientCredit", err)
	}

	ledger.SetBalance("u1", "g1", 10)
	if err := m.Preflight(ctx, Profile{UserID: "u1", GuildID: "g1"}); err != nil {
		t.Errorf("Preflight(at threshold) error = %v, want nil", err)
	}
}

func TestMeter_Settle_Clamp(t *testing.T) {
	t.Parallel()

	m, ledger := newTestMeter(t, Config{})
	ctx := context.Background()
	profile := Profile{UserID: "u1", GuildID: "g1"}

	// Balance 5, cost 10: deduct what exists, never go negative, and the
	// caller records the actual amount.
	ledger.SetBalance("u1", "g1", 5)
	deducted, err := m.Settle(ctx, profile, 10)
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if deducted != 5 {
		t.Errorf("Settle() = %d, want 5", deducted)
	}
	balance, _ := ledger.Balance(ctx, "u1", "g1")
	if balance != 0 {
		t.Errorf("balance after clamp = %d, want 0", balance)
	}
}

func TestMeter_Settle(t *testing.T) {
	t.Parallel()

	m, ledger := newTestMeter(t, Config{})
	ctx := context.Background()

	ledger.SetBalance("u1", "g1", 100)
	deducted, err := m.Settle(ctx, Profile{UserID: "u1", GuildID: "g1"}, 30)
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if deducted != 30 {
		t.Errorf("Settle() = %d, want 30", deducted)
	}
	if balance, _ := ledger.Balance(ctx, "u1", "g1"); balance != 70 {
		t.Errorf("balance = %d, want 70", balance)
	}

	// VIP and self-pay settle nothing regardless of cost.
	ledger.SetBalance("vip", "g1", 100)
	if deducted, _ := m.Settle(ctx, Profile{UserID: "vip", GuildID: "g1", VIP: true}, 30); deducted != 0 {
		t.Errorf("Settle(vip) = %d, want 0", deducted)
	}
	if balance, _ := ledger.Balance(ctx, "vip", "g1"); balance != 100 {
		t.Errorf("vip balance = %d, want untouched 100", balance)
	}
	if deducted, _ := m.Settle(ctx, Profile{UserID: "u2", GuildID: "g1", APIKey: "sk"}, 30); deducted != 0 {
		t.Errorf("Settle(self-pay) = %d, want 0", deducted)
	}

	// Zero cost is a no-op.
	if deducted, _ := m.Settle(ctx, Profile{UserID: "u1", GuildID: "g1"}, 0); deducted != 0 {
		t.Errorf("Settle(cost=0) = %d, want 0", deducted)
	}
}

// failingLedger errors on every call.
type failingLedger struct{}

func (failingLedger) Balance(context.Context, string, string) (int64, error) {
	return 0, fmt.Errorf("connection refused")
}

func (failingLedger) Deduct(context.Context, string, string, int64) (int64, error) {
	return 0, fmt.Errorf("connection refused")
}

func (failingLedger) Credit(context.Context, string, string, int64) (int64, error) {
	return 0, fmt.Errorf("connection refused")
}

func TestMeter_LedgerErrors(t *testing.T) {
	t.Parallel()

	m, err := NewMeter(Config{}, failingLedger{})
	if err != nil {
		t.Fatalf("NewMeter() error = %v", err)
	}
	ctx := context.Background()
	profile := Profile{UserID: "u1", GuildID: "g1"}

	if err := m.Preflight(ctx, profile); !errors.Is(err, ErrLedger) {
		t.Errorf("Preflight error = %v, want ErrLedger", err)
	}
	if _, err := m.Settle(ctx, profile, 10); !errors.Is(err, ErrLedger) {
		t.Errorf("Settle error = %v, want ErrLedger", err)
	}
}

func TestNewMeter_NilLedger(t *testing.T) {
	t.Parallel()

	if _, err := NewMeter(Config{}, nil); err == nil {
		t.Error("NewMeter(nil ledger) error = nil, want error")
	}
}
