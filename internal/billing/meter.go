package billing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Config holds meter tuning.
type Config struct {
	// MinBalance is the pre-flight threshold for credit mode. A balance
	// below this short-circuits before any backend call. Default 1.
	MinBalance int64 `yaml:"min_balance"`

	// Rates overrides the built-in per-model rate table.
	Rates map[string]Rate `yaml:"rates"`

	// FallbackRate prices models missing from the table.
	FallbackRate Rate `yaml:"fallback_rate"`

	Logger *slog.Logger `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.MinBalance <= 0 {
		c.MinBalance = 1
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Meter resolves billing modes, prices token usage, and settles costs
// against the ledger.
type Meter struct {
	cfg    Config
	rates  *RateTable
	ledger Ledger
	logger *slog.Logger
}

// NewMeter creates a Meter backed by the given ledger.
func NewMeter(cfg Config, ledger Ledger) (*Meter, error) {
	if ledger == nil {
		return nil, fmt.Errorf("billing: nil ledger")
	}
	cfg = cfg.withDefaults()
	return &Meter{
		cfg:    cfg,
		rates:  NewRateTable(cfg.Rates, cfg.FallbackRate),
		ledger: ledger,
		logger: cfg.Logger,
	}, nil
}

// Resolve picks the billing mode for a user. A user-supplied key wins
// over VIP status: bringing your own key is an explicit opt-out of both
// sponsorship and metering. Credit is the default.
func (m *Meter) Resolve(p Profile) Decision {
	switch {
	case p.APIKey != "":
		return Decision{Mode: ModeSelfPay, Credential: p.APIKey}
	case p.VIP:
		return Decision{Mode: ModeVIP}
	default:
		return Decision{Mode: ModeCredit}
	}
}

// EstimateCost prices a token usage pair for a model, rounded up to the
// nearest whole credit.
func (m *Meter) EstimateCost(tokensIn, tokensOut int, model string) int64 {
	return m.rates.Cost(tokensIn, tokensOut, model)
}

// Preflight checks that a credit-mode user can pay before any generation
// happens. Non-metered modes pass unconditionally. An unreachable ledger
// fails the check: provider budget is never spent on a request whose
// ability to pay cannot be confirmed.
func (m *Meter) Preflight(ctx context.Context, p Profile) error {
	if !m.Resolve(p).Metered() {
		return nil
	}

	balance, err := m.ledger.Balance(ctx, p.UserID, p.GuildID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedger, err)
	}
	if balance < m.cfg.MinBalance {
		return insufficientCredit(balance, m.cfg.MinBalance)
	}
	return nil
}

// Settle deducts the cost of a completed generation and returns the
// amount actually deducted, clamped to the available balance. Non-metered
// modes and non-positive costs deduct nothing. Settle is only called
// after a response has been produced, so a ledger failure here is
// reported to the caller for logging but must never void the response.
func (m *Meter) Settle(ctx context.Context, p Profile, cost int64) (int64, error) {
	if !m.Resolve(p).Metered() || cost <= 0 {
		return 0, nil
	}

	deducted, err := m.ledger.Deduct(ctx, p.UserID, p.GuildID, cost)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedger, err)
	}
	if deducted < cost {
		m.logger.Warn("partial settlement",
			"user_id", p.UserID,
			"cost", cost,
			"deducted", deducted,
		)
	}
	return deducted, nil
}
