package billing

import (
	"context"
	"sync"
)

// Ledger is the external credit store. Implementations must provide
// atomic decrement-with-floor: Deduct never takes a balance below zero
// and returns the amount actually removed, which may be less than
// requested.
type Ledger interface {
	// Balance returns the current credit balance for a (user, guild) pair.
	Balance(ctx context.Context, userID, guildID string) (int64, error)

	// Deduct atomically removes up to amount credits and returns the
	// amount actually deducted.
	Deduct(ctx context.Context, userID, guildID string, amount int64) (int64, error)

	// Credit atomically adds amount credits and returns the new balance.
	Credit(ctx context.Context, userID, guildID string, amount int64) (int64, error)
}

type ledgerKey struct {
	userID  string
	guildID string
}

// MemoryLedger is a concurrency-safe in-memory Ledger for standalone
// deployments and tests. Balances start at zero.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[ledgerKey]int64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[ledgerKey]int64)}
}

// SetBalance overwrites the balance for a (user, guild) pair.
func (l *MemoryLedger) SetBalance(userID, guildID string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[ledgerKey{userID, guildID}] = amount
}

// Balance returns the current balance.
func (l *MemoryLedger) Balance(_ context.Context, userID, guildID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[ledgerKey{userID, guildID}], nil
}

// Deduct removes up to amount credits, clamped at zero, and returns the
// amount actually deducted.
func (l *MemoryLedger) Deduct(_ context.Context, userID, guildID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey{userID, guildID}
	balance := l.balances[key]
	deducted := amount
	if deducted > balance {
		deducted = balance
	}
	l.balances[key] = balance - deducted
	return deducted, nil
}

// Credit adds amount credits and returns the new balance. Negative
// amounts are ignored.
func (l *MemoryLedger) Credit(_ context.Context, userID, guildID string, amount int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey{userID, guildID}
	if amount > 0 {
		l.balances[key] += amount
	}
	return l.balances[key], nil
}

// Compile-time interface check.
var _ Ledger = (*MemoryLedger)(nil)
