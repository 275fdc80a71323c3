// Package billing implements the usage meter: billing-mode resolution,
// token-based cost estimation from a per-model rate table, and settlement
// against an external credit ledger.
//
// Three modes exist. VIP users generate on the shared credential with no
// deduction. Self-pay users bring their own provider key and are never
// metered. Everyone else runs on metered credit with a pre-flight balance
// check before any generation call.
package billing

import (
	"errors"
	"fmt"
)

// Sentinel errors for billing operations.
var (
	// ErrInsufficientCredit is returned by the pre-flight check when a
	// credit-mode balance is below the configured minimum.
	ErrInsufficientCredit = errors.New("billing: insufficient credit")

	// ErrLedger wraps ledger collaborator failures.
	ErrLedger = errors.New("billing: ledger unavailable")
)

// Mode identifies how a request is paid for.
type Mode string

const (
	// ModeVIP uses the shared credential with no deduction.
	ModeVIP Mode = "vip"
	// ModeSelfPay uses the user's own credential with no deduction.
	ModeSelfPay Mode = "self-pay"
	// ModeCredit meters the request against the user's balance.
	ModeCredit Mode = "credit"
)

// Profile is the billing-relevant view of a user.
type Profile struct {
	UserID  string
	GuildID string

	// VIP marks sponsored users.
	VIP bool

	// APIKey is a user-supplied provider credential. Non-empty opts the
	// user into self-pay.
	APIKey string
}

// Decision is the outcome of billing-mode resolution. Credential is only
// set in self-pay mode; vip and credit modes use the shared credential.
type Decision struct {
	Mode       Mode
	Credential string
}

// Metered reports whether this decision deducts from a balance.
func (d Decision) Metered() bool {
	return d.Mode == ModeCredit
}

func (m Mode) String() string { return string(m) }

// insufficientCredit builds the pre-flight error with actionable amounts.
func insufficientCredit(balance, minimum int64) error {
	return fmt.Errorf("%w: balance %d below minimum %d", ErrInsufficientCredit, balance, minimum)
}
