// Package chat defines the data contract between the command layer and the
// conversation engine. A Request carries one user message; a Response carries
// the engine's structured outcome, including pagination, compliance metadata,
// usage accounting, and session telemetry.
package chat

// Status classifies the outcome of handling a message.
type Status string

const (
	// StatusOK means a reply was generated and returned.
	StatusOK Status = "ok"
	// StatusNeedsVerification means the user must complete age verification
	// before the requested category is available.
	StatusNeedsVerification Status = "needs_verification"
	// StatusInsufficientCredit means the pre-flight balance check failed.
	StatusInsufficientCredit Status = "insufficient_credit"
	// StatusRateLimited means the user exceeded the per-user message rate.
	StatusRateLimited Status = "rate_limited"
	// StatusUnavailable means every backend mode failed for this request.
	StatusUnavailable Status = "unavailable"
	// StatusInvalid means the request was malformed and nothing was done.
	StatusInvalid Status = "invalid"
)

// Terminal reports whether the status describes a finished exchange rather
// than a condition the user can fix and retry immediately.
func (s Status) Terminal() bool {
	return s == StatusOK || s == StatusUnavailable || s == StatusInvalid
}
