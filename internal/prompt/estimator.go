// Package prompt implements context assembly under a token budget: the
// system prompt always survives, knowledge snippets fold into it, and prior
// turns are included newest-first until the budget runs out, so older turns
// drop first and no turn is ever cut mid-message. Only the single
// latest-turn-too-big case hard-truncates, and that is flagged.
package prompt

import (
	"strings"

	"github.com/parleyhq/parley/internal/backend"
)

// Per-message overhead: role tokens plus formatting.
const messageOverhead = 4

// Conservative token cost for one attached image at default detail.
const imageTokens = 765

// Estimator estimates the token count of a string.
type Estimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens using a simple characters-per-token ratio.
// A ratio of ~4 works well for English; ~3 for French or other Latin languages.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator creates a CharEstimator with the given ratio.
// If charsPerToken is <= 0, defaults to 4.0 (English approximation).
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate returns the estimated token count for the given text.
func (e *CharEstimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := float64(len(text)) / e.CharsPerToken
	// Always round up to avoid underestimation.
	return int(tokens) + 1
}

// EstimateMessage returns the estimated tokens for one message, including
// the per-message overhead and attached images.
func EstimateMessage(estimator Estimator, msg backend.Message) int {
	total := messageOverhead + estimator.Estimate(msg.Content)
	total += imageTokens * len(msg.Images)
	return total
}

// EstimateMessages returns the total estimated tokens for a message slice.
func EstimateMessages(estimator Estimator, messages []backend.Message) int {
	total := 0
	for i := range messages {
		total += EstimateMessage(estimator, messages[i])
	}
	return total
}

// EstimateSystem returns the estimated tokens for a system prompt assembled
// from parts joined by double newlines, as one message.
func EstimateSystem(estimator Estimator, parts []string) int {
	return messageOverhead + estimator.Estimate(strings.Join(parts, "\n\n"))
}
