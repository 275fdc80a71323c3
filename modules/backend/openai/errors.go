package openai

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/parleyhq/parley/internal/backend"
)

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// mapErrorResponse maps HTTP error status codes to backend sentinels.
func mapErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", backend.ErrRateLimit, body)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", backend.ErrCredential, resp.StatusCode, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", backend.ErrUnavailable, resp.StatusCode, body)
	case resp.StatusCode == http.StatusBadRequest:
		if isContextLengthError(body) {
			return fmt.Errorf("%w: %s", backend.ErrContextLength, body)
		}
		return fmt.Errorf("bad request: %s", body)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
}

// isContextLengthError checks if an error body indicates the prompt
// exceeded the model's context window.
func isContextLengthError(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "context length") ||
		strings.Contains(lower, "maximum context") ||
		strings.Contains(lower, "token limit")
}
