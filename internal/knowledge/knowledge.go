// Package knowledge defines the snippet lookup consulted during context
// assembly. Sources return short reference texts for a category and
// query; the prompt builder folds them into the system message.
package knowledge

import "context"

// Entry is one stored snippet.
type Entry struct {
	ID       string
	Category string
	Content  string
}

// Source retrieves snippets relevant to a query within a category. An
// empty category matches all categories. Implementations must be safe
// for concurrent use; failures are degraded to "no snippets" by callers,
// never surfaced to the user.
type Source interface {
	Search(ctx context.Context, category, query string, limit int) ([]string, error)
}
