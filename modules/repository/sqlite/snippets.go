package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AddSnippet stores one reference snippet. The FTS5 index is updated via
// triggers. Empty category means the snippet applies to all categories.
func (m *Module) AddSnippet(ctx context.Context, category, content string) (string, error) {
	id := uuid.NewString()
	_, err := m.db.ExecContext(ctx,
		"INSERT INTO snippets (id, category, content, created_at) VALUES (?, ?, ?, ?)",
		id, category, content, fmtTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: add snippet: %w", err)
	}
	return id, nil
}

// DeleteSnippet removes a snippet by ID.
func (m *Module) DeleteSnippet(ctx context.Context, id string) error {
	if _, err := m.db.ExecContext(ctx, "DELETE FROM snippets WHERE id = ?", id); err != nil {
		return fmt.Errorf("sqlite: delete snippet: %w", err)
	}
	return nil
}

// Search implements knowledge.Source via FTS5. Snippets tagged with the
// requested category rank alongside untagged ones; other categories are
// excluded.
func (m *Module) Search(ctx context.Context, category, query string, limit int) ([]string, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT s.content
		FROM snippets_fts
		JOIN snippets s ON s.rowid = snippets_fts.rowid
		WHERE snippets_fts MATCH ?
		  AND (s.category = '' OR s.category = ?)
		ORDER BY rank
		LIMIT ?`,
		ftsQuery(query), category, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search snippets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("sqlite: scan snippet: %w", err)
		}
		results = append(results, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan snippet rows: %w", err)
	}
	return results, nil
}

// ftsQuery quotes each term so user text cannot inject FTS5 query syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}
