// Package compliance implements the content-policy layer of the engine:
// inbound classification of restricted-subject text and outbound filtering
// of model replies (disclaimers, redaction of disallowed fragments).
//
// Classification is a heuristic signal. Category gating remains the primary
// control; the classifier only widens the gate when a restricted subject
// shows up inside an otherwise general conversation.
package compliance

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Classification is the outcome of inbound text classification.
type Classification struct {
	// Restricted is true when the text matched the restricted-subject term set.
	Restricted bool
	// Matches lists the terms that fired, in term-set order.
	Matches []string
}

type classTerm struct {
	term string
	re   *regexp.Regexp
}

// Classifier flags restricted-subject content by case-insensitive
// word-boundary matching against a maintained term set.
// All methods are safe for concurrent use.
type Classifier struct {
	mu    sync.RWMutex
	terms []classTerm
}

// NewClassifier creates a Classifier pre-loaded with the default restricted
// term set.
func NewClassifier() *Classifier {
	c := &Classifier{}
	c.AddTerms(DefaultRestrictedTerms()...)
	return c
}

// AddTerms extends the term set. Empty terms are ignored.
func (c *Classifier) AddTerms(terms ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		c.terms = append(c.terms, classTerm{term: strings.ToLower(t), re: termPattern(t)})
	}
}

// Classify scans text against the term set.
func (c *Classifier) Classify(text string) Classification {
	if text == "" {
		return Classification{}
	}

	c.mu.RLock()
	terms := c.terms
	c.mu.RUnlock()

	var matches []string
	for _, ct := range terms {
		if ct.re.MatchString(text) {
			matches = append(matches, ct.term)
		}
	}

	return Classification{
		Restricted: len(matches) > 0,
		Matches:    matches,
	}
}

// termPattern compiles a case-insensitive pattern for term. Word boundaries
// are only anchored on edges that are word characters, so terms like "18+"
// still match at line ends.
func termPattern(term string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString(`(?i)`)
	if isWordRune(firstRune(term)) {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(term))
	if isWordRune(lastRune(term)) {
		b.WriteString(`\b`)
	}
	return regexp.MustCompile(b.String())
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}

// DefaultRestrictedTerms returns the built-in restricted-subject term set.
// Deployments extend it through configuration; removing entries requires a
// custom build.
func DefaultRestrictedTerms() []string {
	return []string{
		"nsfw",
		"explicit",
		"erotic",
		"lewd",
		"x-rated",
		"18+",
		"adults only",
		"age-restricted",
		"casino",
		"sportsbook",
		"betting odds",
		"wager",
		"slot machine",
		"high roller",
	}
}
