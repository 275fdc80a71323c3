package compliance

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Placeholder replaces redacted fragments in filtered output.
const Placeholder = "[removed]"

// Strictness selects how aggressively soft patterns are enforced.
type Strictness string

const (
	// StrictnessStrict redacts both hard and soft patterns.
	StrictnessStrict Strictness = "strict"
	// StrictnessStandard redacts hard patterns and annotates soft ones.
	StrictnessStandard Strictness = "standard"
	// StrictnessRelaxed redacts hard patterns only.
	StrictnessRelaxed Strictness = "relaxed"
)

// ErrBadStrictness is returned for strictness values outside the known set.
var ErrBadStrictness = errors.New("compliance: unknown strictness")

// ParseStrictness validates a strictness string. Empty means standard.
func ParseStrictness(s string) (Strictness, error) {
	switch Strictness(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return StrictnessStandard, nil
	case StrictnessStrict:
		return StrictnessStrict, nil
	case StrictnessStandard:
		return StrictnessStandard, nil
	case StrictnessRelaxed:
		return StrictnessRelaxed, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadStrictness, s)
}

// PatternConfig declares one disallowed-output pattern in configuration.
type PatternConfig struct {
	// Pattern is a Go regular expression.
	Pattern string `yaml:"pattern"`
	// Severity is "hard" (always redacted) or "soft" (strictness dependent).
	// Empty means hard.
	Severity string `yaml:"severity"`
	// Issue is the diagnostic recorded when the pattern fires.
	Issue string `yaml:"issue"`
}

// FilterConfig configures the output filter.
type FilterConfig struct {
	// Patterns extends the built-in disallowed-output patterns.
	Patterns []PatternConfig `yaml:"patterns"`
	// Placeholder overrides the default redaction placeholder.
	Placeholder string `yaml:"placeholder"`
}

type outputPattern struct {
	re    *regexp.Regexp
	hard  bool
	issue string
}

// Result is the outcome of output filtering.
type Result struct {
	Text     string
	Modified bool
	Issues   []string
}

// Filter applies the outbound content policy: redaction of disallowed
// fragments and mandated disclaimers for restricted categories.
// Output never fails; a zero Filter passes text through unchanged.
type Filter struct {
	patterns    []outputPattern
	placeholder string
}

// NewFilter creates a Filter with the built-in patterns plus any configured
// extras. Pattern compile errors surface here so they are caught at config
// validation time, not mid-conversation.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	f := &Filter{
		patterns:    defaultOutputPatterns(),
		placeholder: cfg.Placeholder,
	}
	if f.placeholder == "" {
		f.placeholder = Placeholder
	}

	for i, pc := range cfg.Patterns {
		re, err := regexp.Compile(pc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compliance: pattern %d: %w", i, err)
		}
		issue := pc.Issue
		if issue == "" {
			issue = "disallowed content"
		}
		f.patterns = append(f.patterns, outputPattern{
			re:    re,
			hard:  pc.Severity == "" || strings.EqualFold(pc.Severity, "hard"),
			issue: issue,
		})
	}

	return f, nil
}

// Output applies the filter to model output. Hard patterns are always
// redacted. Soft patterns are redacted under strict, annotated under
// standard, and ignored under relaxed. A non-empty disclaimer is appended
// when the text does not already carry it. Redaction runs before the
// disclaimer append so the disclaimer itself is never rewritten.
func (f *Filter) Output(text, disclaimer string, strictness Strictness) Result {
	res := Result{Text: text}
	if f == nil {
		return res
	}

	for _, p := range f.patterns {
		if !p.re.MatchString(res.Text) {
			continue
		}
		switch {
		case p.hard || strictness == StrictnessStrict:
			res.Text = p.re.ReplaceAllString(res.Text, f.placeholder)
			res.Modified = true
			res.Issues = append(res.Issues, p.issue)
		case strictness == StrictnessStandard:
			res.Issues = append(res.Issues, p.issue)
		}
	}

	if disclaimer != "" && !strings.Contains(res.Text, disclaimer) {
		if res.Text != "" {
			res.Text += "\n\n"
		}
		res.Text += disclaimer
		res.Modified = true
	}

	return res
}

// defaultOutputPatterns covers facilitation of off-platform transactions:
// payment handles, wallet addresses, and contact-to-buy solicitations.
func defaultOutputPatterns() []outputPattern {
	return []outputPattern{
		{
			re:    regexp.MustCompile(`(?i)\b(?:dm|message|contact)\s+me\s+(?:to|for)\s+(?:buy|purchase|order)\b[^.!?\n]*`),
			hard:  true,
			issue: "transaction solicitation",
		},
		{
			re:    regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`),
			hard:  true,
			issue: "wallet address",
		},
		{
			re:    regexp.MustCompile(`\bbc1[a-z0-9]{24,}\b`),
			hard:  true,
			issue: "wallet address",
		},
		{
			re:    regexp.MustCompile(`(?i)\b(?:cashapp|venmo|paypal)\s*[:@]\s*\S+`),
			hard:  true,
			issue: "payment handle",
		},
		{
			re:    regexp.MustCompile(`(?i)\b(?:whatsapp|telegram|signal)\b\s*[:@]?\s*\+?[0-9][0-9 .-]{6,}`),
			hard:  false,
			issue: "external contact",
		},
		{
			re:    regexp.MustCompile(`\+[0-9][0-9 ().-]{8,}[0-9]`),
			hard:  false,
			issue: "phone number",
		},
	}
}
