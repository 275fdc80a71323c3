package compliance

import (
	"testing"
)

func TestClassifier_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		input          string
		wantRestricted bool
	}{
		{
			name:           "plain conversation",
			input:          "tell me about the weather in lisbon",
			wantRestricted: false,
		},
		{
			name:           "explicit keyword",
			input:          "write me something explicit tonight",
			wantRestricted: true,
		},
		{
			name:           "keyword inside larger word",
			input:          "the casinos of monaco", // "casino" must not match inside "casinos"
			wantRestricted: false,
		},
		{
			name:           "case insensitive",
			input:          "is this NSFW?",
			wantRestricted: true,
		},
		{
			name:           "numeric edge term",
			input:          "mark it 18+ please",
			wantRestricted: true,
		},
		{
			name:           "multi word term",
			input:          "this channel is adults only",
			wantRestricted: true,
		},
		{
			name:           "empty text",
			input:          "",
			wantRestricted: false,
		},
	}

	c := NewClassifier()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := c.Classify(tt.input)
			if got.Restricted != tt.wantRestricted {
				t.Errorf("Classify(%q).Restricted = %v, want %v (matches %v)",
					tt.input, got.Restricted, tt.wantRestricted, got.Matches)
			}
		})
	}
}

func TestClassifier_Matches(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	got := c.Classify("an EXPLICIT wager, adults only")

	want := []string{"explicit", "adults only", "wager"}
	if len(got.Matches) != len(want) {
		t.Fatalf("matches = %v, want %d terms", got.Matches, len(want))
	}
	seen := make(map[string]bool, len(got.Matches))
	for _, m := range got.Matches {
		seen[m] = true
	}
	for _, w := range want {
		if !seen[w] {
			t.Errorf("expected match %q in %v", w, got.Matches)
		}
	}
}

func TestClassifier_AddTerms(t *testing.T) {
	t.Parallel()

	c := &Classifier{}
	c.AddTerms("forbidden fruit", "", "   ")

	if got := c.Classify("a tale of Forbidden Fruit"); !got.Restricted {
		t.Errorf("custom term did not match: %+v", got)
	}
	if got := c.Classify("nsfw"); got.Restricted {
		t.Errorf("empty classifier matched default term: %+v", got)
	}
}
