package billing

// Rate holds the credit price per 1000 input and output tokens for one
// model.
type Rate struct {
	Input  int64 `yaml:"input"`
	Output int64 `yaml:"output"`
}

// RateTable maps model names to rates. Lookups for unlisted models fall
// back to the default rate so a new model never generates for free.
type RateTable struct {
	rates    map[string]Rate
	fallback Rate
}

// DefaultRates returns the built-in per-model rate table, in credits per
// 1000 tokens.
func DefaultRates() map[string]Rate {
	return map[string]Rate{
		"gpt-4o":      {Input: 5, Output: 15},
		"gpt-4o-mini": {Input: 1, Output: 2},
		"gpt-4.1":     {Input: 4, Output: 12},
		"o3-mini":     {Input: 2, Output: 8},
	}
}

// NewRateTable builds a RateTable from the given rates. Nil or empty rates
// use the defaults. A zero fallback uses the most expensive default so
// unlisted models are charged conservatively.
func NewRateTable(rates map[string]Rate, fallback Rate) *RateTable {
	if len(rates) == 0 {
		rates = DefaultRates()
	}
	if fallback == (Rate{}) {
		fallback = Rate{Input: 5, Output: 15}
	}
	copied := make(map[string]Rate, len(rates))
	for model, rate := range rates {
		copied[model] = rate
	}
	return &RateTable{rates: copied, fallback: fallback}
}

// Lookup returns the rate for a model, falling back to the default rate
// for unlisted models.
func (t *RateTable) Lookup(model string) Rate {
	if rate, ok := t.rates[model]; ok {
		return rate
	}
	return t.fallback
}

// Cost computes the integer credit cost for a token count pair, rounded up
// to the nearest whole credit. Negative token counts are treated as zero.
func (t *RateTable) Cost(tokensIn, tokensOut int, model string) int64 {
	if tokensIn < 0 {
		tokensIn = 0
	}
	if tokensOut < 0 {
		tokensOut = 0
	}
	rate := t.Lookup(model)
	raw := int64(tokensIn)*rate.Input + int64(tokensOut)*rate.Output
	return ceilDiv(raw, 1000)
}

// ceilDiv divides a by b rounding up. b must be positive.
func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
