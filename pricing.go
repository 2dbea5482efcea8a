package genroute

// Cost computes the monetary cost of one provider call against a model's
// published per-1k-token price table. Pure; the single place pricing math
// lives.
func Cost(p ModelProfile, tokensIn, tokensOut int64) float64 {
	return float64(tokensIn)/1000*p.PriceIn1K + float64(tokensOut)/1000*p.PriceOut1K
}

// EstimateCost returns the cost ceiling used for quota checks before a call
// is made: the estimated prompt tokens at the input price plus the model's
// full output allowance at the output price.
func EstimateCost(p ModelProfile, promptTokens int64) float64 {
	return Cost(p, promptTokens, int64(p.MaxOutputTokens))
}

// EstimateTokens provides a rough token count estimate for a prompt.
// Uses the approximation: ~4 chars per token + request overhead.
func EstimateTokens(prompt string) int64 {
	return int64(len(prompt))/4 + 7
}
