package core

import "strings"

const tokensPerMillion = 1_000_000.0

// ModelPricing is priced in USD per 1M tokens for each usage bucket.
type ModelPricing struct {
	InputPerMTokUSD      float64
	OutputPerMTokUSD     float64
	CacheReadPerMTokUSD  float64
	CacheWritePerMTokUSD float64
}

// Cost prices one usage snapshot.
func (p ModelPricing) Cost(u Usage) float64 {
	return (float64(u.InputTokens)*p.InputPerMTokUSD +
		float64(u.OutputTokens)*p.OutputPerMTokUSD +
		float64(u.CacheReadTokens)*p.CacheReadPerMTokUSD +
		float64(u.CacheWriteTokens)*p.CacheWritePerMTokUSD) / tokensPerMillion
}

// CalculateCost returns the USD cost for the usage snapshot.
func CalculateCost(u Usage, p ModelPricing) float64 {
	return p.Cost(u)
}

// PricingTable maps model ids to prices.
type PricingTable map[string]ModelPricing

// Lookup returns the price for model. An exact id wins; otherwise the longest
// configured id that prefixes model is used, so "claude-sonnet-4" also prices
// "claude-sonnet-4-20250514".
func (t PricingTable) Lookup(model string) (ModelPricing, bool) {
	if p, ok := t[model]; ok {
		return p, true
	}
	best := ""
	for id := range t {
		if id != "" && strings.HasPrefix(model, id) && len(id) > len(best) {
			best = id
		}
	}
	if best == "" {
		return ModelPricing{}, false
	}
	return t[best], true
}

// Cost prices u for model. Unpriced models cost 0.
func (t PricingTable) Cost(model string, u Usage) float64 {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return p.Cost(u)
}
