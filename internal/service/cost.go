package service

import "github.com/llmrelay/llmrelay/internal/models"

// ComputeCost derives the monetary cost of one upstream call from the
// provider's pricing and whatever token counts the upstream reported.
// Returns nil when the provider has no applicable price or no usable counts.
//
// Split input/output prices take precedence over the unified price. With
// split prices but only a total count, the mean of the two prices is applied
// to the total.
func ComputeCost(p *models.Provider, usage models.Usage) *float64 {
	hasSplit := p.InputPricePerM != nil && p.OutputPricePerM != nil
	hasPromptCompletion := usage.PromptTokens != nil && usage.CompletionTokens != nil

	if hasSplit {
		inputPrice, outputPrice := *p.InputPricePerM, *p.OutputPricePerM
		if hasPromptCompletion {
			cost := float64(*usage.PromptTokens)/1_000_000*inputPrice +
				float64(*usage.CompletionTokens)/1_000_000*outputPrice
			return &cost
		}
		if usage.TotalTokens != nil {
			mean := (inputPrice + outputPrice) / 2
			cost := float64(*usage.TotalTokens) / 1_000_000 * mean
			return &cost
		}
		return nil
	}

	if p.PricePerMillion == nil {
		return nil
	}
	price := *p.PricePerMillion
	if hasPromptCompletion {
		cost := float64(*usage.PromptTokens+*usage.CompletionTokens) / 1_000_000 * price
		return &cost
	}
	if usage.TotalTokens != nil {
		cost := float64(*usage.TotalTokens) / 1_000_000 * price
		return &cost
	}
	return nil
}
