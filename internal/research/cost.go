package research

// modelPrice is USD per million tokens.
type modelPrice struct {
	Input  float64
	Output float64
}

var modelPrices = map[string]modelPrice{
	"claude-3-5-haiku-20241022": {Input: 0.80, Output: 4.00},
	"claude-sonnet-4-20250514":  {Input: 3.00, Output: 15.00},
	"claude-opus-4-20250514":    {Input: 15.00, Output: 75.00},
	"gpt-4o-mini":               {Input: 0.15, Output: 0.60},
	"gpt-4o":                    {Input: 2.50, Output: 10.00},
	"deepseek-chat":             {Input: 0.27, Output: 1.10},
	"deepseek-reasoner":         {Input: 0.55, Output: 2.19},
}

// CostUSD prices one completion. Unknown models are billed at the most
// expensive known rate so cost tracking errs high, never low.
func CostUSD(model string, usage Usage) float64 {
	price, ok := modelPrices[model]
	if !ok {
		for _, p := range modelPrices {
			if p.Output > price.Output || (p.Output == price.Output && p.Input > price.Input) {
				price = p
			}
		}
	}
	return float64(usage.PromptTokens)/1e6*price.Input +
		float64(usage.CompletionTokens)/1e6*price.Output
}
