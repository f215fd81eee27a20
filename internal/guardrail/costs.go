package guardrail

// costPerKTokens is a blended (input+output) rate table used for rough
// daily cost accounting, not billing. Unknown models fall back to a
// conservative default so cost is never silently zero.
var costPerKTokens = map[string]float64{
	"gpt-4o":        0.0100,
	"gpt-4o-mini":   0.0006,
	"gpt-4.1":       0.0080,
	"gpt-4.1-mini":  0.0016,
	"gpt-4.1-nano":  0.0004,
	"o3-mini":       0.0044,
	"llama3.2":      0,
	"llama3.2:3b":   0,
	"qwen2.5-coder": 0,
}

const fallbackRatePerKTokens = 0.0100

// CostFor estimates the dollar cost of a token count under a model.
func CostFor(model string, tokens int) float64 {
	rate, ok := costPerKTokens[model]
	if !ok {
		rate = fallbackRatePerKTokens
	}
	return float64(tokens) / 1000.0 * rate
}
