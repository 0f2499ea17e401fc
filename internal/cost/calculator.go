package cost

import (
	"sync"

	"go.uber.org/zap"
)

// Rates holds per-model token pricing.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Models missing
// from rates fall back to DefaultRates.
func NewCalculator(rates Rates) *Calculator {
	merged := DefaultRates()
	for model, r := range rates.Anthropic {
		merged.Anthropic[model] = r
	}
	return &Calculator{rates: merged}
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	return inCost + outCost
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
	}
}

// Tracker accumulates spend across calls. It is safe for concurrent use.
type Tracker struct {
	calc *Calculator

	mu    sync.Mutex
	calls int
	total float64
}

// NewTracker returns a Tracker pricing calls with calc.
func NewTracker(calc *Calculator) *Tracker {
	if calc == nil {
		calc = NewCalculator(Rates{})
	}
	return &Tracker{calc: calc}
}

// Record prices one call, adds it to the running total and returns its cost.
func (t *Tracker) Record(model, operation string, input, output int64) float64 {
	usd := t.calc.Claude(model, input, output)

	t.mu.Lock()
	t.calls++
	t.total += usd
	t.mu.Unlock()

	zap.L().Debug("analysis cost",
		zap.String("model", model),
		zap.String("operation", operation),
		zap.Float64("cost_usd", usd),
	)
	return usd
}

// Total returns the number of recorded calls and their summed cost.
func (t *Tracker) Total() (calls int, usd float64) {
	if t == nil {
		return 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls, t.total
}
