package solver

import (
	"fmt"

	"github.com/shopspring/decimal"

	"vaultArb/internal/fixedpoint"
	"vaultArb/internal/pricing"
)

// DefaultIterations is the Newton budget used when the caller passes a
// non-positive count.
const DefaultIterations = 10

// AmountInForSpotPrice computes the exact-in trade size that moves the
// pool's spot price to desired. A closed-form zero-fee estimate seeds a
// fixed-budget Newton refinement against the fee-inclusive curve. The loop
// always runs the full budget with no tolerance-based early exit, so the
// result is deterministic for fixed inputs and iteration count. Convergence
// is not guaranteed when desired sits pathologically far from the current
// price or weights are extreme; callers needing bounded sizes clamp
// externally. The result is negative when desired is below the current
// fee-inclusive spot price.
func AmountInForSpotPrice(m pricing.Model, desired decimal.Decimal, iterations int) (decimal.Decimal, error) {
	if m == nil {
		return decimal.Decimal{}, fmt.Errorf("pricing model is nil")
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	// Undefined pool state (zero balance or weight) surfaces here, before
	// any iteration runs.
	if _, err := m.SpotPrice(); err != nil {
		return decimal.Decimal{}, fmt.Errorf("current spot price: %w", err)
	}

	estimate, err := m.AmountInForPriceNoFee(desired)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("closed-form estimate: %w", err)
	}

	for i := 0; i < iterations; i++ {
		extra, err := extraAmountIn(m, desired, estimate)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("refine iteration %d: %w", i, err)
		}
		estimate = estimate.Add(extra)
	}

	return estimate, nil
}

// extraAmountIn is one Newton correction against the fee-inclusive curve.
// The term is fully computed and returned on every call.
func extraAmountIn(m pricing.Model, desired, estimate decimal.Decimal) (decimal.Decimal, error) {
	spotAfter, err := m.SpotPriceAfterSwapExactIn(estimate)
	if err != nil {
		return decimal.Decimal{}, err
	}
	slope, err := m.DerivativeSpotPriceAfterSwapExactIn(estimate)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return fixedpoint.Div(desired.Sub(spotAfter), slope)
}
