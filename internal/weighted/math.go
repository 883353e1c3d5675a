package weighted

import (
	"fmt"

	"github.com/shopspring/decimal"

	"vaultArb/internal/fixedpoint"
)

// The closed forms below are the constant-weighted-product invariant solved
// for each quantity. Notation: Bi/Bo balances, Wi/Wo weights, f swap fee,
// Ai/Ao trade amounts. Spot prices are tokenIn per tokenOut, fee inclusive.

// OutGivenIn returns the output amount for an exact input:
//
//	Ao = Bo * (1 - (Bi / (Bi + Ai*(1-f)))^(Wi/Wo))
//
// The base of the exponent stays in (0,1], so the output is always strictly
// below BalanceOut: one trade can never drain the pool.
func (p PairData) OutGivenIn(amountIn decimal.Decimal) (decimal.Decimal, error) {
	if err := p.Validate(); err != nil {
		return decimal.Decimal{}, err
	}
	if amountIn.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: negative amount in %s", ErrInvalidTradeSize, amountIn)
	}

	netIn := amountIn.Mul(fixedpoint.Complement(p.SwapFee))
	base, err := fixedpoint.Div(p.BalanceIn, p.BalanceIn.Add(netIn))
	if err != nil {
		return decimal.Decimal{}, err
	}
	exp, err := fixedpoint.Div(p.WeightIn, p.WeightOut)
	if err != nil {
		return decimal.Decimal{}, err
	}
	ratio, err := fixedpoint.Pow(base, exp)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return p.BalanceOut.Mul(fixedpoint.Complement(ratio)), nil
}

// InGivenOut returns the input amount for an exact output:
//
//	Ai = Bi * ((Bo / (Bo-Ao))^(Wo/Wi) - 1) / (1-f)
//
// Requesting the whole balance (or more) is outside the curve's domain.
func (p PairData) InGivenOut(amountOut decimal.Decimal) (decimal.Decimal, error) {
	if err := p.Validate(); err != nil {
		return decimal.Decimal{}, err
	}
	if amountOut.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: negative amount out %s", ErrInvalidTradeSize, amountOut)
	}
	if amountOut.Cmp(p.BalanceOut) >= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: amount out %s >= pool balance %s",
			ErrInvalidTradeSize, amountOut, p.BalanceOut)
	}

	base, err := fixedpoint.Div(p.BalanceOut, p.BalanceOut.Sub(amountOut))
	if err != nil {
		return decimal.Decimal{}, err
	}
	exp, err := fixedpoint.Div(p.WeightOut, p.WeightIn)
	if err != nil {
		return decimal.Decimal{}, err
	}
	ratio, err := fixedpoint.Pow(base, exp)
	if err != nil {
		return decimal.Decimal{}, err
	}
	gross := p.BalanceIn.Mul(ratio.Sub(fixedpoint.One))
	return fixedpoint.Div(gross, fixedpoint.Complement(p.SwapFee))
}

// SpotPrice returns the zero-trade marginal price:
//
//	SP = (Bi/Wi) / (Bo/Wo) / (1-f)
func (p PairData) SpotPrice() (decimal.Decimal, error) {
	if err := p.Validate(); err != nil {
		return decimal.Decimal{}, err
	}
	noFee, err := p.spotPriceNoFee()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return fixedpoint.Div(noFee, fixedpoint.Complement(p.SwapFee))
}

// SpotPriceAfterSwapExactIn returns the marginal price right after a
// hypothetical exact-in trade, derived analytically:
//
//	SP(Ai) = SP * ((Bi + Ai*(1-f))/Bi)^((Wi+Wo)/Wo)
func (p PairData) SpotPriceAfterSwapExactIn(amountIn decimal.Decimal) (decimal.Decimal, error) {
	spot, err := p.SpotPrice()
	if err != nil {
		return decimal.Decimal{}, err
	}
	growth, err := p.balanceGrowth(amountIn)
	if err != nil {
		return decimal.Decimal{}, err
	}
	exp, err := fixedpoint.Div(p.WeightIn.Add(p.WeightOut), p.WeightOut)
	if err != nil {
		return decimal.Decimal{}, err
	}
	pow, err := fixedpoint.Pow(growth, exp)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return spot.Mul(pow), nil
}

// SpotPriceAfterSwapExactOut returns the marginal price right after a
// hypothetical exact-out trade:
//
//	SP(Ao) = SP * (Bo/(Bo-Ao))^((Wi+Wo)/Wi)
func (p PairData) SpotPriceAfterSwapExactOut(amountOut decimal.Decimal) (decimal.Decimal, error) {
	spot, err := p.SpotPrice()
	if err != nil {
		return decimal.Decimal{}, err
	}
	shrink, err := p.balanceShrink(amountOut)
	if err != nil {
		return decimal.Decimal{}, err
	}
	exp, err := fixedpoint.Div(p.WeightIn.Add(p.WeightOut), p.WeightIn)
	if err != nil {
		return decimal.Decimal{}, err
	}
	pow, err := fixedpoint.Pow(shrink, exp)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return spot.Mul(pow), nil
}

// DerivativeSpotPriceAfterSwapExactIn is d(SpotPriceAfterSwapExactIn)/dAi:
//
//	(Wi+Wo)/(Bo*Wi) * ((Bi + Ai*(1-f))/Bi)^(Wi/Wo)
//
// The fee factors cancel in the differentiation.
func (p PairData) DerivativeSpotPriceAfterSwapExactIn(amountIn decimal.Decimal) (decimal.Decimal, error) {
	if err := p.Validate(); err != nil {
		return decimal.Decimal{}, err
	}
	growth, err := p.balanceGrowth(amountIn)
	if err != nil {
		return decimal.Decimal{}, err
	}
	exp, err := fixedpoint.Div(p.WeightIn, p.WeightOut)
	if err != nil {
		return decimal.Decimal{}, err
	}
	pow, err := fixedpoint.Pow(growth, exp)
	if err != nil {
		return decimal.Decimal{}, err
	}
	lead, err := fixedpoint.Div(p.WeightIn.Add(p.WeightOut), p.BalanceOut.Mul(p.WeightIn))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return lead.Mul(pow), nil
}

// DerivativeSpotPriceAfterSwapExactOut is d(SpotPriceAfterSwapExactOut)/dAo:
//
//	(Bi*Wo*(Wi+Wo))/(Bo^2*Wi^2*(1-f)) * (Bo/(Bo-Ao))^((Wi+Wo)/Wi + 1)
func (p PairData) DerivativeSpotPriceAfterSwapExactOut(amountOut decimal.Decimal) (decimal.Decimal, error) {
	if err := p.Validate(); err != nil {
		return decimal.Decimal{}, err
	}
	shrink, err := p.balanceShrink(amountOut)
	if err != nil {
		return decimal.Decimal{}, err
	}
	weightSum := p.WeightIn.Add(p.WeightOut)
	exp, err := fixedpoint.Div(weightSum, p.WeightIn)
	if err != nil {
		return decimal.Decimal{}, err
	}
	pow, err := fixedpoint.Pow(shrink, exp.Add(fixedpoint.One))
	if err != nil {
		return decimal.Decimal{}, err
	}
	num := p.BalanceIn.Mul(p.WeightOut).Mul(weightSum)
	den := p.BalanceOut.Mul(p.BalanceOut).
		Mul(p.WeightIn).Mul(p.WeightIn).
		Mul(fixedpoint.Complement(p.SwapFee))
	lead, err := fixedpoint.Div(num, den)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return lead.Mul(pow), nil
}

// AmountInForPriceNoFee inverts the zero-fee spot-price curve:
//
//	Ai = Bi * ((target/spotNoFee)^(Wo/(Wi+Wo)) - 1)
//
// It is the closed-form first estimate for the iterative solver and is
// negative when the target sits below the current price.
func (p PairData) AmountInForPriceNoFee(target decimal.Decimal) (decimal.Decimal, error) {
	if err := p.Validate(); err != nil {
		return decimal.Decimal{}, err
	}
	if target.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("target spot price must be positive, got %s", target)
	}

	noFee, err := p.spotPriceNoFee()
	if err != nil {
		return decimal.Decimal{}, err
	}
	ratio, err := fixedpoint.Div(target, noFee)
	if err != nil {
		return decimal.Decimal{}, err
	}
	exp, err := fixedpoint.Div(p.WeightOut, p.WeightIn.Add(p.WeightOut))
	if err != nil {
		return decimal.Decimal{}, err
	}
	scaled, err := fixedpoint.Pow(ratio, exp)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return p.BalanceIn.Mul(scaled.Sub(fixedpoint.One)), nil
}

func (p PairData) spotPriceNoFee() (decimal.Decimal, error) {
	num, err := fixedpoint.Div(p.BalanceIn, p.WeightIn)
	if err != nil {
		return decimal.Decimal{}, err
	}
	den, err := fixedpoint.Div(p.BalanceOut, p.WeightOut)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return fixedpoint.Div(num, den)
}

// balanceGrowth is (Bi + Ai*(1-f))/Bi, the post-trade in-balance ratio.
// Negative amounts are allowed as long as the effective balance stays
// positive so that Newton iterates may briefly undershoot zero.
func (p PairData) balanceGrowth(amountIn decimal.Decimal) (decimal.Decimal, error) {
	netIn := amountIn.Mul(fixedpoint.Complement(p.SwapFee))
	effective := p.BalanceIn.Add(netIn)
	if !effective.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: amount in %s drains the curve", ErrInvalidTradeSize, amountIn)
	}
	return fixedpoint.Div(effective, p.BalanceIn)
}

// balanceShrink is Bo/(Bo-Ao), the post-trade out-balance ratio.
func (p PairData) balanceShrink(amountOut decimal.Decimal) (decimal.Decimal, error) {
	if amountOut.Cmp(p.BalanceOut) >= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: amount out %s >= pool balance %s",
			ErrInvalidTradeSize, amountOut, p.BalanceOut)
	}
	return fixedpoint.Div(p.BalanceOut, p.BalanceOut.Sub(amountOut))
}
