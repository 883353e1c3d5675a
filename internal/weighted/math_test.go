package weighted

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testPair(balanceIn, balanceOut, weightIn, weightOut, fee string) PairData {
	return PairData{
		BalanceIn:  dec(balanceIn),
		BalanceOut: dec(balanceOut),
		WeightIn:   dec(weightIn),
		WeightOut:  dec(weightOut),
		SwapFee:    dec(fee),
	}
}

func within(t *testing.T, got, want, tol decimal.Decimal) {
	t.Helper()
	if got.Sub(want).Abs().Cmp(tol) > 0 {
		t.Fatalf("got %s, want %s (tolerance %s)", got, want, tol)
	}
}

// With equal weights and no fee the curve is plain constant product:
// Ao = Bo*Ai/(Bi+Ai).
func TestOutGivenInConstantProductReduction(t *testing.T) {
	pair := testPair("1000", "2000", "0.5", "0.5", "0")

	for _, amount := range []string{"1", "10", "100", "500"} {
		ai := dec(amount)
		got, err := pair.OutGivenIn(ai)
		if err != nil {
			t.Fatalf("OutGivenIn(%s): %v", ai, err)
		}
		want := pair.BalanceOut.Mul(ai).DivRound(pair.BalanceIn.Add(ai), 28)
		within(t, got, want, dec("0.000000001"))
	}
}

// Equal weights with a fee still go through the general formula: the
// exponent collapses to 1 and only the input is discounted.
func TestOutGivenInBalancedWithFee(t *testing.T) {
	pair := testPair("1000", "1000", "0.5", "0.5", "0.003")

	ai := dec("100")
	got, err := pair.OutGivenIn(ai)
	if err != nil {
		t.Fatalf("OutGivenIn: %v", err)
	}

	netIn := ai.Mul(dec("0.997"))
	want := pair.BalanceOut.Mul(netIn).DivRound(pair.BalanceIn.Add(netIn), 28)
	within(t, got, want, dec("0.000000001"))
}

func TestOutGivenInMonotonic(t *testing.T) {
	pair := testPair("1000", "1000", "0.3", "0.7", "0.003")

	prevOut := decimal.Zero
	prevRate := decimal.Decimal{}
	prevSpot := decimal.Decimal{}
	for i := 1; i <= 10; i++ {
		ai := decimal.NewFromInt(int64(i * 10))

		out, err := pair.OutGivenIn(ai)
		if err != nil {
			t.Fatalf("OutGivenIn(%s): %v", ai, err)
		}
		if out.Cmp(prevOut) <= 0 {
			t.Fatalf("output not strictly increasing at %s: %s <= %s", ai, out, prevOut)
		}
		if out.Cmp(pair.BalanceOut) >= 0 {
			t.Fatalf("output %s reached pool balance", out)
		}

		rate := out.DivRound(ai, 28)
		if i > 1 && rate.Cmp(prevRate) >= 0 {
			t.Fatalf("output per input not strictly decreasing at %s: %s >= %s", ai, rate, prevRate)
		}

		spot, err := pair.SpotPriceAfterSwapExactIn(ai)
		if err != nil {
			t.Fatalf("SpotPriceAfterSwapExactIn(%s): %v", ai, err)
		}
		if i > 1 && spot.Cmp(prevSpot) <= 0 {
			t.Fatalf("post-trade spot not strictly increasing at %s: %s <= %s", ai, spot, prevSpot)
		}

		prevOut, prevRate, prevSpot = out, rate, spot
	}
}

func TestRoundTrip(t *testing.T) {
	pair := testPair("1000", "1000", "0.3", "0.7", "0.003")
	tol := dec("0.000000001")

	for _, amount := range []string{"1", "150", "500", "999"} {
		ao := dec(amount)
		ai, err := pair.InGivenOut(ao)
		if err != nil {
			t.Fatalf("InGivenOut(%s): %v", ao, err)
		}
		back, err := pair.OutGivenIn(ai)
		if err != nil {
			t.Fatalf("OutGivenIn(%s): %v", ai, err)
		}
		within(t, back, ao, tol)
	}
}

func TestInGivenOutRejectsDrain(t *testing.T) {
	pair := testPair("1000", "1000", "0.3", "0.7", "0.003")

	for _, amount := range []string{"1000", "1500"} {
		if _, err := pair.InGivenOut(dec(amount)); !errors.Is(err, ErrInvalidTradeSize) {
			t.Fatalf("InGivenOut(%s): expected ErrInvalidTradeSize, got %v", amount, err)
		}
	}
	if _, err := pair.InGivenOut(dec("-1")); !errors.Is(err, ErrInvalidTradeSize) {
		t.Fatalf("expected ErrInvalidTradeSize for negative amount")
	}
	if _, err := pair.OutGivenIn(dec("-1")); !errors.Is(err, ErrInvalidTradeSize) {
		t.Fatalf("expected ErrInvalidTradeSize for negative amount in")
	}
}

func TestSpotPriceScenario(t *testing.T) {
	noFee := testPair("1000", "1000", "0.3", "0.7", "0")

	spot, err := noFee.SpotPrice()
	if err != nil {
		t.Fatalf("SpotPrice: %v", err)
	}
	want := dec("7").DivRound(dec("3"), 28)
	within(t, spot, want, dec("0.000000000000000001"))

	withFee := testPair("1000", "1000", "0.3", "0.7", "0.003")
	spotFee, err := withFee.SpotPrice()
	if err != nil {
		t.Fatalf("SpotPrice: %v", err)
	}
	within(t, spotFee, want.DivRound(dec("0.997"), 28), dec("0.000000000000000001"))
}

func TestSpotPriceAfterSwapZeroAmount(t *testing.T) {
	pair := testPair("1000", "1000", "0.3", "0.7", "0.003")
	tol := dec("0.00000000000000000001")

	spot, err := pair.SpotPrice()
	if err != nil {
		t.Fatalf("SpotPrice: %v", err)
	}

	afterIn, err := pair.SpotPriceAfterSwapExactIn(decimal.Zero)
	if err != nil {
		t.Fatalf("SpotPriceAfterSwapExactIn(0): %v", err)
	}
	within(t, afterIn, spot, tol)

	afterOut, err := pair.SpotPriceAfterSwapExactOut(decimal.Zero)
	if err != nil {
		t.Fatalf("SpotPriceAfterSwapExactOut(0): %v", err)
	}
	within(t, afterOut, spot, tol)
}

// The exact-in and exact-out post-trade prices describe the same curve
// point when the amounts correspond through OutGivenIn.
func TestSpotPriceAfterSwapConsistency(t *testing.T) {
	pair := testPair("1000", "1000", "0.3", "0.7", "0.003")

	ai := dec("50")
	ao, err := pair.OutGivenIn(ai)
	if err != nil {
		t.Fatalf("OutGivenIn: %v", err)
	}

	viaIn, err := pair.SpotPriceAfterSwapExactIn(ai)
	if err != nil {
		t.Fatalf("SpotPriceAfterSwapExactIn: %v", err)
	}
	viaOut, err := pair.SpotPriceAfterSwapExactOut(ao)
	if err != nil {
		t.Fatalf("SpotPriceAfterSwapExactOut: %v", err)
	}
	within(t, viaOut, viaIn, dec("0.000000001"))
}

func TestDerivativeMatchesFiniteDifference(t *testing.T) {
	pair := testPair("1000", "1000", "0.3", "0.7", "0.003")
	h := dec("0.0001")
	two := dec("2")

	ai := dec("25")
	upIn, err := pair.SpotPriceAfterSwapExactIn(ai.Add(h))
	if err != nil {
		t.Fatalf("SpotPriceAfterSwapExactIn: %v", err)
	}
	downIn, err := pair.SpotPriceAfterSwapExactIn(ai.Sub(h))
	if err != nil {
		t.Fatalf("SpotPriceAfterSwapExactIn: %v", err)
	}
	numericIn := upIn.Sub(downIn).DivRound(two.Mul(h), 28)

	analyticIn, err := pair.DerivativeSpotPriceAfterSwapExactIn(ai)
	if err != nil {
		t.Fatalf("DerivativeSpotPriceAfterSwapExactIn: %v", err)
	}
	within(t, numericIn, analyticIn, analyticIn.Mul(dec("0.000001")))

	ao := dec("25")
	upOut, err := pair.SpotPriceAfterSwapExactOut(ao.Add(h))
	if err != nil {
		t.Fatalf("SpotPriceAfterSwapExactOut: %v", err)
	}
	downOut, err := pair.SpotPriceAfterSwapExactOut(ao.Sub(h))
	if err != nil {
		t.Fatalf("SpotPriceAfterSwapExactOut: %v", err)
	}
	numericOut := upOut.Sub(downOut).DivRound(two.Mul(h), 28)

	analyticOut, err := pair.DerivativeSpotPriceAfterSwapExactOut(ao)
	if err != nil {
		t.Fatalf("DerivativeSpotPriceAfterSwapExactOut: %v", err)
	}
	within(t, numericOut, analyticOut, analyticOut.Mul(dec("0.000001")))
}

func TestAmountInForPriceNoFeeInvertsCurve(t *testing.T) {
	pair := testPair("1000", "1000", "0.3", "0.7", "0")
	tol := dec("0.000000001")

	ai := dec("50")
	target, err := pair.SpotPriceAfterSwapExactIn(ai)
	if err != nil {
		t.Fatalf("SpotPriceAfterSwapExactIn: %v", err)
	}
	got, err := pair.AmountInForPriceNoFee(target)
	if err != nil {
		t.Fatalf("AmountInForPriceNoFee: %v", err)
	}
	within(t, got, ai, tol)

	spot, err := pair.SpotPrice()
	if err != nil {
		t.Fatalf("SpotPrice: %v", err)
	}
	atSpot, err := pair.AmountInForPriceNoFee(spot)
	if err != nil {
		t.Fatalf("AmountInForPriceNoFee: %v", err)
	}
	within(t, atSpot, decimal.Zero, tol)

	if _, err := pair.AmountInForPriceNoFee(decimal.Zero); err == nil {
		t.Fatalf("expected error for non-positive target")
	}
}
