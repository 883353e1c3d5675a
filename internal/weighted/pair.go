package weighted

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"vaultArb/internal/fixedpoint"
	"vaultArb/internal/model"
)

var (
	// ErrInvalidPoolState marks pair data with no defined spot price.
	ErrInvalidPoolState = errors.New("weighted: invalid pool state")
	// ErrInvalidTradeSize marks a trade outside the curve's domain.
	ErrInvalidTradeSize = errors.New("weighted: invalid trade size")
)

// PairData is the two-token slice of a weighted pool consumed by the pricing
// formulas. Balances are normalized token units, weights are the pool's
// per-token normalized weights, SwapFee is a fraction in [0, 1). Pair data
// is built fresh from a snapshot for every pricing query and is immutable
// once built.
type PairData struct {
	TokenIn    common.Address
	TokenOut   common.Address
	BalanceIn  decimal.Decimal
	BalanceOut decimal.Decimal
	WeightIn   decimal.Decimal
	WeightOut  decimal.Decimal
	SwapFee    decimal.Decimal
}

// NewPairData builds the (assetInIndex, assetOutIndex) slice of a pool
// snapshot, scaling raw balances by token decimals and the 1e18-scaled
// weights and fee into fractions.
func NewPairData(state *model.PoolState, assetInIndex, assetOutIndex int) (PairData, error) {
	if state == nil {
		return PairData{}, fmt.Errorf("%w: nil snapshot", ErrInvalidPoolState)
	}
	if err := state.Validate(); err != nil {
		return PairData{}, fmt.Errorf("%w: %v", ErrInvalidPoolState, err)
	}

	n := len(state.Tokens)
	if assetInIndex < 0 || assetInIndex >= n || assetOutIndex < 0 || assetOutIndex >= n {
		return PairData{}, fmt.Errorf("%w: asset index out of range [0,%d)", ErrInvalidPoolState, n)
	}
	if assetInIndex == assetOutIndex {
		return PairData{}, fmt.Errorf("%w: asset in equals asset out", ErrInvalidPoolState)
	}

	pair := PairData{
		TokenIn:    state.Tokens[assetInIndex],
		TokenOut:   state.Tokens[assetOutIndex],
		BalanceIn:  fixedpoint.FromRaw(state.Balances[assetInIndex], state.Decimals[assetInIndex]),
		BalanceOut: fixedpoint.FromRaw(state.Balances[assetOutIndex], state.Decimals[assetOutIndex]),
		WeightIn:   fixedpoint.FromRaw(state.Weights[assetInIndex], 18),
		WeightOut:  fixedpoint.FromRaw(state.Weights[assetOutIndex], 18),
		SwapFee:    fixedpoint.FromRaw(state.SwapFee, 18),
	}
	if err := pair.Validate(); err != nil {
		return PairData{}, err
	}
	return pair, nil
}

// Validate checks that the pair yields a defined spot price.
func (p PairData) Validate() error {
	if !p.BalanceIn.IsPositive() || !p.BalanceOut.IsPositive() {
		return fmt.Errorf("%w: non-positive balance", ErrInvalidPoolState)
	}
	if !p.WeightIn.IsPositive() || !p.WeightOut.IsPositive() {
		return fmt.Errorf("%w: non-positive weight", ErrInvalidPoolState)
	}
	if p.SwapFee.Sign() < 0 || p.SwapFee.Cmp(fixedpoint.One) >= 0 {
		return fmt.Errorf("%w: swap fee outside [0, 1)", ErrInvalidPoolState)
	}
	return nil
}

// Type reports the curve this pair prices on.
func (p PairData) Type() model.PoolType {
	return model.PoolTypeWeighted
}
