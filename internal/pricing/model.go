package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"vaultArb/internal/model"
	"vaultArb/internal/weighted"
)

// Model prices trades between one ordered token pair of a pool. A Model is
// built from an immutable PoolState snapshot; all methods are pure and the
// value may be used concurrently. Prices are quoted as units of tokenIn per
// unit of tokenOut, fee inclusive, so a growing trade pushes the quoted
// price up while the output received per unit paid shrinks.
type Model interface {
	Type() model.PoolType

	// SpotPrice is the marginal price at zero trade size.
	SpotPrice() (decimal.Decimal, error)

	OutGivenIn(amountIn decimal.Decimal) (decimal.Decimal, error)
	InGivenOut(amountOut decimal.Decimal) (decimal.Decimal, error)

	SpotPriceAfterSwapExactIn(amountIn decimal.Decimal) (decimal.Decimal, error)
	SpotPriceAfterSwapExactOut(amountOut decimal.Decimal) (decimal.Decimal, error)
	DerivativeSpotPriceAfterSwapExactIn(amountIn decimal.Decimal) (decimal.Decimal, error)
	DerivativeSpotPriceAfterSwapExactOut(amountOut decimal.Decimal) (decimal.Decimal, error)

	// AmountInForPriceNoFee inverts the zero-fee spot-price curve, the
	// closed-form first estimate used by the iterative solver.
	AmountInForPriceNoFee(target decimal.Decimal) (decimal.Decimal, error)
}

// NewModelFunc builds a Model for one ordered pair of a pool snapshot.
type NewModelFunc func(state *model.PoolState, assetInIndex, assetOutIndex int) (Model, error)

// Models maps pool types to their constructors. Weighted is the only curve
// implemented; further pool types are further entries.
var Models = map[model.PoolType]NewModelFunc{
	model.PoolTypeWeighted: newWeighted,
}

// NewModel builds the pricing model registered for the snapshot's pool type.
func NewModel(state *model.PoolState, assetInIndex, assetOutIndex int) (Model, error) {
	if state == nil {
		return nil, fmt.Errorf("pool state is nil")
	}
	fn, ok := Models[state.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported pool type %s", state.Type)
	}
	return fn(state, assetInIndex, assetOutIndex)
}

func newWeighted(state *model.PoolState, assetInIndex, assetOutIndex int) (Model, error) {
	return weighted.NewPairData(state, assetInIndex, assetOutIndex)
}
