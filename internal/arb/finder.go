package arb

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultArb/internal/fixedpoint"
	"vaultArb/internal/model"
	"vaultArb/internal/pricefeed"
	"vaultArb/internal/pricing"
	"vaultArb/internal/solver"
)

// ErrMissingPrice marks a reference snapshot without a usable quote for one
// of the pair's tokens.
var ErrMissingPrice = errors.New("arb: reference price missing")

// Finder sizes arbitrage trades from pool snapshots and reference prices.
// One evaluation is a stateless one-shot computation; a single Finder may
// evaluate many pools concurrently.
type Finder struct {
	iterations int
	logger     *zap.Logger
}

// NewFinder builds a Finder with the solver's refinement budget.
func NewFinder(iterations int, logger *zap.Logger) *Finder {
	if iterations <= 0 {
		iterations = solver.DefaultIterations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{iterations: iterations, logger: logger}
}

// Opportunity is one sized arbitrage decision. Decimal amounts are
// normalized token units; the embedded instruction carries raw base units
// for settlement.
type Opportunity struct {
	PoolID        common.Hash
	Pool          common.Address
	TokenIn       common.Address
	TokenOut      common.Address
	AssetInIndex  int
	AssetOutIndex int
	AmountIn      decimal.Decimal
	ExpectedOut   decimal.Decimal
	SpotBefore    decimal.Decimal
	SpotTarget    decimal.Decimal
	SpotAfter     decimal.Decimal
	ObservedAt    time.Time
	Instruction   model.TradeInstruction
}

// Record renders the opportunity as a journal entry.
func (o *Opportunity) Record(status string) model.TradeRecord {
	return model.TradeRecord{
		Timestamp:   o.ObservedAt.UTC().Format(time.RFC3339Nano),
		PoolID:      o.PoolID.Hex(),
		PoolAddress: o.Pool.Hex(),
		TokenIn:     o.TokenIn.Hex(),
		TokenOut:    o.TokenOut.Hex(),
		AmountIn:    o.AmountIn.String(),
		ExpectedOut: o.ExpectedOut.String(),
		SpotBefore:  o.SpotBefore.String(),
		SpotTarget:  o.SpotTarget.String(),
		SpotAfter:   o.SpotAfter.String(),
		Status:      status,
	}
}

// FindOpportunity evaluates one pool pair against a reference snapshot and
// emits the trade that moves the pool price onto the reference ratio. The
// direction is corrected first: a trade only ever runs toward the external
// price, never away from it. When the reference sits inside the fee band
// the amount clamps to zero.
func (f *Finder) FindOpportunity(state *model.PoolState, prices pricefeed.Snapshot, assetInIndex, assetOutIndex int) (*Opportunity, error) {
	m, err := pricing.NewModel(state, assetInIndex, assetOutIndex)
	if err != nil {
		return nil, err
	}

	desired, err := desiredSpotPrice(state, prices, assetInIndex, assetOutIndex)
	if err != nil {
		return nil, err
	}
	spot, err := m.SpotPrice()
	if err != nil {
		return nil, err
	}

	if desired.Cmp(spot) < 0 {
		assetInIndex, assetOutIndex = assetOutIndex, assetInIndex
		m, err = pricing.NewModel(state, assetInIndex, assetOutIndex)
		if err != nil {
			return nil, err
		}
		desired, err = desiredSpotPrice(state, prices, assetInIndex, assetOutIndex)
		if err != nil {
			return nil, err
		}
		spot, err = m.SpotPrice()
		if err != nil {
			return nil, err
		}
		f.logger.Debug("trade direction corrected",
			zap.String("pool", state.Address.Hex()),
			zap.Int("asset_in_index", assetInIndex),
			zap.Int("asset_out_index", assetOutIndex),
		)
	}

	amountIn, err := solver.AmountInForSpotPrice(m, desired, f.iterations)
	if err != nil {
		return nil, fmt.Errorf("size trade for pool %s: %w", state.Address.Hex(), err)
	}
	if amountIn.IsNegative() {
		amountIn = decimal.Zero
	}

	expectedOut := decimal.Zero
	spotAfter := spot
	if amountIn.IsPositive() {
		expectedOut, err = m.OutGivenIn(amountIn)
		if err != nil {
			return nil, err
		}
		spotAfter, err = m.SpotPriceAfterSwapExactIn(amountIn)
		if err != nil {
			return nil, err
		}
	}

	opp := &Opportunity{
		PoolID:        state.ID,
		Pool:          state.Address,
		TokenIn:       state.Tokens[assetInIndex],
		TokenOut:      state.Tokens[assetOutIndex],
		AssetInIndex:  assetInIndex,
		AssetOutIndex: assetOutIndex,
		AmountIn:      amountIn,
		ExpectedOut:   expectedOut,
		SpotBefore:    spot,
		SpotTarget:    desired,
		SpotAfter:     spotAfter,
		ObservedAt:    prices.At,
		Instruction: model.TradeInstruction{
			PoolID:        state.ID,
			AssetInIndex:  assetInIndex,
			AssetOutIndex: assetOutIndex,
			Amount:        fixedpoint.ToRaw(amountIn, state.Decimals[assetInIndex]),
		},
	}
	if err := opp.Instruction.Validate(); err != nil {
		return nil, err
	}
	return opp, nil
}

// desiredSpotPrice orients the reference quotes like the model's price:
// units of tokenIn per unit of tokenOut.
func desiredSpotPrice(state *model.PoolState, prices pricefeed.Snapshot, assetInIndex, assetOutIndex int) (decimal.Decimal, error) {
	tokenIn := state.Tokens[assetInIndex]
	tokenOut := state.Tokens[assetOutIndex]

	priceIn, ok := prices.Price(tokenIn)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrMissingPrice, tokenIn.Hex())
	}
	priceOut, ok := prices.Price(tokenOut)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrMissingPrice, tokenOut.Hex())
	}
	if priceIn <= 0 || priceOut <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: non-positive quote for pair %s/%s",
			ErrMissingPrice, tokenIn.Hex(), tokenOut.Hex())
	}

	return fixedpoint.Div(decimal.NewFromFloat(priceOut), decimal.NewFromFloat(priceIn))
}
