package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"vaultArb/internal/config"
	"vaultArb/internal/model"
	"vaultArb/internal/pricing"
	"vaultArb/internal/solver"
)

// quoteResult is printed as indented JSON. The embedded snapshot can feed a
// later run back through --pool-file.
type quoteResult struct {
	Pool           common.Address   `json:"pool"`
	Block          uint64           `json:"block"`
	AssetIn        common.Address   `json:"asset_in"`
	AssetOut       common.Address   `json:"asset_out"`
	SpotPrice      decimal.Decimal  `json:"spot_price"`
	AmountIn       decimal.Decimal  `json:"amount_in"`
	AmountOut      decimal.Decimal  `json:"amount_out"`
	EffectivePrice decimal.Decimal  `json:"effective_price"`
	SpotAfter      decimal.Decimal  `json:"spot_after"`
	Target         *targetResult    `json:"target,omitempty"`
	State          *model.PoolState `json:"state"`
}

// targetResult sizes the trade that moves the pair's spot price to the
// requested level. A non-positive amount means the price already sits at or
// past the target in this direction.
type targetResult struct {
	Price     decimal.Decimal `json:"price"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	SpotAfter decimal.Decimal `json:"spot_after"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := loadPoolState(ctx, cfg.RPCURL, cfg.Pool, cfg.Block, cfg.PoolFile, logger)
	if err != nil {
		return err
	}
	if cfg.AssetInIndex >= len(state.Tokens) || cfg.AssetOutIndex >= len(state.Tokens) {
		return fmt.Errorf("asset index out of range for a %d token pool", len(state.Tokens))
	}

	m, err := pricing.NewModel(state, cfg.AssetInIndex, cfg.AssetOutIndex)
	if err != nil {
		return err
	}

	spot, err := m.SpotPrice()
	if err != nil {
		return err
	}

	amountIn, err := decimal.NewFromString(cfg.AmountIn)
	if err != nil {
		return fmt.Errorf("parse amount-in: %w", err)
	}
	amountOut, err := m.OutGivenIn(amountIn)
	if err != nil {
		return err
	}
	spotAfter, err := m.SpotPriceAfterSwapExactIn(amountIn)
	if err != nil {
		return err
	}

	result := quoteResult{
		Pool:      state.Address,
		Block:     state.Block,
		AssetIn:   state.Tokens[cfg.AssetInIndex],
		AssetOut:  state.Tokens[cfg.AssetOutIndex],
		SpotPrice: spot,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		SpotAfter: spotAfter,
		State:     state,
	}
	if amountOut.IsPositive() {
		result.EffectivePrice = amountIn.Div(amountOut)
	}

	if cfg.Target != "" {
		target, err := decimal.NewFromString(cfg.Target)
		if err != nil {
			return fmt.Errorf("parse target: %w", err)
		}
		sized, err := solver.AmountInForSpotPrice(m, target, cfg.Iterations)
		if err != nil {
			return err
		}

		tr := &targetResult{Price: target, AmountIn: sized, SpotAfter: spot}
		if sized.IsPositive() {
			if tr.AmountOut, err = m.OutGivenIn(sized); err != nil {
				return err
			}
			if tr.SpotAfter, err = m.SpotPriceAfterSwapExactIn(sized); err != nil {
				return err
			}
		}
		result.Target = tr
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
