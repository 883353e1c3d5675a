package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultArb/internal/arb"
	"vaultArb/internal/fixedpoint"
	"vaultArb/internal/model"
	"vaultArb/internal/pricefeed"
	"vaultArb/internal/pricing"
	"vaultArb/internal/storage"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	// AssetInIndex/AssetOutIndex pick the pair inside the pool. The finder
	// still corrects the direction per snapshot.
	AssetInIndex  int
	AssetOutIndex int
	// MinAmountIn drops fills smaller than this many tokenIn units.
	MinAmountIn       decimal.Decimal
	CheckpointPath    string
	CheckpointEnabled bool
	// CheckpointEvery saves progress after this many processed snapshots.
	CheckpointEvery int
}

// Runner replays a reference price source against a simulated pool and
// accounts the value each corrective trade would have captured.
type Runner struct {
	cfg        RunConfig
	finder     *arb.Finder
	journal    storage.Journal
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies. The journal is optional.
func NewRunner(cfg RunConfig, finder *arb.Finder, journal storage.Journal, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 100
	}
	return &Runner{
		cfg:        cfg,
		finder:     finder,
		journal:    journal,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run replays the source to exhaustion. The input pool state is cloned;
// fills mutate only the simulation.
func (r *Runner) Run(ctx context.Context, state *model.PoolState, src pricefeed.Source) (*Report, error) {
	if r.finder == nil {
		return nil, fmt.Errorf("finder is nil")
	}
	if state == nil {
		return nil, fmt.Errorf("pool state is nil")
	}
	if src == nil {
		return nil, fmt.Errorf("price source is nil")
	}

	var resumeTS uint64
	if cp, ok, err := r.checkpoint.Load(); err != nil {
		return nil, err
	} else if ok {
		resumeTS = cp.LastProcessedTS
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed_ts", resumeTS))
	}

	sim := state.Clone()
	report := &Report{}
	processed := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		snap, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}

		report.Snapshots++
		ts := uint64(snap.At.Unix())
		if resumeTS > 0 && ts <= resumeTS {
			report.SkippedResume++
			continue
		}

		if err := r.step(sim, snap, report); err != nil {
			return nil, err
		}

		processed++
		report.LastTS = ts
		if processed%r.cfg.CheckpointEvery == 0 {
			if err := r.checkpoint.Save(ts); err != nil {
				return nil, err
			}
		}
	}

	if report.LastTS > 0 {
		if err := r.checkpoint.Save(report.LastTS); err != nil {
			return nil, err
		}
	}

	if m, err := pricing.NewModel(sim, r.cfg.AssetInIndex, r.cfg.AssetOutIndex); err == nil {
		if spot, err := m.SpotPrice(); err == nil {
			report.FinalSpot = spot
		}
	}
	return report, nil
}

// step evaluates one snapshot, applies the fill to the simulated pool and
// updates the running PnL.
func (r *Runner) step(sim *model.PoolState, snap pricefeed.Snapshot, report *Report) error {
	opp, err := r.finder.FindOpportunity(sim, snap, r.cfg.AssetInIndex, r.cfg.AssetOutIndex)
	if err != nil {
		if errors.Is(err, arb.ErrMissingPrice) {
			report.MissingPrices++
			return nil
		}
		return err
	}

	if !opp.AmountIn.IsPositive() || opp.AmountIn.Cmp(r.cfg.MinAmountIn) < 0 {
		report.SkippedBelowMin++
		return nil
	}

	priceIn, _ := snap.Price(opp.TokenIn)
	priceOut, _ := snap.Price(opp.TokenOut)
	costIn := opp.AmountIn.Mul(decimal.NewFromFloat(priceIn))
	valueOut := opp.ExpectedOut.Mul(decimal.NewFromFloat(priceOut))
	pnl := valueOut.Sub(costIn)

	inRaw := opp.Instruction.Amount
	outRaw := fixedpoint.ToRaw(opp.ExpectedOut, sim.Decimals[opp.AssetOutIndex])
	sim.Balances[opp.AssetInIndex].Add(sim.Balances[opp.AssetInIndex], inRaw)
	sim.Balances[opp.AssetOutIndex].Sub(sim.Balances[opp.AssetOutIndex], outRaw)

	report.Trades++
	report.GrossPnL = report.GrossPnL.Add(pnl)
	report.Volume = report.Volume.Add(costIn)
	report.Fills = append(report.Fills, Fill{
		At:          snap.At,
		TokenIn:     opp.TokenIn,
		TokenOut:    opp.TokenOut,
		AmountIn:    opp.AmountIn,
		ExpectedOut: opp.ExpectedOut,
		SpotBefore:  opp.SpotBefore,
		SpotAfter:   opp.SpotAfter,
		PnL:         pnl,
	})

	r.logger.Debug("fill applied",
		zap.Time("at", snap.At),
		zap.String("amount_in", opp.AmountIn.String()),
		zap.String("expected_out", opp.ExpectedOut.String()),
		zap.String("pnl", pnl.String()),
	)

	if r.journal != nil {
		if err := r.journal.PutTradeBatch([]model.TradeRecord{opp.Record(model.TradeStatusSimulated)}); err != nil {
			return fmt.Errorf("journal fill: %w", err)
		}
	}
	return nil
}
