package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultArb/internal/arb"
	"vaultArb/internal/fixedpoint"
	"vaultArb/internal/model"
	"vaultArb/internal/pricefeed"
	"vaultArb/internal/storage"
)

// PoolReader fetches pool state from the chain.
type PoolReader interface {
	PoolState(ctx context.Context, pool common.Address, blockNumber uint64) (*model.PoolState, error)
}

// SwapExecutor submits a sized trade on chain.
type SwapExecutor interface {
	Execute(ctx context.Context, state *model.PoolState, instr model.TradeInstruction, expectedOut *big.Int) (common.Hash, error)
}

// StateStore persists the last processed snapshot timestamp across restarts.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// RunConfig holds runtime settings for the live loop.
type RunConfig struct {
	Pools []common.Address
	// Interval throttles evaluation; snapshots arriving faster are dropped.
	// Zero evaluates every snapshot.
	Interval time.Duration
	// MinAmountIn drops opportunities smaller than this many tokenIn units.
	MinAmountIn  decimal.Decimal
	MaxRetries   int
	RetryBackoff time.Duration
	// Execute submits swaps on chain. Off, the runner journals what it
	// would have traded.
	Execute   bool
	StateName string
}

// Runner drives the live loop: reference snapshot in, corrective trades out.
type Runner struct {
	cfg      RunConfig
	reader   PoolReader
	feed     pricefeed.Source
	finder   *arb.Finder
	journal  storage.Journal
	store    StateStore
	executor SwapExecutor
	status   *Status
	logger   *zap.Logger
}

// NewRunner builds a Runner with its dependencies. The journal, state store
// and executor are optional; status must not be nil when an HTTP surface is
// attached, so a fresh one is made when absent.
func NewRunner(
	cfg RunConfig,
	reader PoolReader,
	feed pricefeed.Source,
	finder *arb.Finder,
	journal storage.Journal,
	store StateStore,
	executor SwapExecutor,
	status *Status,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if status == nil {
		status = NewStatus()
	}
	if cfg.StateName == "" {
		cfg.StateName = "arb-runner"
	}
	return &Runner{
		cfg:      cfg,
		reader:   reader,
		feed:     feed,
		finder:   finder,
		journal:  journal,
		store:    store,
		executor: executor,
		status:   status,
		logger:   logger,
	}
}

// Status returns the shared board.
func (r *Runner) Status() *Status {
	return r.status
}

// Run consumes the feed until it ends or the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.reader == nil {
		return fmt.Errorf("pool reader is nil")
	}
	if r.feed == nil {
		return fmt.Errorf("price feed is nil")
	}
	if r.finder == nil {
		return fmt.Errorf("finder is nil")
	}
	if len(r.cfg.Pools) == 0 {
		return fmt.Errorf("at least one pool is required")
	}

	var resumeTS uint64
	if r.store != nil {
		ts, ok, err := r.store.LoadState(ctx, r.cfg.StateName)
		if err != nil {
			return fmt.Errorf("load runner state: %w", err)
		}
		if ok {
			resumeTS = ts
			r.logger.Info("resume from saved state", zap.Uint64("last_processed_ts", ts))
		}
	}

	var lastEval time.Time
	for {
		snap, err := r.feed.Next(ctx)
		if errors.Is(err, io.EOF) {
			r.logger.Info("price feed ended")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read snapshot: %w", err)
		}

		ts := uint64(snap.At.Unix())
		if resumeTS > 0 && ts <= resumeTS {
			continue
		}
		if r.status.Paused() {
			continue
		}
		if r.cfg.Interval > 0 && !lastEval.IsZero() && snap.At.Sub(lastEval) < r.cfg.Interval {
			continue
		}
		lastEval = snap.At
		r.status.MarkSnapshot(snap.At)

		for _, pool := range r.cfg.Pools {
			if err := r.evaluatePool(ctx, pool, snap); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.status.MarkError()
				r.logger.Warn("pool evaluation failed",
					zap.String("pool", pool.Hex()), zap.Error(err))
			}
		}

		if r.store != nil {
			if err := r.store.SaveState(ctx, r.cfg.StateName, ts); err != nil {
				r.logger.Warn("save runner state failed", zap.Error(err))
			}
		}
	}
}

// evaluatePool fetches fresh state and sizes every token pair against the
// snapshot.
func (r *Runner) evaluatePool(ctx context.Context, pool common.Address, snap pricefeed.Snapshot) error {
	state, err := r.poolStateWithRetry(ctx, pool)
	if err != nil {
		return fmt.Errorf("pool state: %w", err)
	}

	for _, pair := range tokenPairs(len(state.Tokens)) {
		opp, err := r.finder.FindOpportunity(state, snap, pair[0], pair[1])
		if err != nil {
			if errors.Is(err, arb.ErrMissingPrice) {
				r.logger.Debug("pair skipped, no reference quote",
					zap.String("pool", pool.Hex()),
					zap.Int("i", pair[0]), zap.Int("j", pair[1]))
				continue
			}
			return err
		}
		if !opp.AmountIn.IsPositive() || opp.AmountIn.Cmp(r.cfg.MinAmountIn) < 0 {
			continue
		}
		if err := r.act(ctx, state, opp); err != nil {
			return err
		}
	}
	return nil
}

// act journals the opportunity and, when execution is enabled, submits it.
func (r *Runner) act(ctx context.Context, state *model.PoolState, opp *arb.Opportunity) error {
	record := opp.Record(model.TradeStatusSimulated)

	if r.cfg.Execute && r.executor != nil {
		expectedOutRaw := fixedpoint.ToRaw(opp.ExpectedOut, state.Decimals[opp.AssetOutIndex])
		hash, err := r.executor.Execute(ctx, state, opp.Instruction, expectedOutRaw)
		if err != nil {
			r.status.MarkError()
			r.logger.Warn("swap submission failed",
				zap.String("pool", opp.Pool.Hex()), zap.Error(err))
			record.Status = model.TradeStatusSkipped
		} else {
			record.Status = model.TradeStatusSubmitted
			record.TxHash = hash.Hex()
		}
	}

	r.status.MarkTrade(record)
	r.logger.Info("opportunity",
		zap.String("pool", opp.Pool.Hex()),
		zap.String("token_in", opp.TokenIn.Hex()),
		zap.String("token_out", opp.TokenOut.Hex()),
		zap.String("amount_in", opp.AmountIn.String()),
		zap.String("expected_out", opp.ExpectedOut.String()),
		zap.String("spot_before", opp.SpotBefore.String()),
		zap.String("spot_target", opp.SpotTarget.String()),
		zap.String("status", record.Status),
	)

	if r.journal != nil {
		if err := r.journal.PutTradeBatch([]model.TradeRecord{record}); err != nil {
			return fmt.Errorf("journal trade: %w", err)
		}
	}
	return nil
}

func (r *Runner) poolStateWithRetry(ctx context.Context, pool common.Address) (*model.PoolState, error) {
	var state *model.PoolState
	err := retryWithBackoff(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		state, err = r.reader.PoolState(ctx, pool, 0)
		if err != nil {
			r.logger.Warn("pool state fetch failed",
				zap.String("pool", pool.Hex()), zap.Error(err))
		}
		return err
	})
	return state, err
}
