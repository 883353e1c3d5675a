package backtest

import (
	"context"
	"io"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"vaultArb/internal/arb"
	"vaultArb/internal/model"
	"vaultArb/internal/pricefeed"
)

var (
	btTokenA = common.HexToAddress("0xa1")
	btTokenB = common.HexToAddress("0xb2")
)

// sliceSource replays a fixed set of snapshots.
type sliceSource struct {
	snaps []pricefeed.Snapshot
	pos   int
}

func (s *sliceSource) Next(ctx context.Context) (pricefeed.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return pricefeed.Snapshot{}, err
	}
	if s.pos >= len(s.snaps) {
		return pricefeed.Snapshot{}, io.EOF
	}
	snap := s.snaps[s.pos]
	s.pos++
	return snap, nil
}

func (s *sliceSource) Close() error { return nil }

func balancedPool() *model.PoolState {
	units := func(n int64) *big.Int {
		return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	}
	return &model.PoolState{
		ID:       common.HexToHash("0x0202"),
		Address:  common.HexToAddress("0xdd"),
		Type:     model.PoolTypeWeighted,
		Tokens:   []common.Address{btTokenA, btTokenB},
		Balances: []*big.Int{units(1000), units(1000)},
		Decimals: []uint8{18, 18},
		Weights:  []*big.Int{big.NewInt(5e17), big.NewInt(5e17)},
		SwapFee:  big.NewInt(0),
	}
}

func snapAt(sec int64, priceA, priceB float64) pricefeed.Snapshot {
	return pricefeed.Snapshot{
		At:     time.Unix(sec, 0).UTC(),
		Prices: map[common.Address]float64{btTokenA: priceA, btTokenB: priceB},
	}
}

func testRunner(t *testing.T, cfg RunConfig) *Runner {
	t.Helper()
	return NewRunner(cfg, arb.NewFinder(10, nil), nil, nil)
}

// A skew appears once; the first snapshot trades the pool onto the
// reference, the repeat finds nothing left and the gross PnL is the value
// the corrective trade captured.
func TestRunTradesOnceOnSkew(t *testing.T) {
	runner := testRunner(t, RunConfig{
		AssetInIndex:  0,
		AssetOutIndex: 1,
		MinAmountIn:   decimal.RequireFromString("0.000001"),
	})

	src := &sliceSource{snaps: []pricefeed.Snapshot{
		snapAt(100, 1.0, 1.0),
		snapAt(160, 1.0, 1.1),
		snapAt(220, 1.0, 1.1),
	}}

	report, err := runner.Run(context.Background(), balancedPool(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Snapshots != 3 {
		t.Fatalf("snapshots = %d, want 3", report.Snapshots)
	}
	if report.Trades != 1 {
		t.Fatalf("trades = %d, want 1", report.Trades)
	}
	if report.SkippedBelowMin != 2 {
		t.Fatalf("skipped = %d, want 2 (flat snapshot and post-fill repeat)", report.SkippedBelowMin)
	}
	if !report.GrossPnL.IsPositive() {
		t.Fatalf("gross pnl = %s, want positive", report.GrossPnL)
	}

	// After the fill the simulated pool quotes the reference ratio.
	target := decimal.RequireFromString("1.1")
	deviation := report.FinalSpot.Sub(target).Abs().DivRound(target, 28)
	if deviation.Cmp(decimal.RequireFromString("0.001")) > 0 {
		t.Fatalf("final spot %s not within 0.1%% of %s", report.FinalSpot, target)
	}

	if len(report.Fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(report.Fills))
	}
	fill := report.Fills[0]
	if fill.TokenIn != btTokenA || fill.TokenOut != btTokenB {
		t.Fatalf("fill direction %s -> %s, want A -> B", fill.TokenIn.Hex(), fill.TokenOut.Hex())
	}
	if !fill.PnL.IsPositive() {
		t.Fatalf("fill pnl = %s, want positive", fill.PnL)
	}
}

func TestRunCountsMissingPrices(t *testing.T) {
	runner := testRunner(t, RunConfig{AssetInIndex: 0, AssetOutIndex: 1})

	src := &sliceSource{snaps: []pricefeed.Snapshot{
		{At: time.Unix(100, 0).UTC(), Prices: map[common.Address]float64{btTokenA: 1.0}},
		snapAt(160, 1.0, 1.0),
	}}

	report, err := runner.Run(context.Background(), balancedPool(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.MissingPrices != 1 {
		t.Fatalf("missing prices = %d, want 1", report.MissingPrices)
	}
	if report.Trades != 0 {
		t.Fatalf("trades = %d, want 0", report.Trades)
	}
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	cpPath := filepath.Join(t.TempDir(), "replay.checkpoint")
	cfg := RunConfig{
		AssetInIndex:      0,
		AssetOutIndex:     1,
		MinAmountIn:       decimal.RequireFromString("0.000001"),
		CheckpointPath:    cpPath,
		CheckpointEnabled: true,
	}

	snaps := []pricefeed.Snapshot{
		snapAt(100, 1.0, 1.1),
		snapAt(160, 1.0, 1.2),
	}

	first, err := testRunner(t, cfg).Run(context.Background(), balancedPool(), &sliceSource{snaps: snaps})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Trades != 2 {
		t.Fatalf("first run trades = %d, want 2", first.Trades)
	}
	if first.LastTS != 160 {
		t.Fatalf("first run last ts = %d, want 160", first.LastTS)
	}

	// A fresh runner over the same feed skips everything already replayed.
	second, err := testRunner(t, cfg).Run(context.Background(), balancedPool(), &sliceSource{snaps: snaps})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.SkippedResume != 2 {
		t.Fatalf("second run skipped = %d, want 2", second.SkippedResume)
	}
	if second.Trades != 0 {
		t.Fatalf("second run trades = %d, want 0", second.Trades)
	}
}

func TestRunDoesNotMutateInputState(t *testing.T) {
	runner := testRunner(t, RunConfig{
		AssetInIndex:  0,
		AssetOutIndex: 1,
		MinAmountIn:   decimal.RequireFromString("0.000001"),
	})

	state := balancedPool()
	before := new(big.Int).Set(state.Balances[0])

	report, err := runner.Run(context.Background(), state, &sliceSource{snaps: []pricefeed.Snapshot{
		snapAt(100, 1.0, 1.3),
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Trades != 1 {
		t.Fatalf("trades = %d, want 1", report.Trades)
	}
	if state.Balances[0].Cmp(before) != 0 {
		t.Fatalf("input state mutated: %s -> %s", before, state.Balances[0])
	}
}
