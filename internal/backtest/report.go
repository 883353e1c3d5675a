package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Fill is one simulated trade inside a replay.
type Fill struct {
	At          time.Time       `json:"at"`
	TokenIn     common.Address  `json:"token_in"`
	TokenOut    common.Address  `json:"token_out"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	ExpectedOut decimal.Decimal `json:"expected_out"`
	SpotBefore  decimal.Decimal `json:"spot_before"`
	SpotAfter   decimal.Decimal `json:"spot_after"`
	PnL         decimal.Decimal `json:"pnl"`
}

// Report accumulates replay statistics. PnL and volume are denominated in
// the reference feed's quote currency.
type Report struct {
	Snapshots       int             `json:"snapshots"`
	Trades          int             `json:"trades"`
	SkippedBelowMin int             `json:"skipped_below_min"`
	SkippedResume   int             `json:"skipped_resume"`
	MissingPrices   int             `json:"missing_prices"`
	GrossPnL        decimal.Decimal `json:"gross_pnl"`
	Volume          decimal.Decimal `json:"volume"`
	FinalSpot       decimal.Decimal `json:"final_spot"`
	LastTS          uint64          `json:"last_ts"`
	Fills           []Fill          `json:"fills,omitempty"`
}

// Summary renders a human-readable digest of the replay.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "snapshots replayed: %d\n", r.Snapshots)
	fmt.Fprintf(&b, "trades filled:      %d\n", r.Trades)
	fmt.Fprintf(&b, "below size floor:   %d\n", r.SkippedBelowMin)
	if r.SkippedResume > 0 {
		fmt.Fprintf(&b, "skipped (resume):   %d\n", r.SkippedResume)
	}
	if r.MissingPrices > 0 {
		fmt.Fprintf(&b, "missing prices:     %d\n", r.MissingPrices)
	}
	fmt.Fprintf(&b, "volume:             %s\n", r.Volume.StringFixed(6))
	fmt.Fprintf(&b, "gross pnl:          %s\n", r.GrossPnL.StringFixed(6))
	if !r.FinalSpot.IsZero() {
		fmt.Fprintf(&b, "final spot:         %s\n", r.FinalSpot.StringFixed(8))
	}
	return b.String()
}
