package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TradeInstruction is the settlement-ready output of one arbitrage
// evaluation. It mirrors the vault's batch-swap step layout: indices point
// into the pool's token list and Amount is an exact amount in, in the in
// token's base units. UserData is an opaque pool-type-specific payload,
// empty for weighted pools.
type TradeInstruction struct {
	PoolID        common.Hash `json:"pool_id"`
	AssetInIndex  int         `json:"asset_in_index"`
	AssetOutIndex int         `json:"asset_out_index"`
	Amount        *big.Int    `json:"amount"`
	UserData      []byte      `json:"user_data,omitempty"`
}

// Validate checks the instruction invariants before it is handed to the
// settlement engine.
func (t *TradeInstruction) Validate() error {
	if t.AssetInIndex == t.AssetOutIndex {
		return fmt.Errorf("trade %s: asset in and out indices are equal (%d)", t.PoolID.Hex(), t.AssetInIndex)
	}
	if t.AssetInIndex < 0 || t.AssetOutIndex < 0 {
		return fmt.Errorf("trade %s: negative asset index", t.PoolID.Hex())
	}
	if t.Amount == nil || t.Amount.Sign() < 0 {
		return fmt.Errorf("trade %s: amount must be >= 0", t.PoolID.Hex())
	}
	return nil
}

// Trade journal statuses.
const (
	TradeStatusSimulated = "simulated"
	TradeStatusSubmitted = "submitted"
	TradeStatusSkipped   = "skipped"
)

// TradeRecord is the journaled form of an evaluated opportunity. Amounts and
// prices are decimal strings in normalized token units.
type TradeRecord struct {
	Timestamp   string `json:"timestamp"`
	PoolID      string `json:"pool_id"`
	PoolAddress string `json:"pool_address"`
	TokenIn     string `json:"token_in"`
	TokenOut    string `json:"token_out"`
	AmountIn    string `json:"amount_in"`
	ExpectedOut string `json:"expected_out"`
	SpotBefore  string `json:"spot_before"`
	SpotTarget  string `json:"spot_target"`
	SpotAfter   string `json:"spot_after"`
	Status      string `json:"status"`
	TxHash      string `json:"tx_hash,omitempty"`
}
