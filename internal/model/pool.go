package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolType identifies the pricing curve a pool settles on.
type PoolType uint8

const (
	PoolTypeUnknown PoolType = iota
	PoolTypeWeighted
)

func (t PoolType) String() string {
	switch t {
	case PoolTypeWeighted:
		return "weighted"
	default:
		return "unknown"
	}
}

// FixedPointOne is the on-chain scale (1e18) for normalized weights and swap fees.
var FixedPointOne = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// weightSumTolerance bounds the allowed drift of sum(weights) from 1e18.
var weightSumTolerance = big.NewInt(1e12)

// PoolState is a point-in-time snapshot of a pool's on-chain data. Balances
// are raw token base units; weights and the swap fee are 1e18-scaled
// fractions. Snapshots are never mutated, a fresh fetch replaces the old one.
type PoolState struct {
	ID       common.Hash      `json:"id"`
	Address  common.Address   `json:"address"`
	Type     PoolType         `json:"type"`
	Tokens   []common.Address `json:"tokens"`
	Balances []*big.Int       `json:"balances"`
	Decimals []uint8          `json:"decimals"`
	Weights  []*big.Int       `json:"weights"`
	SwapFee  *big.Int         `json:"swap_fee"`
	Block    uint64           `json:"block"`
}

// Validate checks the parallel-slice layout and the weight/fee invariants.
func (s *PoolState) Validate() error {
	n := len(s.Tokens)
	if n < 2 {
		return fmt.Errorf("pool %s: need at least two tokens, got %d", s.Address.Hex(), n)
	}
	if len(s.Balances) != n || len(s.Weights) != n || len(s.Decimals) != n {
		return fmt.Errorf("pool %s: tokens/balances/weights/decimals length mismatch (%d/%d/%d/%d)",
			s.Address.Hex(), n, len(s.Balances), len(s.Weights), len(s.Decimals))
	}

	weightSum := new(big.Int)
	for i := 0; i < n; i++ {
		if s.Balances[i] == nil || s.Balances[i].Sign() < 0 {
			return fmt.Errorf("pool %s: invalid balance at index %d", s.Address.Hex(), i)
		}
		if s.Weights[i] == nil || s.Weights[i].Sign() <= 0 {
			return fmt.Errorf("pool %s: weight at index %d must be positive", s.Address.Hex(), i)
		}
		weightSum.Add(weightSum, s.Weights[i])
	}

	drift := new(big.Int).Sub(weightSum, FixedPointOne)
	if drift.CmpAbs(weightSumTolerance) > 0 {
		return fmt.Errorf("pool %s: normalized weights sum to %s, want 1e18", s.Address.Hex(), weightSum)
	}

	if s.SwapFee == nil || s.SwapFee.Sign() < 0 || s.SwapFee.Cmp(FixedPointOne) >= 0 {
		return fmt.Errorf("pool %s: swap fee must be in [0, 1e18)", s.Address.Hex())
	}

	return nil
}

// TokenIndex returns the position of token in the pool's token list.
func (s *PoolState) TokenIndex(token common.Address) (int, bool) {
	for i, t := range s.Tokens {
		if t == token {
			return i, true
		}
	}
	return 0, false
}

// Clone returns a deep copy safe to mutate independently of the original.
func (s *PoolState) Clone() *PoolState {
	out := &PoolState{
		ID:       s.ID,
		Address:  s.Address,
		Type:     s.Type,
		Tokens:   append([]common.Address(nil), s.Tokens...),
		Balances: make([]*big.Int, len(s.Balances)),
		Decimals: append([]uint8(nil), s.Decimals...),
		Weights:  make([]*big.Int, len(s.Weights)),
		Block:    s.Block,
	}
	for i, b := range s.Balances {
		if b != nil {
			out.Balances[i] = new(big.Int).Set(b)
		}
	}
	for i, w := range s.Weights {
		if w != nil {
			out.Weights[i] = new(big.Int).Set(w)
		}
	}
	if s.SwapFee != nil {
		out.SwapFee = new(big.Int).Set(s.SwapFee)
	}
	return out
}
