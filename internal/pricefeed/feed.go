package pricefeed

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is one observation of external market prices keyed by token
// address. Reference prices are an approximate outside signal; float64 is
// acceptable here and settlement math never touches them directly.
type Snapshot struct {
	At     time.Time                  `json:"at"`
	Prices map[common.Address]float64 `json:"prices"`
}

// Price returns the quote for token, if present.
func (s Snapshot) Price(token common.Address) (float64, bool) {
	price, ok := s.Prices[token]
	return price, ok
}

// Source yields time-ordered price snapshots. Next returns io.EOF once the
// source is exhausted; live sources block until the next update or context
// cancellation.
type Source interface {
	Next(ctx context.Context) (Snapshot, error)
	Close() error
}
