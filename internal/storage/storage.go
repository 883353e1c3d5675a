package storage

import "vaultArb/internal/model"

// Journal defines a sink for trade records.
type Journal interface {
	PutTradeBatch(trades []model.TradeRecord) error
}
