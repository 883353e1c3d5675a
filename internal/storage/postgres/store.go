package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vaultArb/internal/model"
)

// Store provides Postgres persistence for trades and runner state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertTrades inserts or updates trade records. Records keyed by the same
// pool, observation time and direction replace the earlier row, so a
// simulated trade later submitted on chain keeps a single entry.
func (s *Store) UpsertTrades(ctx context.Context, trades []model.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, trade := range trades {
		batch.Queue(`
			INSERT INTO arb_trades (
				observed_at, pool_id, pool_address, token_in, token_out,
				amount_in, expected_out, spot_before, spot_target, spot_after,
				status, tx_hash, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
			ON CONFLICT (pool_id, observed_at, token_in, token_out)
			DO UPDATE SET
				amount_in = EXCLUDED.amount_in,
				expected_out = EXCLUDED.expected_out,
				spot_before = EXCLUDED.spot_before,
				spot_target = EXCLUDED.spot_target,
				spot_after = EXCLUDED.spot_after,
				status = EXCLUDED.status,
				tx_hash = EXCLUDED.tx_hash,
				updated_at = now()
		`,
			trade.Timestamp,
			trade.PoolID,
			trade.PoolAddress,
			trade.TokenIn,
			trade.TokenOut,
			trade.AmountIn,
			trade.ExpectedOut,
			trade.SpotBefore,
			trade.SpotTarget,
			trade.SpotAfter,
			trade.Status,
			trade.TxHash,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range trades {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// TradeJournal adapts the store to the batch journal interface the runners
// write through, binding the context the writes run under.
type TradeJournal struct {
	Context context.Context
	Store   *Store
}

func (j *TradeJournal) PutTradeBatch(trades []model.TradeRecord) error {
	return j.Store.UpsertTrades(j.Context, trades)
}

// LoadState reads the last processed snapshot timestamp recorded under name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts uint64
	err := s.pool.QueryRow(ctx,
		`SELECT last_processed_ts FROM runner_state WHERE name = $1`, name).Scan(&ts)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("load state %q: %w", name, err)
	}
	return ts, true, nil
}

// SaveState records the last processed snapshot timestamp under name. The
// resume point never moves backwards, so a replayed older snapshot or a
// second runner instance cannot rewind it.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runner_state AS rs (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = GREATEST(rs.last_processed_ts, EXCLUDED.last_processed_ts),
		    updated_at = now()
	`, name, ts)
	if err != nil {
		return fmt.Errorf("save state %q: %w", name, err)
	}
	return nil
}
