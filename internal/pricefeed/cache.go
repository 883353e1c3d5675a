package pricefeed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS price_points (
	token TEXT NOT NULL,
	at    INTEGER NOT NULL,
	price REAL NOT NULL,
	PRIMARY KEY (token, at)
);
CREATE INDEX IF NOT EXISTS idx_price_points_at ON price_points (at);
`

// PriceCache persists reference price snapshots in a local sqlite file so
// repeated backtests over the same window skip the network entirely.
type PriceCache struct {
	db *sql.DB
}

func NewPriceCache(dbPath string) (*PriceCache, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise schema: %w", err)
	}

	return &PriceCache{db: db}, nil
}

func (c *PriceCache) Close() error {
	return c.db.Close()
}

// PutSnapshot upserts every quote in the snapshot, keyed by token and
// timestamp.
func (c *PriceCache) PutSnapshot(snap Snapshot) error {
	if len(snap.Prices) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		"INSERT OR REPLACE INTO price_points (token, at, price) VALUES (?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	at := snap.At.Unix()
	for token, price := range snap.Prices {
		if _, err := stmt.Exec(token.Hex(), at, price); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Snapshots reconstructs the snapshots stored inside [from, to], ordered by
// timestamp. Quotes sharing a timestamp fold into one snapshot.
func (c *PriceCache) Snapshots(from, to time.Time) ([]Snapshot, error) {
	rows, err := c.db.Query(
		"SELECT token, at, price FROM price_points WHERE at >= ? AND at <= ? ORDER BY at",
		from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]Snapshot, 0)
	for rows.Next() {
		var (
			tokenHex string
			at       int64
			price    float64
		)
		if err := rows.Scan(&tokenHex, &at, &price); err != nil {
			return nil, err
		}

		ts := time.Unix(at, 0).UTC()
		if n := len(snapshots); n == 0 || !snapshots[n-1].At.Equal(ts) {
			snapshots = append(snapshots, Snapshot{
				At:     ts,
				Prices: make(map[common.Address]float64),
			})
		}
		snapshots[len(snapshots)-1].Prices[common.HexToAddress(tokenHex)] = price
	}
	return snapshots, rows.Err()
}

// Stats reports row counts for cache monitoring.
func (c *PriceCache) Stats() (map[string]int64, error) {
	stats := make(map[string]int64)

	var count int64
	if err := c.db.QueryRow("SELECT COUNT(*) FROM price_points").Scan(&count); err != nil {
		return nil, err
	}
	stats["price_points"] = count

	var tokens int64
	if err := c.db.QueryRow("SELECT COUNT(DISTINCT token) FROM price_points").Scan(&tokens); err != nil {
		return nil, err
	}
	stats["tokens"] = tokens

	return stats, nil
}

// CacheSource replays snapshots previously stored in a PriceCache.
type CacheSource struct {
	snapshots []Snapshot
	pos       int
}

func NewCacheSource(cache *PriceCache, from, to time.Time) (*CacheSource, error) {
	snapshots, err := cache.Snapshots(from, to)
	if err != nil {
		return nil, fmt.Errorf("load cached snapshots: %w", err)
	}
	return &CacheSource{snapshots: snapshots}, nil
}

func (s *CacheSource) Next(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if s.pos >= len(s.snapshots) {
		return Snapshot{}, io.EOF
	}
	snap := s.snapshots[s.pos]
	s.pos++
	return snap, nil
}

func (s *CacheSource) Close() error {
	return nil
}

// NewBackfillSource layers a sqlite cache over the HTTP backfill. A window
// already present in the cache is replayed without touching the network;
// otherwise the remote series is fetched once, stored, and replayed from disk.
// An empty cachePath disables caching and returns the plain HTTP source.
func NewBackfillSource(ctx context.Context, cfg HTTPSourceConfig, cachePath string, logger *zap.Logger) (Source, error) {
	if cachePath == "" {
		return NewHTTPSource(cfg)
	}

	cache, err := NewPriceCache(cachePath)
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	cached, err := cache.Snapshots(cfg.From, cfg.To)
	if err != nil {
		return nil, fmt.Errorf("probe cache: %w", err)
	}
	if len(cached) > 0 {
		logger.Info("serving reference prices from cache",
			zap.String("path", cachePath),
			zap.Int("snapshots", len(cached)))
		return &CacheSource{snapshots: cached}, nil
	}

	remote, err := NewHTTPSource(cfg)
	if err != nil {
		return nil, err
	}
	defer remote.Close()

	var stored int
	for {
		snap, err := remote.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("backfill prices: %w", err)
		}
		if err := cache.PutSnapshot(snap); err != nil {
			return nil, fmt.Errorf("store snapshot: %w", err)
		}
		stored++
	}
	logger.Info("backfilled reference prices into cache",
		zap.String("path", cachePath),
		zap.Int("snapshots", stored))

	return NewCacheSource(cache, cfg.From, cfg.To)
}
