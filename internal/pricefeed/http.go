package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultChunk       = 24 * time.Hour
	defaultInterval    = time.Minute
	fetchRetries       = 3
	fetchRetryDelay    = 500 * time.Millisecond
)

// HTTPSourceConfig describes a market history endpoint serving per-asset
// price series as {"prices": [[unix_ms, price], ...]}.
type HTTPSourceConfig struct {
	BaseURL string
	// Assets maps each pool token to the asset id the endpoint knows it by.
	Assets map[common.Address]string
	From   time.Time
	To     time.Time
	// Chunk caps the window covered by one request.
	Chunk time.Duration
	// Interval is the bucket width timestamps are aligned to when merging
	// per-asset series into snapshots.
	Interval time.Duration
}

// HTTPSource backfills reference prices over REST and replays them as
// snapshots. Series are fetched lazily on the first Next call.
type HTTPSource struct {
	cfg    HTTPSourceConfig
	client *http.Client

	snapshots []Snapshot
	pos       int
	loaded    bool
}

// HTTPOption configures HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

func NewHTTPSource(cfg HTTPSourceConfig, opts ...HTTPOption) (*HTTPSource, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if len(cfg.Assets) == 0 {
		return nil, fmt.Errorf("at least one asset mapping is required")
	}
	if cfg.To.Before(cfg.From) {
		return nil, fmt.Errorf("range end must not precede range start")
	}
	if cfg.Chunk <= 0 {
		cfg.Chunk = defaultChunk
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	s := &HTTPSource{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *HTTPSource) Next(ctx context.Context) (Snapshot, error) {
	if !s.loaded {
		if err := s.load(ctx); err != nil {
			return Snapshot{}, err
		}
		s.loaded = true
	}
	if s.pos >= len(s.snapshots) {
		return Snapshot{}, io.EOF
	}
	snap := s.snapshots[s.pos]
	s.pos++
	return snap, nil
}

func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPSource) load(ctx context.Context) error {
	ranges, err := SplitRange(s.cfg.From, s.cfg.To, s.cfg.Chunk)
	if err != nil {
		return err
	}

	series := make(map[common.Address][]pricePoint, len(s.cfg.Assets))
	for token, asset := range s.cfg.Assets {
		for _, r := range ranges {
			points, err := s.fetchSeries(ctx, asset, r)
			if err != nil {
				return fmt.Errorf("fetch %s series: %w", asset, err)
			}
			series[token] = append(series[token], points...)
		}
	}

	s.snapshots = mergeSeries(series, s.cfg.Interval)
	return nil
}

type pricePoint struct {
	at    time.Time
	price float64
}

type seriesResponse struct {
	Prices [][]float64 `json:"prices"`
}

func (s *HTTPSource) fetchSeries(ctx context.Context, asset string, r TimeRange) ([]pricePoint, error) {
	query := url.Values{}
	query.Set("asset", asset)
	query.Set("from", fmt.Sprintf("%d", r.From.Unix()))
	query.Set("to", fmt.Sprintf("%d", r.To.Unix()))
	endpoint := fmt.Sprintf("%s/prices?%s", s.cfg.BaseURL, query.Encode())

	var lastErr error
	delay := fetchRetryDelay
	for attempt := 0; attempt <= fetchRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		points, err := s.fetchOnce(ctx, endpoint)
		if err == nil {
			return points, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d attempts: %w", fetchRetries+1, lastErr)
}

func (s *HTTPSource) fetchOnce(ctx context.Context, endpoint string) ([]pricePoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var decoded seriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}

	points := make([]pricePoint, 0, len(decoded.Prices))
	for _, pair := range decoded.Prices {
		if len(pair) != 2 || pair[1] <= 0 {
			continue
		}
		points = append(points, pricePoint{
			at:    time.UnixMilli(int64(pair[0])).UTC(),
			price: pair[1],
		})
	}
	return points, nil
}

// mergeSeries aligns per-token series onto interval buckets and emits one
// snapshot per bucket, carrying the last known price forward. Buckets seen
// before every token has quoted at least once are dropped.
func mergeSeries(series map[common.Address][]pricePoint, interval time.Duration) []Snapshot {
	byBucket := make(map[int64]map[common.Address]float64)
	for token, points := range series {
		for _, p := range points {
			bucket := p.at.Truncate(interval).Unix()
			if byBucket[bucket] == nil {
				byBucket[bucket] = make(map[common.Address]float64)
			}
			byBucket[bucket][token] = p.price
		}
	}

	buckets := make([]int64, 0, len(byBucket))
	for b := range byBucket {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	last := make(map[common.Address]float64, len(series))
	snapshots := make([]Snapshot, 0, len(buckets))
	for _, b := range buckets {
		for token, price := range byBucket[b] {
			last[token] = price
		}
		if len(last) < len(series) {
			continue
		}
		prices := make(map[common.Address]float64, len(last))
		for token, price := range last {
			prices[token] = price
		}
		snapshots = append(snapshots, Snapshot{
			At:     time.Unix(b, 0).UTC(),
			Prices: prices,
		})
	}
	return snapshots
}
