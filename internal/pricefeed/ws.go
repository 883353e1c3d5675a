package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSSourceConfig configures the live ticker stream.
type WSSourceConfig struct {
	Endpoint string
	// Assets maps each pool token to the symbol the stream quotes it under.
	Assets map[common.Address]string

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultWSConfig returns the stream defaults.
func DefaultWSConfig() WSSourceConfig {
	return WSSourceConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

type wsSubscribe struct {
	Op     string   `json:"op"`
	Assets []string `json:"assets"`
}

type wsTick struct {
	At     int64              `json:"at"`
	Prices map[string]float64 `json:"prices"`
}

// WSSource streams reference prices from a websocket ticker feed. The
// connection is kept alive with ping frames and re-established with
// exponential backoff when reads fail; the subscription is replayed after
// every reconnect.
type WSSource struct {
	cfg      WSSourceConfig
	bySymbol map[string]common.Address
	logger   *zap.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	out     chan Snapshot
	dropped atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

func NewWSSource(ctx context.Context, cfg WSSourceConfig, logger *zap.Logger) (*WSSource, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if len(cfg.Assets) == 0 {
		return nil, fmt.Errorf("at least one asset mapping is required")
	}
	defaults := DefaultWSConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = defaults.MaxReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &WSSource{
		cfg:      cfg,
		bySymbol: make(map[string]common.Address, len(cfg.Assets)),
		logger:   logger,
		out:      make(chan Snapshot, 256),
		done:     make(chan struct{}),
	}
	for token, symbol := range cfg.Assets {
		s.bySymbol[symbol] = token
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Next returns the next ticker snapshot. Returns io.EOF after Close.
func (s *WSSource) Next(ctx context.Context) (Snapshot, error) {
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-s.done:
		return Snapshot{}, io.EOF
	case snap, ok := <-s.out:
		if !ok {
			return Snapshot{}, io.EOF
		}
		return snap, nil
	}
}

// Dropped reports how many ticks were discarded because the consumer fell
// behind. Only the freshest prices matter for sizing, so the stream never
// blocks on a slow consumer.
func (s *WSSource) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *WSSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

// connect dials the endpoint and replays the subscription.
func (s *WSSource) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	assets := make([]string, 0, len(s.bySymbol))
	for symbol := range s.bySymbol {
		assets = append(assets, symbol)
	}
	sort.Strings(assets)

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteJSON(wsSubscribe{Op: "subscribe", Assets: assets}); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

func (s *WSSource) readLoop() {
	defer s.wg.Done()

	delay := s.cfg.ReconnectDelay
	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.reconnect(delay) {
				return
			}
			delay *= 2
			if delay > s.cfg.MaxReconnectDelay {
				delay = s.cfg.MaxReconnectDelay
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Warn("ticker stream read failed", zap.Error(err))

			s.connMu.Lock()
			if s.conn != nil {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			continue
		}

		delay = s.cfg.ReconnectDelay
		s.handleTick(message)
	}
}

// reconnect waits for the backoff delay and dials again. Returns false when
// the source is shutting down.
func (s *WSSource) reconnect(delay time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-time.After(delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		s.logger.Warn("ticker stream reconnect failed", zap.Error(err))
		return !s.closed.Load()
	}
	s.logger.Info("ticker stream reconnected")
	return true
}

func (s *WSSource) handleTick(message []byte) {
	var tick wsTick
	if err := json.Unmarshal(message, &tick); err != nil || tick.At == 0 {
		return
	}

	prices := make(map[common.Address]float64, len(tick.Prices))
	for symbol, price := range tick.Prices {
		token, ok := s.bySymbol[symbol]
		if !ok || price <= 0 {
			continue
		}
		prices[token] = price
	}
	if len(prices) == 0 {
		return
	}

	snap := Snapshot{At: time.UnixMilli(tick.At).UTC(), Prices: prices}
	select {
	case s.out <- snap:
	case <-s.done:
	default:
		s.dropped.Add(1)
	}
}

func (s *WSSource) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.logger.Debug("ticker stream ping failed", zap.Error(err))
				}
			}
			s.connMu.Unlock()
		}
	}
}
