package netwatch

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-ping/ping"
	"go.uber.org/zap"
)

// Config holds monitor settings. Zero values fall back to the defaults.
type Config struct {
	Host string
	// Interval separates probe rounds.
	Interval time.Duration
	// ProbeCount is the number of echo requests per round.
	ProbeCount   int
	ProbeTimeout time.Duration
	// MaxMedianRTT triggers a warning when the rolling median crosses it.
	MaxMedianRTT time.Duration
	// MaxLossPct triggers a warning when one round loses more packets.
	MaxLossPct float64
	// WindowSize bounds the rolling RTT window.
	WindowSize int
}

const (
	defaultInterval     = 30 * time.Second
	defaultProbeCount   = 3
	defaultProbeTimeout = 10 * time.Second
	defaultMaxMedianRTT = 250 * time.Millisecond
	defaultMaxLossPct   = 20.0
	defaultWindowSize   = 20
)

// Monitor pings the RPC host on an interval and warns when the rolling
// median RTT or the per-round packet loss crosses the configured thresholds.
// The bot keeps trading either way; a slow endpoint only costs opportunity,
// so the monitor observes and never intervenes.
type Monitor struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	window []time.Duration
}

// NewMonitor validates the host and applies defaults.
func NewMonitor(cfg Config, logger *zap.Logger) (*Monitor, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.ProbeCount <= 0 {
		cfg.ProbeCount = defaultProbeCount
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.MaxMedianRTT <= 0 {
		cfg.MaxMedianRTT = defaultMaxMedianRTT
	}
	if cfg.MaxLossPct <= 0 {
		cfg.MaxLossPct = defaultMaxLossPct
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindowSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{cfg: cfg, logger: logger}, nil
}

// HostFromURL extracts the pingable host from an RPC or websocket URL.
func HostFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}

	if parsed, err := url.Parse(raw); err == nil && parsed.Hostname() != "" {
		return parsed.Hostname(), nil
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		return host, nil
	}
	return raw, nil
}

// Run probes until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("rpc latency monitor started",
		zap.String("host", m.cfg.Host),
		zap.Duration("interval", m.cfg.Interval),
		zap.Duration("max_median_rtt", m.cfg.MaxMedianRTT),
	)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.probe(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// MedianRTT returns the rolling median over the recent probe rounds, zero
// until the first round completes.
func (m *Monitor) MedianRTT() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return median(m.window)
}

// probe runs one unprivileged ping round. Failures are logged and skipped;
// the next round starts fresh.
func (m *Monitor) probe(ctx context.Context) {
	pinger, err := ping.NewPinger(m.cfg.Host)
	if err != nil {
		m.logger.Warn("latency probe setup failed",
			zap.String("host", m.cfg.Host), zap.Error(err))
		return
	}
	pinger.Count = m.cfg.ProbeCount
	pinger.Timeout = m.cfg.ProbeTimeout
	pinger.SetPrivileged(false)

	done := make(chan error, 1)
	go func() { done <- pinger.Run() }()

	select {
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return
	case err := <-done:
		if err != nil {
			m.logger.Warn("latency probe failed",
				zap.String("host", m.cfg.Host), zap.Error(err))
			return
		}
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		m.logger.Warn("latency probe received no replies",
			zap.String("host", m.cfg.Host), zap.Int("sent", stats.PacketsSent))
		return
	}

	medianRTT := m.record(stats.AvgRtt)
	m.logger.Debug("latency probe",
		zap.String("host", m.cfg.Host),
		zap.Duration("avg_rtt", stats.AvgRtt),
		zap.Duration("median_rtt", medianRTT),
		zap.Float64("loss_pct", stats.PacketLoss),
	)

	if medianRTT > m.cfg.MaxMedianRTT {
		m.logger.Warn("rpc endpoint latency above threshold",
			zap.String("host", m.cfg.Host),
			zap.Duration("median_rtt", medianRTT),
			zap.Duration("max_median_rtt", m.cfg.MaxMedianRTT),
		)
	}
	if stats.PacketLoss > m.cfg.MaxLossPct {
		m.logger.Warn("rpc endpoint packet loss above threshold",
			zap.String("host", m.cfg.Host),
			zap.Float64("loss_pct", stats.PacketLoss),
			zap.Float64("max_loss_pct", m.cfg.MaxLossPct),
		)
	}
}

// record pushes one round's average RTT into the rolling window and returns
// the new median.
func (m *Monitor) record(rtt time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window = append(m.window, rtt)
	if len(m.window) > m.cfg.WindowSize {
		m.window = m.window[len(m.window)-m.cfg.WindowSize:]
	}
	return median(m.window)
}

func median(window []time.Duration) time.Duration {
	if len(window) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(window))
	copy(sorted, window)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
