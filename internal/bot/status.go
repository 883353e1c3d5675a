package bot

import (
	"sync"
	"time"

	"vaultArb/internal/model"
)

const recentTradeCap = 128

// Status is the shared board the runner writes and the HTTP surface reads.
type Status struct {
	mu         sync.RWMutex
	startedAt  time.Time
	paused     bool
	snapshots  uint64
	trades     uint64
	errors     uint64
	lastTickAt time.Time
	recent     []model.TradeRecord
}

// StatusView is the JSON shape served over HTTP.
type StatusView struct {
	StartedAt  time.Time `json:"started_at"`
	UptimeSecs int64     `json:"uptime_secs"`
	Paused     bool      `json:"paused"`
	Snapshots  uint64    `json:"snapshots"`
	Trades     uint64    `json:"trades"`
	Errors     uint64    `json:"errors"`
	LastTickAt time.Time `json:"last_tick_at"`
}

func NewStatus() *Status {
	return &Status{startedAt: time.Now().UTC()}
}

func (s *Status) MarkSnapshot(at time.Time) {
	s.mu.Lock()
	s.snapshots++
	s.lastTickAt = at
	s.mu.Unlock()
}

func (s *Status) MarkTrade(record model.TradeRecord) {
	s.mu.Lock()
	s.trades++
	s.recent = append(s.recent, record)
	if len(s.recent) > recentTradeCap {
		s.recent = s.recent[len(s.recent)-recentTradeCap:]
	}
	s.mu.Unlock()
}

func (s *Status) MarkError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *Status) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *Status) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *Status) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

func (s *Status) View() StatusView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatusView{
		StartedAt:  s.startedAt,
		UptimeSecs: int64(time.Since(s.startedAt).Seconds()),
		Paused:     s.paused,
		Snapshots:  s.snapshots,
		Trades:     s.trades,
		Errors:     s.errors,
		LastTickAt: s.lastTickAt,
	}
}

// RecentTrades returns up to limit most recent records, newest last.
func (s *Status) RecentTrades(limit int) []model.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]model.TradeRecord, limit)
	copy(out, s.recent[len(s.recent)-limit:])
	return out
}
