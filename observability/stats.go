// Package observability aggregates router metrics for the admin surface.
package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"voicehub/domain"
)

// latencyAlpha is the smoothing factor of the processing latency EMA.
const latencyAlpha = 0.2

// RouterStats is the snapshot served to operators.
type RouterStats struct {
	Processed      uint64         `json:"processed"`
	Delivered      uint64         `json:"delivered"`
	Failed         uint64         `json:"failed"`
	Rejected       uint64         `json:"rejected"`
	Expired        uint64         `json:"expired"`
	Retried        uint64         `json:"retried"`
	QueueDepths    map[string]int `json:"queue_depths"`
	AvgLatencyMs   float64        `json:"avg_latency_ms"`
	ActiveHandlers int            `json:"active_handlers"`
	AllocMemMb     uint64         `json:"alloc_mem_mb"`
	NumGC          uint32         `json:"num_gc"`
	CPUPercent     float64        `json:"cpu_percent"`
	RSSBytes       uint64         `json:"rss_bytes"`
	UptimeSeconds  float64        `json:"uptime_seconds"`
}

// StatsManager is the sole writer of router statistics. Counters are
// atomic so the hot path never takes the mutex; gauges and the latency
// EMA sit behind a RWMutex and are read only by Snapshot.
type StatsManager struct {
	log       *slog.Logger
	startedAt time.Time

	processed uint64
	delivered uint64
	failed    uint64
	rejected  uint64
	expired   uint64
	retried   uint64

	mu             sync.RWMutex
	queueDepths    [domain.NumPriorities]int
	latencyMs      float64
	latencySeeded  bool
	activeHandlers int
	cpuPercent     float64
	rssBytes       uint64
}

func NewStatsManager(log *slog.Logger) *StatsManager {
	return &StatsManager{log: log, startedAt: time.Now()}
}

func (s *StatsManager) IncrProcessed() { atomic.AddUint64(&s.processed, 1) }
func (s *StatsManager) IncrDelivered() { atomic.AddUint64(&s.delivered, 1) }
func (s *StatsManager) IncrFailed()    { atomic.AddUint64(&s.failed, 1) }
func (s *StatsManager) IncrRejected()  { atomic.AddUint64(&s.rejected, 1) }
func (s *StatsManager) IncrExpired()   { atomic.AddUint64(&s.expired, 1) }
func (s *StatsManager) IncrRetried()   { atomic.AddUint64(&s.retried, 1) }

// ObserveLatency folds one handler invocation duration into the EMA.
func (s *StatsManager) ObserveLatency(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.latencySeeded {
		s.latencyMs = ms
		s.latencySeeded = true
		return
	}
	s.latencyMs = latencyAlpha*ms + (1-latencyAlpha)*s.latencyMs
}

func (s *StatsManager) SetQueueDepth(p domain.Priority, depth int) {
	if p < 0 || p >= domain.NumPriorities {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueDepths[p] = depth
}

func (s *StatsManager) SetActiveHandlers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeHandlers = n
}

// SetProcessStats stores the self-reported health numbers from the
// health monitoring worker.
func (s *StatsManager) SetProcessStats(cpuPercent float64, rssBytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpuPercent = cpuPercent
	s.rssBytes = rssBytes
}

func (s *StatsManager) Snapshot() RouterStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s.mu.RLock()
	defer s.mu.RUnlock()

	depths := make(map[string]int, domain.NumPriorities)
	for p := domain.Priority(0); p < domain.NumPriorities; p++ {
		depths[p.String()] = s.queueDepths[p]
	}

	return RouterStats{
		Processed:      atomic.LoadUint64(&s.processed),
		Delivered:      atomic.LoadUint64(&s.delivered),
		Failed:         atomic.LoadUint64(&s.failed),
		Rejected:       atomic.LoadUint64(&s.rejected),
		Expired:        atomic.LoadUint64(&s.expired),
		Retried:        atomic.LoadUint64(&s.retried),
		QueueDepths:    depths,
		AvgLatencyMs:   s.latencyMs,
		ActiveHandlers: s.activeHandlers,
		AllocMemMb:     m.Alloc / 1024 / 1024,
		NumGC:          m.NumGC,
		CPUPercent:     s.cpuPercent,
		RSSBytes:       s.rssBytes,
		UptimeSeconds:  time.Since(s.startedAt).Seconds(),
	}
}
