package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"voicehub/contract"
	"voicehub/observability"
)

var _ contract.Worker = (*HealthWorker)(nil)

// HealthWorker samples the router's own process (CPU, RSS) on a fixed
// interval and folds the numbers into the stats manager for the admin
// surface.
type HealthWorker struct {
	log      *slog.Logger
	interval time.Duration
	stats    *observability.StatsManager
}

func NewHealthWorker(log *slog.Logger, interval time.Duration, stats *observability.StatsManager) *HealthWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthWorker{log: log, interval: interval, stats: stats}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	w.log.Info("Starting health monitoring worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			w.stats.SetProcessStats(cpu, rss)
			w.log.Debug("Health sample", "cpu_percent", cpu, "rss_bytes", rss)
		}
	}
}

// selfStats reads memory and CPU usage for the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
