// Package resourcemon periodically samples system-wide CPU usage and reports
// it through the metrics registry. It does not feed samples into analytics.
package resourcemon

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/sirupsen/logrus"

	"github.com/mdzesseis/logstream/internal/metrics"
)

// Config tunes the resource monitor's sampling cadence.
type Config struct {
	Enabled       bool
	CheckInterval time.Duration
}

// DefaultConfig samples every ten seconds when enabled.
func DefaultConfig() Config {
	return Config{Enabled: false, CheckInterval: 10 * time.Second}
}

// Monitor periodically samples CPU time and reports it via the metrics
// registry.
type Monitor struct {
	config  Config
	logger  *logrus.Logger
	metrics *metrics.Registry

	mu       sync.Mutex
	lastTime cpu.TimesStat
	haveLast bool
}

// NewMonitor constructs a Monitor.
func NewMonitor(config Config, reg *metrics.Registry, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Monitor{config: config, metrics: reg, logger: logger}
}

// Run samples on config.CheckInterval until ctx is canceled. Intended to
// run in its own goroutine.
func (m *Monitor) Run(ctx context.Context) {
	if !m.config.Enabled {
		return
	}

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		m.logger.WithError(err).Warn("resourcemon: cpu.Times failed")
		return
	}
	current := times[0]

	m.mu.Lock()
	previous := m.lastTime
	hadPrevious := m.haveLast
	m.lastTime = current
	m.haveLast = true
	m.mu.Unlock()

	if !hadPrevious {
		return
	}

	pct := cpuPercentBetween(previous, current)
	if m.metrics != nil {
		m.metrics.SetCPUUsagePercent(pct)
	}
	m.logger.WithField("cpu_percent", strconv.FormatFloat(pct, 'f', 2, 64)).Debug("resourcemon: sampled cpu usage")
}

// cpuPercentBetween computes busy-time percentage between two cumulative
// cpu.TimesStat samples.
func cpuPercentBetween(prev, curr cpu.TimesStat) float64 {
	prevIdle := prev.Idle + prev.Iowait
	currIdle := curr.Idle + curr.Iowait

	prevTotal := prevIdle + prev.User + prev.System + prev.Nice + prev.Irq + prev.Softirq + prev.Steal
	currTotal := currIdle + curr.User + curr.System + curr.Nice + curr.Irq + curr.Softirq + curr.Steal

	totalDelta := currTotal - prevTotal
	idleDelta := currIdle - prevIdle

	if totalDelta <= 0 {
		return 0
	}
	return (totalDelta - idleDelta) / totalDelta * 100
}
