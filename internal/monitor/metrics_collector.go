package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const (
	metricsStreamName = "METRICS"
	MetricsSubject    = "metrics.duewatch"
)

// StatsProvider exposes evaluation counters
type StatsProvider interface {
	Stats() EvaluationStats
}

// Metrics is the payload published on MetricsSubject
type Metrics struct {
	Timestamp   time.Time       `json:"timestamp"`
	CPUUsage    float64         `json:"cpu_usage"`
	MemoryUsage float64         `json:"memory_usage"`
	Evaluation  EvaluationStats `json:"evaluation"`
}

// MetricsCollector collects process host and evaluation metrics
type MetricsCollector struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	stats    StatsProvider
	interval time.Duration
	mu       sync.RWMutex
	last     *Metrics
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(js nats.JetStreamContext, stats StatsProvider, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics-collector"),
		js:       js,
		stats:    stats,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start starts the metrics collector
func (c *MetricsCollector) Start(ctx context.Context) error {
	c.logger.Info("Starting metrics collector", zap.Duration("interval", c.interval))

	if err := ensureStream(c.js, &nats.StreamConfig{
		Name:     metricsStreamName,
		Subjects: []string{"metrics.*"},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	}); err != nil {
		return err
	}

	go c.collectLoop(ctx)

	return nil
}

// Stop stops the metrics collector
func (c *MetricsCollector) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping metrics collector")
		close(c.stop)
	})
}

// collectLoop runs the metrics collection loop
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collectMetrics()
		}
	}
}

// collectMetrics samples the host and publishes a snapshot
func (c *MetricsCollector) collectMetrics() {
	// zero interval compares against the previous call instead of blocking
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	metrics := &Metrics{
		Timestamp:   time.Now().UTC(),
		MemoryUsage: memInfo.UsedPercent,
		Evaluation:  c.stats.Stats(),
	}
	if len(cpuPercent) > 0 {
		metrics.CPUUsage = cpuPercent[0]
	}

	c.mu.Lock()
	c.last = metrics
	c.mu.Unlock()

	data, err := json.Marshal(metrics)
	if err != nil {
		c.logger.Error("Failed to marshal metrics", zap.Error(err))
		return
	}

	if _, err := c.js.Publish(MetricsSubject, data); err != nil {
		c.logger.Error("Failed to publish metrics", zap.Error(err))
		return
	}

	c.logger.Debug("Metrics collected",
		zap.Float64("cpu_usage", metrics.CPUUsage),
		zap.Float64("memory_usage", metrics.MemoryUsage),
		zap.Int("runs", metrics.Evaluation.Runs))
}

// Last returns the most recent snapshot, nil before the first tick
func (c *MetricsCollector) Last() *Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
