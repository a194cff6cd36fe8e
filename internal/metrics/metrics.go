// Package metrics reports engine counters to Redis for centralized access.
// The collector subscribes to the alert fan-out and counts lifecycle
// transitions; scan totals are recorded by the scan jobs. A snapshot is
// written to Redis periodically and expires when the engine stops reporting.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"alert-engine/internal/alert"
	"alert-engine/internal/events"
)

const (
	// MetricsKeyPrefix is the Redis key prefix for service metrics.
	MetricsKeyPrefix = "metrics:"
	// MetricsTTL is how long metrics stay in Redis if not refreshed.
	MetricsTTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// EngineMetrics is the snapshot written to Redis.
type EngineMetrics struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "unhealthy"

	// Counters (monotonically increasing since start)
	AlertsCreated   uint64 `json:"alerts_created"`
	AlertsEscalated uint64 `json:"alerts_escalated"`
	AlertsResolved  uint64 `json:"alerts_resolved"`
	ScansRun        uint64 `json:"scans_run"`
	SubjectsScanned uint64 `json:"subjects_scanned"`
	ScanFailures    uint64 `json:"scan_failures"`

	// Rate (per report interval)
	EventsPerSecond float64 `json:"events_per_second"`

	// Per transition and kind, e.g. "created:stock-critical"
	ByKind map[string]uint64 `json:"by_kind,omitempty"`
}

// Collector counts engine activity and reports it to Redis.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	// Atomic counters
	alertsCreated   atomic.Uint64
	alertsEscalated atomic.Uint64
	alertsResolved  atomic.Uint64
	scansRun        atomic.Uint64
	subjectsScanned atomic.Uint64
	scanFailures    atomic.Uint64

	// For rate calculation
	lastReportTime time.Time
	lastEventCount uint64

	// Per-kind counters
	kindMu       sync.RWMutex
	kindCounters map[string]*atomic.Uint64

	// Stop channel
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a metrics collector reporting under the given service name.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		lastReportTime: time.Now().UTC(),
		kindCounters:   make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.writeMetrics(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.writeMetrics(context.Background()) // Final write
				return
			case <-ticker.C:
				c.writeMetrics(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Name identifies the collector in fan-out logs.
func (c *Collector) Name() string {
	return "metrics"
}

// OnAlertEvent counts one lifecycle transition. It never fails.
func (c *Collector) OnAlertEvent(ctx context.Context, ev *events.AlertEvent) error {
	switch ev.Type {
	case alert.TransitionCreated:
		c.alertsCreated.Add(1)
	case alert.TransitionEscalated:
		c.alertsEscalated.Add(1)
	case alert.TransitionResolved:
		c.alertsResolved.Add(1)
	default:
		return nil
	}
	c.incrementKind(string(ev.Type) + ":" + string(ev.Alert.Kind))
	return nil
}

// RecordScan adds one finished scan to the totals.
func (c *Collector) RecordScan(scanned, failed int) {
	c.scansRun.Add(1)
	if scanned > 0 {
		c.subjectsScanned.Add(uint64(scanned))
	}
	if failed > 0 {
		c.scanFailures.Add(uint64(failed))
	}
}

// incrementKind increments a per-kind counter by name.
func (c *Collector) incrementKind(name string) {
	c.kindMu.RLock()
	counter, exists := c.kindCounters[name]
	c.kindMu.RUnlock()

	if !exists {
		c.kindMu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = c.kindCounters[name]; !exists {
			counter = &atomic.Uint64{}
			c.kindCounters[name] = counter
		}
		c.kindMu.Unlock()
	}
	counter.Add(1)
}

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *EngineMetrics {
	now := time.Now().UTC()
	created := c.alertsCreated.Load()
	escalated := c.alertsEscalated.Load()
	resolved := c.alertsResolved.Load()
	eventCount := created + escalated + resolved

	// Calculate rate
	elapsed := now.Sub(c.lastReportTime).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(eventCount-c.lastEventCount) / elapsed
	}

	// Build per-kind counters map
	c.kindMu.RLock()
	byKind := make(map[string]uint64, len(c.kindCounters))
	for name, counter := range c.kindCounters {
		byKind[name] = counter.Load()
	}
	c.kindMu.RUnlock()

	return &EngineMetrics{
		ServiceName:     c.serviceName,
		StartedAt:       c.startedAt,
		LastUpdated:     now,
		Status:          "healthy",
		AlertsCreated:   created,
		AlertsEscalated: escalated,
		AlertsResolved:  resolved,
		ScansRun:        c.scansRun.Load(),
		SubjectsScanned: c.subjectsScanned.Load(),
		ScanFailures:    c.scanFailures.Load(),
		EventsPerSecond: rate,
		ByKind:          byKind,
	}
}

// writeMetrics writes current metrics to Redis.
func (c *Collector) writeMetrics(ctx context.Context) {
	if c.redis == nil {
		return
	}

	metrics := c.GetSnapshot()

	// Update rate calculation state
	c.lastReportTime = metrics.LastUpdated
	c.lastEventCount = metrics.AlertsCreated + metrics.AlertsEscalated + metrics.AlertsResolved

	data, err := json.Marshal(metrics)
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	key := MetricsKeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, MetricsTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "service", c.serviceName, "key", key)
}

// Reader reads engine metrics back from Redis.
type Reader struct {
	redis *redis.Client
}

// NewReader creates a new metrics reader.
func NewReader(redisClient *redis.Client) *Reader {
	return &Reader{redis: redisClient}
}

// GetServiceMetrics retrieves metrics for a service by name.
func (r *Reader) GetServiceMetrics(ctx context.Context, serviceName string) (*EngineMetrics, error) {
	key := MetricsKeyPrefix + serviceName
	data, err := r.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no metrics found for service: %s", serviceName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var metrics EngineMetrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	// Mark metrics stale when the engine stopped refreshing them.
	if time.Since(metrics.LastUpdated) > MetricsTTL {
		metrics.Status = "unhealthy"
	}

	return &metrics, nil
}
