// Package cloudmetrics accounts platform usage for Farmer Power cloud:
// datasets generated, records loaded, cost events ingested, rollup runs.
// Metrics live in a private registry and are pushed on an interval; nothing
// here exposes a scrape endpoint.
package cloudmetrics

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// CloudMetrics is nil when cloud accounting is disabled; all methods are
// nil-safe so call sites do not have to care.
type CloudMetrics struct {
	registry *prometheus.Registry
	pusher   Pusher
	log      *zap.Logger

	costEvents        *prometheus.CounterVec
	datasetsGenerated *prometheus.CounterVec
	recordsLoaded     *prometheus.CounterVec
	rollupRuns        *prometheus.CounterVec
	dailySpendUSD     prometheus.Gauge
	farmersTotal      prometheus.Gauge
	memoryUsage       prometheus.Gauge
}

// New builds the accounting metrics on the given registry, or a fresh
// private one when registry is nil.
func New(registry *prometheus.Registry, pusher Pusher, instanceID, version string, log *zap.Logger) *CloudMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}

	constLabels := prometheus.Labels{}
	if strings.TrimSpace(instanceID) != "" {
		constLabels["instance_id"] = strings.TrimSpace(instanceID)
	}
	if strings.TrimSpace(version) != "" {
		constLabels["version"] = strings.TrimSpace(version)
	}

	c := &CloudMetrics{
		registry: registry,
		pusher:   pusher,
		log:      log.Named("cloudmetrics"),
		costEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "farmerpower_cost_events_total",
			Help:        "Cost events ingested, by cost type.",
			ConstLabels: constLabels,
		}, []string{"cost_type"}),
		datasetsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "farmerpower_datasets_generated_total",
			Help:        "Demo datasets generated, by profile.",
			ConstLabels: constLabels,
		}, []string{"profile"}),
		recordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "farmerpower_records_loaded_total",
			Help:        "Snapshot records applied to the store, by entity type.",
			ConstLabels: constLabels,
		}, []string{"entity"}),
		rollupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "farmerpower_rollup_runs_total",
			Help:        "Cost rollup job runs, by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		dailySpendUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "farmerpower_daily_spend_usd",
			Help:        "Most recent rolled-up spend for the current day.",
			ConstLabels: constLabels,
		}),
		farmersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "farmerpower_farmers_total",
			Help:        "Enrolled farmers in the store.",
			ConstLabels: constLabels,
		}),
		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "farmerpower_memory_usage_bytes",
			Help:        "Worker process memory obtained from the OS.",
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(
		c.costEvents,
		c.datasetsGenerated,
		c.recordsLoaded,
		c.rollupRuns,
		c.dailySpendUSD,
		c.farmersTotal,
		c.memoryUsage,
	)
	return c
}

func (c *CloudMetrics) IncCostEvent(costType string) {
	if c == nil {
		return
	}
	c.costEvents.WithLabelValues(normalizeLabel(costType)).Inc()
}

func (c *CloudMetrics) IncDatasetGenerated(profile string) {
	if c == nil {
		return
	}
	c.datasetsGenerated.WithLabelValues(normalizeLabel(profile)).Inc()
}

func (c *CloudMetrics) AddRecordsLoaded(entity string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.recordsLoaded.WithLabelValues(normalizeLabel(entity)).Add(float64(n))
}

func (c *CloudMetrics) IncRollupRun(outcome string) {
	if c == nil {
		return
	}
	c.rollupRuns.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (c *CloudMetrics) SetDailySpendUSD(v float64) {
	if c == nil {
		return
	}
	c.dailySpendUSD.Set(v)
}

func (c *CloudMetrics) SetFarmersTotal(count int64) {
	if c == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	c.farmersTotal.Set(float64(count))
}

func (c *CloudMetrics) SetMemoryUsage(bytes uint64) {
	if c == nil {
		return
	}
	c.memoryUsage.Set(float64(bytes))
}

// Push sends the current registry state through the configured pusher. A
// nil pusher means cloud accounting is off and Push is a no-op.
func (c *CloudMetrics) Push(ctx context.Context) error {
	if c == nil || c.pusher == nil {
		return nil
	}
	return c.pusher.Push(ctx, c.registry)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
