// Package metrics exposes a prometheus.Collector gathering this process's
// health at scrape time: outbound gateway circuit-breaker state, the size
// of the active-cascade registry, and process uptime.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shiftline/shiftline/internal/circuitbreaker"
)

// ActiveCascadeCounter returns the number of shifts with a live Notification
// Cascade in progress.
type ActiveCascadeCounter interface {
	ActiveShiftIDs(ctx context.Context) ([]string, error)
}

// BreakerStatsProvider exposes an outbound gateway client's circuit breaker
// counters.
type BreakerStatsProvider interface {
	Stats() circuitbreaker.Stats
}

// Collector is a prometheus.Collector gathering shiftline process metrics.
type Collector struct {
	cascades  ActiveCascadeCounter
	messaging BreakerStatsProvider
	voice     BreakerStatsProvider
	startTime time.Time

	activeCascadesDesc *prometheus.Desc
	breakerStateDesc   *prometheus.Desc
	breakerRejectsDesc *prometheus.Desc
	uptimeDesc         *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if
// unavailable.
func NewCollector(cascades ActiveCascadeCounter, messaging, voice BreakerStatsProvider, startTime time.Time) *Collector {
	return &Collector{
		cascades:  cascades,
		messaging: messaging,
		voice:     voice,
		startTime: startTime,

		activeCascadesDesc: prometheus.NewDesc(
			"shiftline_active_cascades",
			"Number of shifts with a Notification Cascade currently in progress",
			nil, nil,
		),
		breakerStateDesc: prometheus.NewDesc(
			"shiftline_gateway_breaker_open",
			"Whether an outbound gateway's circuit breaker is open (1=open, 0=closed/half-open)",
			[]string{"gateway"}, nil,
		),
		breakerRejectsDesc: prometheus.NewDesc(
			"shiftline_gateway_rejected_total",
			"Total requests an outbound gateway's circuit breaker has rejected",
			[]string{"gateway"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"shiftline_uptime_seconds",
			"Seconds since this process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCascadesDesc
	ch <- c.breakerStateDesc
	ch <- c.breakerRejectsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.cascades != nil {
		ids, err := c.cascades.ActiveShiftIDs(ctx)
		if err != nil {
			slog.Error("metrics: failed to count active cascades", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.activeCascadesDesc, prometheus.GaugeValue, float64(len(ids)),
			)
		}
	}

	c.collectBreaker(ch, "messaging", c.messaging)
	c.collectBreaker(ch, "voice", c.voice)

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue, time.Since(c.startTime).Seconds(),
	)
}

func (c *Collector) collectBreaker(ch chan<- prometheus.Metric, name string, provider BreakerStatsProvider) {
	if provider == nil {
		return
	}
	stats := provider.Stats()
	open := 0.0
	if stats.State == circuitbreaker.StateOpen.String() {
		open = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.breakerStateDesc, prometheus.GaugeValue, open, name)
	ch <- prometheus.MustNewConstMetric(c.breakerRejectsDesc, prometheus.CounterValue, float64(stats.TotalRejected), name)
}
