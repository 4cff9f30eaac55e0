package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats is the slice of pgxpool statistics exported as metrics.
type PoolStats struct {
	Acquired         int32
	Idle             int32
	Total            int32
	Max              int32
	AcquireCount     int64
	AcquireDuration  time.Duration
	EmptyAcquires    int64
	CanceledAcquires int64
}

// StatsOf snapshots the statistics of pool.
func StatsOf(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		Acquired:         s.AcquiredConns(),
		Idle:             s.IdleConns(),
		Total:            s.TotalConns(),
		Max:              s.MaxConns(),
		AcquireCount:     s.AcquireCount(),
		AcquireDuration:  s.AcquireDuration(),
		EmptyAcquires:    s.EmptyAcquireCount(),
		CanceledAcquires: s.CanceledAcquireCount(),
	}
}

// PoolCollector exports connection pool statistics of the storage backend.
// Values are read on every scrape.
type PoolCollector struct {
	stats func() PoolStats

	conns            *prometheus.Desc
	maxConns         *prometheus.Desc
	acquires         *prometheus.Desc
	acquireSeconds   *prometheus.Desc
	waitedAcquires   *prometheus.Desc
	canceledAcquires *prometheus.Desc
}

// NewPoolCollector builds a collector over the given stats source.
func NewPoolCollector(stats func() PoolStats) *PoolCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc("storefront_db_pool_"+name, help, labels, nil)
	}
	return &PoolCollector{
		stats:            stats,
		conns:            desc("connections", "Pool connections by state", "state"),
		maxConns:         desc("max_connections", "Configured connection limit"),
		acquires:         desc("acquires_total", "Connections handed out by the pool"),
		acquireSeconds:   desc("acquire_seconds_total", "Time spent acquiring connections"),
		waitedAcquires:   desc("waited_acquires_total", "Acquires that had to wait for a free connection"),
		canceledAcquires: desc("canceled_acquires_total", "Acquires abandoned because the context ended"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
	ch <- c.maxConns
	ch <- c.acquires
	ch <- c.acquireSeconds
	ch <- c.waitedAcquires
	ch <- c.canceledAcquires
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.conns, float64(s.Acquired), "acquired")
	gauge(c.conns, float64(s.Idle), "idle")
	gauge(c.conns, float64(s.Total-s.Acquired-s.Idle), "constructing")
	gauge(c.maxConns, float64(s.Max))
	counter(c.acquires, float64(s.AcquireCount))
	counter(c.acquireSeconds, s.AcquireDuration.Seconds())
	counter(c.waitedAcquires, float64(s.EmptyAcquires))
	counter(c.canceledAcquires, float64(s.CanceledAcquires))
}

// RegisterPoolMetrics registers a collector for pool with reg. Registering
// the same pool twice is not an error.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool) error {
	err := reg.Register(NewPoolCollector(func() PoolStats { return StatsOf(pool) }))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		return fmt.Errorf("register pool metrics: %w", err)
	}
	return nil
}
