// Package nimbusmetrics exposes nimbusdb's Prometheus metrics through a
// single owned Registry rather than the default global registry, so that
// multiple in-process databases (as in tests) never collide on metric names.
package nimbusmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the counters and histograms every component records
// against. It is constructed once by the facade and threaded down.
type Registry struct {
	reg *prometheus.Registry

	IngestRowsTotal     *prometheus.CounterVec
	IngestBytesTotal    *prometheus.CounterVec
	FlushDuration       prometheus.Histogram
	FlushesTotal        prometheus.Counter
	WALBytesWritten     prometheus.Counter
	WALSegmentsTrimmed  prometheus.Counter
	CompactionsTotal    prometheus.Counter
	CompactionDuration  prometheus.Histogram
	QueryLatency        *prometheus.HistogramVec
	QueryErrorsTotal    *prometheus.CounterVec
	ColumnLoadsTotal    prometheus.Counter
	ColumnEvictionTotal prometheus.Counter
	ResidentBytes       prometheus.Gauge

	TasksScheduledTotal prometheus.Counter
	TasksCompletedTotal prometheus.Counter
	TaskQueueDepth      prometheus.Gauge
	TaskExecDuration    prometheus.Histogram
}

// NewRegistry builds and registers every metric against a fresh
// prometheus.Registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		IngestRowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimbusdb_ingest_rows_total",
			Help: "Total number of rows ingested, by table.",
		}, []string{"table"}),
		IngestBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimbusdb_ingest_bytes_total",
			Help: "Total number of WAL bytes written, by table.",
		}, []string{"table"}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nimbusdb_flush_duration_seconds",
			Help:    "Time to flush an ingest buffer into a partition.",
			Buckets: prometheus.DefBuckets,
		}),
		FlushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimbusdb_flushes_total",
			Help: "Total number of ingest-buffer flushes.",
		}),
		WALBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimbusdb_wal_bytes_written_total",
			Help: "Total bytes written to WAL segments.",
		}),
		WALSegmentsTrimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimbusdb_wal_segments_trimmed_total",
			Help: "Total number of WAL segments deleted after compaction.",
		}),
		CompactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimbusdb_compactions_total",
			Help: "Total number of partition compactions performed.",
		}),
		CompactionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nimbusdb_compaction_duration_seconds",
			Help:    "Time taken to compact a set of partitions.",
			Buckets: prometheus.DefBuckets,
		}),
		QueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nimbusdb_query_latency_seconds",
			Help:    "Query execution latency, by table.",
			Buckets: prometheus.DefBuckets,
		}, []string{"table"}),
		QueryErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nimbusdb_query_errors_total",
			Help: "Total number of query errors, by kind.",
		}, []string{"kind"}),
		ColumnLoadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimbusdb_column_loads_total",
			Help: "Total number of columns loaded from the blob-writer.",
		}),
		ColumnEvictionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimbusdb_column_evictions_total",
			Help: "Total number of columns evicted from the resident LRU.",
		}),
		ResidentBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nimbusdb_resident_bytes",
			Help: "Current number of bytes held resident across all columns.",
		}),
		TasksScheduledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimbusdb_tasks_scheduled_total",
			Help: "Total number of tasks pushed onto the scheduler queue.",
		}),
		TasksCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nimbusdb_tasks_completed_total",
			Help: "Total number of tasks the scheduler ran to completion.",
		}),
		TaskQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nimbusdb_task_queue_depth",
			Help: "Current number of tasks waiting in the scheduler queue.",
		}),
		TaskExecDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nimbusdb_task_exec_duration_seconds",
			Help:    "Time a worker spends executing a single task slice.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.IngestRowsTotal, m.IngestBytesTotal,
		m.FlushDuration, m.FlushesTotal,
		m.WALBytesWritten, m.WALSegmentsTrimmed,
		m.CompactionsTotal, m.CompactionDuration,
		m.QueryLatency, m.QueryErrorsTotal,
		m.ColumnLoadsTotal, m.ColumnEvictionTotal,
		m.ResidentBytes,
		m.TasksScheduledTotal, m.TasksCompletedTotal,
		m.TaskQueueDepth, m.TaskExecDuration,
	)
	return m
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (m *Registry) Gatherer() prometheus.Gatherer { return m.reg }

// Timer measures elapsed wall-clock time between NewTimer and ObserveDuration.
type Timer struct{ start time.Time }

// NewTimer starts a timer.
func NewTimer() Timer { return Timer{start: time.Now()} }

// ObserveDuration records the elapsed time on histogram.
func (t Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time on a labeled histogram.
func (t Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
