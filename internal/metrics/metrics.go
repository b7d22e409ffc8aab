// Package metrics exposes pipeline and cache counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parascope"

// Metrics implements indexer.Hooks and cache.Observer.
type Metrics struct {
	registry *prometheus.Registry

	blocksEmitted       *prometheus.CounterVec
	blockSeconds        *prometheus.HistogramVec
	decodeErrors        *prometheus.CounterVec
	inclusionsForwarded *prometheus.CounterVec
	pipelinesStopped    *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec
	recordsWritten      *prometheus.CounterVec
	queueDepth          prometheus.Gauge
}

func New() (*Metrics, error) {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		blocksEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_emitted_total",
			Help:      "number of blocks published to the merge queue",
		}, []string{"chain"}),
		blockSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_seconds",
			Help:      "time from block fetch to publication",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"chain"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "number of records that failed to decode",
		}, []string{"chain", "kind"}),
		inclusionsForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inclusions_forwarded_total",
			Help:      "number of candidate inclusions handed to child pipelines",
		}, []string{"chain"}),
		pipelinesStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipelines_stopped_total",
			Help:      "number of pipelines that ended with an error",
		}, []string{"chain"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "number of cache lookups by entry kind and outcome",
		}, []string{"kind", "result"}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "number of records handed to sinks",
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "records waiting in the merge queue",
		}),
	}

	err := errors.Join(
		r.Register(m.blocksEmitted),
		r.Register(m.blockSeconds),
		r.Register(m.decodeErrors),
		r.Register(m.inclusionsForwarded),
		r.Register(m.pipelinesStopped),
		r.Register(m.cacheLookups),
		r.Register(m.recordsWritten),
		r.Register(m.queueDepth),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BlockEmitted(chain string, took time.Duration) {
	m.blocksEmitted.WithLabelValues(chain).Inc()
	m.blockSeconds.WithLabelValues(chain).Observe(took.Seconds())
}

func (m *Metrics) DecodeError(chain, kind string) {
	m.decodeErrors.WithLabelValues(chain, kind).Inc()
}

func (m *Metrics) InclusionForwarded(chain string) {
	m.inclusionsForwarded.WithLabelValues(chain).Inc()
}

func (m *Metrics) PipelineStopped(chain string) {
	m.pipelinesStopped.WithLabelValues(chain).Inc()
}

func (m *Metrics) CacheHit(kind string) {
	m.cacheLookups.WithLabelValues(kind, "hit").Inc()
}

func (m *Metrics) CacheMiss(kind string) {
	m.cacheLookups.WithLabelValues(kind, "miss").Inc()
}

// RecordsWritten counts records of one kind delivered to the sinks.
func (m *Metrics) RecordsWritten(kind string, n int) {
	m.recordsWritten.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
