// Package metrics exposes Prometheus collectors for the executor, the merge
// engine and the HTTP surface. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shardmerge"

// Metrics groups every collector. Build one per process with New.
type Metrics struct {
	gatherer prometheus.Gatherer

	GroupsTotal     prometheus.Counter
	GroupFailures   *prometheus.CounterVec
	ExecuteDuration prometheus.Histogram
	MergeTotal      *prometheus.CounterVec
	RowsMerged      prometheus.Counter
	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWith(reg, reg)
}

// NewWith registers all collectors on reg and serves them from gatherer
func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		GroupsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_groups_total",
			Help:      "Total number of execution groups run",
		}),
		GroupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_failures_total",
			Help:      "Total number of failed executions by error code",
		}, []string{"code"}),
		ExecuteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execute_duration_seconds",
			Help:      "Time to run every group of one execution context",
			Buckets:   prometheus.DefBuckets,
		}),
		MergeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_total",
			Help:      "Total number of merged results built, by strategy",
		}, []string{"strategy"}),
		RowsMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_merged_total",
			Help:      "Total number of rows returned to clients after merging",
		}),
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// ObserveExecute records one executor run
func (m *Metrics) ObserveExecute(groups int, elapsed time.Duration, code string) {
	if m == nil {
		return
	}
	m.GroupsTotal.Add(float64(groups))
	m.ExecuteDuration.Observe(elapsed.Seconds())
	if code != "" {
		m.GroupFailures.WithLabelValues(code).Inc()
	}
}

// IncMerge records the strategy chosen for one merged result
func (m *Metrics) IncMerge(strategy string) {
	if m == nil {
		return
	}
	m.MergeTotal.WithLabelValues(strategy).Inc()
}

// AddRows records rows handed to a client
func (m *Metrics) AddRows(n int) {
	if m == nil {
		return
	}
	m.RowsMerged.Add(float64(n))
}

// Handler serves the registered collectors
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
