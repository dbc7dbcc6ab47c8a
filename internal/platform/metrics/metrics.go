package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch and submit outcomes used as label values.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Collector holds the coordinator's Prometheus metrics.
type Collector struct {
	fetchRequests      *prometheus.CounterVec
	tasksDispatched    prometheus.Counter
	fetchLatency       prometheus.Histogram
	resultsSubmitted   *prometheus.CounterVec
	assignmentsExpired prometheus.Counter
	reaperRuns         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewCollector registers the metrics with reg. When reg is also a
// Gatherer, Handler serves from it; otherwise from the default gatherer.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clusterizer_fetch_requests_total",
			Help: "fetch_tasks calls by outcome",
		}, []string{"outcome"}),
		tasksDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clusterizer_tasks_dispatched_total",
			Help: "Tasks handed out to workers",
		}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clusterizer_fetch_latency_seconds",
			Help:    "fetch_tasks transaction latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		resultsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clusterizer_results_submitted_total",
			Help: "submit_result calls by outcome",
		}, []string{"outcome"}),
		assignmentsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clusterizer_assignments_expired_total",
			Help: "Assignments moved to expired by the reaper",
		}),
		reaperRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clusterizer_reaper_runs_total",
			Help: "Reaper runs by outcome",
		}, []string{"outcome"}),
		gatherer: prometheus.DefaultGatherer,
	}

	reg.MustRegister(
		c.fetchRequests,
		c.tasksDispatched,
		c.fetchLatency,
		c.resultsSubmitted,
		c.assignmentsExpired,
		c.reaperRuns,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}
	return c
}

func (c *Collector) RecordFetch(outcome string, dispatched int, took time.Duration) {
	c.fetchRequests.WithLabelValues(outcome).Inc()
	c.tasksDispatched.Add(float64(dispatched))
	c.fetchLatency.Observe(took.Seconds())
}

func (c *Collector) RecordSubmit(outcome string) {
	c.resultsSubmitted.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordReaperRun(outcome string, expired int64) {
	c.reaperRuns.WithLabelValues(outcome).Inc()
	c.assignmentsExpired.Add(float64(expired))
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
