// Package metrics exposes Prometheus instrumentation for the queue engine
// and its storage layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the engine-facing Prometheus metrics. The HTTP layer
// serves them via promhttp; the service layer feeds them.
type Collector struct {
	jobsPut       prometheus.Counter
	jobsPopped    prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobsReclaimed prometheus.Counter
	jobsCanceled  prometheus.Counter

	waitSeconds prometheus.Histogram
	runSeconds  prometheus.Histogram

	opSeconds *prometheus.HistogramVec
}

// NewCollector builds and registers the collector on the given registry
// (prometheus.DefaultRegisterer when nil).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		jobsPut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quarry_jobs_put_total",
			Help: "Total number of jobs put (created or moved)",
		}),
		jobsPopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quarry_jobs_popped_total",
			Help: "Total number of jobs leased to workers",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quarry_jobs_completed_total",
			Help: "Total number of jobs completed",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quarry_jobs_failed_total",
			Help: "Total number of jobs moved to the failure ledger",
		}),
		jobsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quarry_jobs_reclaimed_total",
			Help: "Total number of expired leases reclaimed",
		}),
		jobsCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quarry_jobs_canceled_total",
			Help: "Total number of jobs canceled",
		}),
		waitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quarry_job_wait_seconds",
			Help:    "Time jobs spent waiting from enqueue to pop",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		runSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quarry_job_run_seconds",
			Help:    "Time jobs spent processing from pop to completion",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		opSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quarry_engine_op_seconds",
			Help:    "Latency of engine operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(
		c.jobsPut, c.jobsPopped, c.jobsCompleted, c.jobsFailed,
		c.jobsReclaimed, c.jobsCanceled,
		c.waitSeconds, c.runSeconds, c.opSeconds,
	)
	return c
}

func (c *Collector) IncPut()       { c.jobsPut.Inc() }
func (c *Collector) IncCompleted() { c.jobsCompleted.Inc() }
func (c *Collector) IncFailed()    { c.jobsFailed.Inc() }
func (c *Collector) IncReclaimed() { c.jobsReclaimed.Inc() }
func (c *Collector) IncCanceled()  { c.jobsCanceled.Inc() }

func (c *Collector) AddPopped(n int) { c.jobsPopped.Add(float64(n)) }

// ObserveJob records wait/run durations for a finished job.
func (c *Collector) ObserveJob(waitSec, runSec float64) {
	if waitSec >= 0 {
		c.waitSeconds.Observe(waitSec)
	}
	if runSec >= 0 {
		c.runSeconds.Observe(runSec)
	}
}

// ObserveOp records the latency of one engine operation.
func (c *Collector) ObserveOp(op string, elapsed time.Duration) {
	c.opSeconds.WithLabelValues(op).Observe(elapsed.Seconds())
}
