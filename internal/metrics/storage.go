package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorageMetrics implements pebblestore.MetricsHook, feeding storage
// latencies and sizes into Prometheus.
type StorageMetrics struct {
	readSeconds   prometheus.Histogram
	writeSeconds  prometheus.Histogram
	commitSeconds prometheus.Histogram
	commitOps     prometheus.Histogram
	bytesRead     prometheus.Counter
	bytesWritten  prometheus.Counter
}

// NewStorageMetrics builds and registers the storage hook on the given
// registry (prometheus.DefaultRegisterer when nil).
func NewStorageMetrics(reg prometheus.Registerer) *StorageMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &StorageMetrics{
		readSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quarry_storage_read_seconds",
			Help:    "Latency of point reads",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		writeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quarry_storage_write_seconds",
			Help:    "Latency of single-key writes",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		commitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quarry_storage_commit_seconds",
			Help:    "Latency of batch commits",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		commitOps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quarry_storage_commit_ops",
			Help:    "Number of operations per committed batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quarry_storage_read_bytes_total",
			Help: "Total bytes read from storage",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quarry_storage_written_bytes_total",
			Help: "Total bytes written to storage",
		}),
	}
	reg.MustRegister(
		m.readSeconds, m.writeSeconds, m.commitSeconds, m.commitOps,
		m.bytesRead, m.bytesWritten,
	)
	return m
}

func (m *StorageMetrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.writeSeconds.Observe(elapsed.Seconds())
	m.bytesWritten.Add(float64(bytes))
}

func (m *StorageMetrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.readSeconds.Observe(elapsed.Seconds())
	m.bytesRead.Add(float64(bytes))
}

func (m *StorageMetrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.commitSeconds.Observe(elapsed.Seconds())
	m.commitOps.Observe(float64(numOps))
	m.bytesWritten.Add(float64(bytes))
}
