package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stxbatch/internal/batcher"
)

const namespace = "stxbatch"

// Collector records coalescer events as Prometheus metrics.
// It implements batcher.Metrics.
type Collector struct {
	enqueued     prometheus.Counter
	pending      prometheus.Gauge
	batches      *prometheus.CounterVec
	batchSize    prometheus.Histogram
	batchLatency *prometheus.HistogramVec
	itemFailures *prometheus.CounterVec
}

var _ batcher.Metrics = (*Collector)(nil)

// NewCollector creates the collectors and registers them with reg
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_enqueued_total",
			Help:      "Reads accepted into a partition queue.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Reads waiting for their generation to dispatch.",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Dispatched batches by how they settled.",
		}, []string{"outcome"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Reads per dispatched batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		batchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Transport round trip per batch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		itemFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_failures_total",
			Help:      "Per-read failures inside otherwise successful batches.",
		}, []string{"kind"}),
	}

	for _, col := range []prometheus.Collector{
		c.enqueued, c.pending, c.batches, c.batchSize, c.batchLatency, c.itemFailures,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Enqueued counts a queued request
func (c *Collector) Enqueued() {
	c.enqueued.Inc()
	c.pending.Inc()
}

// Dispatched moves items out of the pending gauge and records the batch size
func (c *Collector) Dispatched(items int) {
	c.pending.Sub(float64(items))
	c.batchSize.Observe(float64(items))
}

// Settled records a finished batch by outcome
func (c *Collector) Settled(outcome batcher.BatchOutcome, elapsed time.Duration) {
	c.batches.WithLabelValues(string(outcome)).Inc()
	c.batchLatency.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// ItemFailed counts a request rejected inside an otherwise successful batch
func (c *Collector) ItemFailed(kind batcher.FailureKind) {
	c.itemFailures.WithLabelValues(string(kind)).Inc()
}
