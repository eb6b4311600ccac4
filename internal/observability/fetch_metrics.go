package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FetchCollector exposes Prometheus metrics for the geodata fetch
// queue. It satisfies the queue's MetricsRecorder interface, so a nil
// *FetchCollector is a valid no-op recorder.
type FetchCollector struct {
	gatherer prometheus.Gatherer

	DispatchesTotal *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	DispatchWait    prometheus.Histogram
	RateWindow      *prometheus.GaugeVec
}

// NewFetchCollector registers fetch queue metrics against the provided
// registerer.
func NewFetchCollector(reg prometheus.Registerer) (*FetchCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_dispatches_total",
		Help: "Completed fetch dispatches, labeled by request category and outcome.",
	}, []string{"category", "outcome"})
	dispatches, err := registerCounterVec(reg, dispatches, "fetch_dispatches_total")
	if err != nil {
		return nil, err
	}

	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fetch_queue_depth",
		Help: "Number of requests currently waiting in the fetch queue.",
	})
	depth, err = registerGauge(reg, depth, "fetch_queue_depth")
	if err != nil {
		return nil, err
	}

	wait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_dispatch_wait_seconds",
		Help:    "Time a request spent queued before its dispatch started.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	wait, err = registerHistogram(reg, wait, "fetch_dispatch_wait_seconds")
	if err != nil {
		return nil, err
	}

	window := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fetch_rate_window_count",
		Help: "Requests dispatched over the trailing rate window, per category.",
	}, []string{"category"})
	window, err = registerGaugeVec(reg, window, "fetch_rate_window_count")
	if err != nil {
		return nil, err
	}

	return &FetchCollector{
		gatherer:        gatherer,
		DispatchesTotal: dispatches,
		QueueDepth:      depth,
		DispatchWait:    wait,
		RateWindow:      window,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *FetchCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveDispatch records one completed dispatch and how long the
// request waited in the queue.
func (c *FetchCollector) ObserveDispatch(category, outcome string, queuedFor time.Duration) {
	if c == nil {
		return
	}
	if c.DispatchesTotal != nil {
		c.DispatchesTotal.WithLabelValues(category, outcome).Inc()
	}
	if c.DispatchWait != nil {
		c.DispatchWait.Observe(queuedFor.Seconds())
	}
}

// SetQueueDepth updates the queue depth gauge.
func (c *FetchCollector) SetQueueDepth(depth int) {
	if c == nil || c.QueueDepth == nil {
		return
	}
	c.QueueDepth.Set(float64(depth))
}

// SetRateWindowCount publishes the trailing-window dispatch count for
// one category.
func (c *FetchCollector) SetRateWindowCount(category string, count int) {
	if c == nil || c.RateWindow == nil {
		return
	}
	c.RateWindow.WithLabelValues(category).Set(float64(count))
}
