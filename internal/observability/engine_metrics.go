package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Analysis run outcomes as recorded on analysis_runs_total.
const (
	RunOutcomeCommitted  = "committed"
	RunOutcomeSuperseded = "superseded"
	RunOutcomeFailed     = "failed"
)

// AnalysisCollector exposes Prometheus metrics for the analysis engine.
// The engine drives it through its RunMetricsRecorder interface; a nil
// *AnalysisCollector is a valid no-op recorder.
type AnalysisCollector struct {
	gatherer prometheus.Gatherer

	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	ProfileSamples prometheus.Gauge
	LinkObstructed prometheus.Gauge
	LinkMarginM    prometheus.Gauge
	HeatmapMissing prometheus.Gauge
}

// NewAnalysisCollector registers engine metrics against the provided
// registerer.
func NewAnalysisCollector(reg prometheus.Registerer) (*AnalysisCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_runs_total",
		Help: "Completed analysis runs, labeled by outcome (committed, superseded, failed).",
	}, []string{"outcome"})
	runs, err := registerCounterVec(reg, runs, "analysis_runs_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_run_duration_seconds",
		Help:    "Wall-clock duration of analysis runs, queue wait included.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
	duration, err = registerHistogram(reg, duration, "analysis_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	samples, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "analysis_profile_samples",
		Help: "Elevation sample count of the most recently committed profile.",
	}), "analysis_profile_samples")
	if err != nil {
		return nil, err
	}
	obstructed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "link_obstructed",
		Help: "1 when the most recently committed profile is obstructed, else 0.",
	}), "link_obstructed")
	if err != nil {
		return nil, err
	}
	margin, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "link_margin_meters",
		Help: "Clearance margin of the most recently committed profile, negative when obstructed.",
	}), "link_margin_meters")
	if err != nil {
		return nil, err
	}
	missing, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "heatmap_missing_points",
		Help: "Grid points without height data in the most recently committed heatmap.",
	}), "heatmap_missing_points")
	if err != nil {
		return nil, err
	}

	return &AnalysisCollector{
		gatherer:       gatherer,
		RunsTotal:      runs,
		RunDuration:    duration,
		ProfileSamples: samples,
		LinkObstructed: obstructed,
		LinkMarginM:    margin,
		HeatmapMissing: missing,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *AnalysisCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRun records one finished run with its outcome label.
func (c *AnalysisCollector) ObserveRun(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.RunsTotal != nil {
		c.RunsTotal.WithLabelValues(outcome).Inc()
	}
	if c.RunDuration != nil {
		c.RunDuration.Observe(d.Seconds())
	}
}

// SetLinkState publishes the committed profile's verdict.
func (c *AnalysisCollector) SetLinkState(obstructed bool, marginM float64, sampleCount int) {
	if c == nil {
		return
	}
	if c.LinkObstructed != nil {
		if obstructed {
			c.LinkObstructed.Set(1)
		} else {
			c.LinkObstructed.Set(0)
		}
	}
	if c.LinkMarginM != nil {
		c.LinkMarginM.Set(marginM)
	}
	if c.ProfileSamples != nil {
		c.ProfileSamples.Set(float64(sampleCount))
	}
}

// SetHeatmapMissing publishes the committed heatmap's missing point count.
func (c *AnalysisCollector) SetHeatmapMissing(count int) {
	if c == nil || c.HeatmapMissing == nil {
		return
	}
	c.HeatmapMissing.Set(float64(count))
}
