// Package engine orchestrates analysis runs: profile fetch and
// obstruction analysis first, then the receiver-relocation heatmap,
// with run supersession keeping at most one run's results visible.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RX12/RF-LOS-CH/core"
	"github.com/RX12/RF-LOS-CH/internal/logging"
	"github.com/RX12/RF-LOS-CH/model"
)

// Auto-sampling: one elevation sample per 50 m of path, clamped so
// short paths still resolve terrain and long paths stay within the
// profile service's appetite.
const (
	metersPerSample = 50.0
	minSampleCount  = 100
	maxSampleCount  = 500
)

// Run outcome labels recorded on the metrics surface.
const (
	outcomeCommitted  = "committed"
	outcomeSuperseded = "superseded"
	outcomeFailed     = "failed"
)

// ProfileSource fetches elevation profiles along an LV03 segment.
type ProfileSource interface {
	Profile(ctx context.Context, a, b model.PlanarPoint, nbPoints int) ([]model.ElevationSample, error)
}

// HeightSource resolves the terrain height at one LV03 position.
type HeightSource interface {
	Height(ctx context.Context, p model.PlanarPoint) (float64, error)
}

// HeatmapObserver receives classified grid points in row-major order
// while a run is sampling. Observers see every run, including runs
// that end up superseded; they can use the run ID to tell them apart.
type HeatmapObserver interface {
	HeatmapPoint(runID int64, p model.HeatmapPoint)
}

// HeatmapObserverFunc adapts a function to the HeatmapObserver
// interface.
type HeatmapObserverFunc func(runID int64, p model.HeatmapPoint)

func (f HeatmapObserverFunc) HeatmapPoint(runID int64, p model.HeatmapPoint) { f(runID, p) }

// RunMetricsRecorder receives engine telemetry. A nil recorder is
// valid.
type RunMetricsRecorder interface {
	ObserveRun(outcome string, d time.Duration)
	SetLinkState(obstructed bool, marginM float64, sampleCount int)
	SetHeatmapMissing(count int)
}

// Engine runs analyses and retains the latest committed results.
type Engine struct {
	profiles ProfileSource
	heights  HeightSource

	log      logging.Logger
	metrics  RunMetricsRecorder
	observer HeatmapObserver

	grid           core.HeatmapGrid
	centerFallback bool

	// runSeq issues run IDs; currentRun names the single run whose
	// completion may commit. Invalidate bumps currentRun to an ID no
	// run owns, orphaning everything in flight.
	runSeq     atomic.Int64
	currentRun atomic.Int64

	mu      sync.RWMutex
	profile *model.PathProfile
	heatmap *model.HeatmapResult

	errors *errorLog
}

// Option customises engine construction.
type Option func(*Engine)

// WithLogger attaches a logger.
func WithLogger(log logging.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics attaches a telemetry recorder.
func WithMetrics(m RunMetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithHeatmapObserver streams classified grid points to obs as runs
// produce them.
func WithHeatmapObserver(obs HeatmapObserver) Option {
	return func(e *Engine) { e.observer = obs }
}

// WithGrid overrides the default heatmap grid geometry.
func WithGrid(g core.HeatmapGrid) Option {
	return func(e *Engine) { e.grid = g }
}

// WithCenterFallback controls whether a failed center-height lookup
// may fall back to the first successfully fetched grid point. The
// fallback biases every estimate by the height difference between
// that point and the true center, but keeps partial heatmaps useful.
func WithCenterFallback(enabled bool) Option {
	return func(e *Engine) { e.centerFallback = enabled }
}

// WithErrorLogSize overrides the recent-error ring capacity.
func WithErrorLogSize(n int) Option {
	return func(e *Engine) { e.errors = newErrorLog(n) }
}

// New constructs an engine over the given geodata sources.
func New(profiles ProfileSource, heights HeightSource, opts ...Option) *Engine {
	e := &Engine{
		profiles:       profiles,
		heights:        heights,
		log:            logging.Noop(),
		grid:           core.DefaultHeatmapGrid(),
		centerFallback: true,
		errors:         newErrorLog(DefaultErrorLogSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze runs one full round: elevation profile, obstruction
// analysis, then the relocation heatmap. The returned result always
// belongs to this invocation; whether it was committed as the
// engine's latest visible state depends on run supersession, reported
// via Result.Superseded. On failure the previously committed results
// stay visible untouched.
func (e *Engine) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	// 0 means "use the configured default"; anything else, including
	// a negative value, goes through grid validation.
	grid := e.grid
	if req.HeatmapRadiusMeters != 0 {
		grid.RadiusMeters = req.HeatmapRadiusMeters
	}
	if req.HeatmapStepMeters != 0 {
		grid.StepMeters = req.HeatmapStepMeters
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	runID := e.runSeq.Add(1)
	e.currentRun.Store(runID)

	txPlanar := core.ToPlanar(req.Tx.Position)
	rxPlanar := core.ToPlanar(req.Rx.Position)
	directM := core.DistanceMeters(req.Tx.Position, req.Rx.Position)
	directKm := directM / 1000

	sampleCount := req.SampleCount
	if sampleCount <= 0 {
		sampleCount = autoSampleCount(directM)
	}

	log := e.log.With(logging.Int64("run_id", runID))
	log.Info(ctx, "analysis run started",
		logging.Float64("direct_km", directKm),
		logging.Float64("freq_ghz", req.FrequencyGHz),
		logging.Int("samples", sampleCount),
	)

	samples, err := e.profiles.Profile(ctx, txPlanar, rxPlanar, sampleCount)
	if err != nil {
		e.errors.add("profile", err)
		e.finishRun(ctx, log, runID, outcomeFailed, start)
		return nil, fmt.Errorf("fetch elevation profile: %w", err)
	}

	profile, err := core.AnalyzeProfile(samples, req.Tx, req.Rx, req.FrequencyGHz)
	if err != nil {
		e.finishRun(ctx, log, runID, outcomeFailed, start)
		return nil, err
	}

	// The profile phase is complete before any heatmap I/O starts.
	heatmap := e.sampleHeatmap(ctx, log, runID, rxPlanar, req.Rx.Position, profile.ReportedMarginMeters, grid)

	committed := e.commit(runID, profile, heatmap)
	outcome := outcomeCommitted
	if !committed {
		outcome = outcomeSuperseded
	}
	e.finishRun(ctx, log, runID, outcome, start)
	if committed && e.metrics != nil {
		e.metrics.SetLinkState(profile.IsObstructed, profile.ReportedMarginMeters, len(profile.Samples))
		e.metrics.SetHeatmapMissing(heatmap.MissingPoints)
	}

	return &model.AnalysisResult{
		RunID:            runID,
		Profile:          profile,
		Heatmap:          heatmap,
		DirectDistanceKm: directKm,
		Superseded:       !committed,
		Elapsed:          time.Since(start),
	}, nil
}

// Invalidate orphans any in-flight run: its completion will not be
// committed. Already committed results stay visible.
func (e *Engine) Invalidate() {
	e.currentRun.Store(e.runSeq.Add(1))
}

// LatestProfile returns the most recently committed path profile.
func (e *Engine) LatestProfile() (*model.PathProfile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profile, e.profile != nil
}

// LatestHeatmap returns the most recently committed heatmap.
func (e *Engine) LatestHeatmap() (*model.HeatmapResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.heatmap, e.heatmap != nil
}

// RecentErrors returns the bounded upstream-failure log, newest first.
func (e *Engine) RecentErrors() []ErrorEntry {
	return e.errors.recent()
}

// sampleHeatmap fetches grid heights sequentially in row-major order,
// establishes the baseline height, then classifies every point. It
// never fails: lookup failures become missing points.
func (e *Engine) sampleHeatmap(ctx context.Context, log logging.Logger, runID int64, rxPlanar model.PlanarPoint, rxGeo model.GeoPoint, baselineMargin float64, grid core.HeatmapGrid) *model.HeatmapResult {
	offsets := grid.Offsets()
	heights := make([]*float64, len(offsets))
	centerIdx := 0

	for i, off := range offsets {
		if off.Center {
			centerIdx = i
		}
		h, err := e.heights.Height(ctx, rxPlanar.Offset(off.DE, off.DN))
		if err != nil {
			e.errors.add("height", err)
			log.Warn(ctx, "heatmap point lookup failed",
				logging.Float64("offset_e", off.DE),
				logging.Float64("offset_n", off.DN),
				logging.Err(err),
			)
			continue
		}
		hh := h
		heights[i] = &hh
	}

	centerHeight := 0.0
	baseline := model.BaselineNone
	switch {
	case heights[centerIdx] != nil:
		centerHeight = *heights[centerIdx]
		baseline = model.BaselineCenter
	case e.centerFallback:
		for _, h := range heights {
			if h != nil {
				centerHeight = *h
				baseline = model.BaselineFirstSuccess
				break
			}
		}
	}

	// Round-trip drift correction, computed once against the original
	// receiver coordinate and applied to every grid point.
	dLat, dLng := core.GeoCorrection(rxGeo)

	result := &model.HeatmapResult{
		Points:          make([]model.HeatmapPoint, 0, len(offsets)),
		CenterHeightM:   centerHeight,
		Baseline:        baseline,
		BaselineMarginM: baselineMargin,
		RadiusMeters:    grid.RadiusMeters,
		StepMeters:      grid.StepMeters,
	}

	for i, off := range offsets {
		geo := core.ToGeo(rxPlanar.Offset(off.DE, off.DN))
		geo.Lat += dLat
		geo.Lng += dLng

		point := model.HeatmapPoint{
			OffsetE:     off.DE,
			OffsetN:     off.DN,
			GeoPosition: geo,
			IsCenter:    off.Center,
		}
		if heights[i] != nil && baseline != model.BaselineNone {
			est := core.EstimateMargin(baselineMargin, *heights[i], centerHeight)
			point.EstimatedMarginMeters = &est
			point.Classification = core.ClassifyMargin(est)
		} else {
			result.MissingPoints++
		}

		if e.observer != nil {
			e.observer.HeatmapPoint(runID, point)
		}
		result.Points = append(result.Points, point)
	}

	if baseline == model.BaselineFirstSuccess {
		log.Warn(ctx, "center height unavailable, margins biased by fallback baseline",
			logging.Float64("fallback_height_m", centerHeight))
	}
	return result
}

// commit installs the run's results if the run is still current.
func (e *Engine) commit(runID int64, profile *model.PathProfile, heatmap *model.HeatmapResult) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentRun.Load() != runID {
		return false
	}
	e.profile = profile
	e.heatmap = heatmap
	return true
}

func (e *Engine) finishRun(ctx context.Context, log logging.Logger, runID int64, outcome string, start time.Time) {
	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.ObserveRun(outcome, elapsed)
	}
	log.Info(ctx, "analysis run finished",
		logging.String("outcome", outcome),
		logging.Duration("elapsed", elapsed),
	)
}

func validateRequest(req model.AnalysisRequest) error {
	if req.FrequencyGHz <= 0 {
		return fmt.Errorf("%w: frequency %.3f GHz, want > 0", core.ErrInvalidInput, req.FrequencyGHz)
	}
	if req.Tx.HeightAboveGround < 0 || req.Rx.HeightAboveGround < 0 {
		return fmt.Errorf("%w: antenna heights must be >= 0", core.ErrInvalidInput)
	}
	return nil
}

func autoSampleCount(pathMeters float64) int {
	n := int(math.Ceil(pathMeters / metersPerSample))
	if n < minSampleCount {
		return minSampleCount
	}
	if n > maxSampleCount {
		return maxSampleCount
	}
	return n
}
