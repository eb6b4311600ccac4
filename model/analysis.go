package model

import "time"

// AnalysisRequest describes one full analysis round: a Tx–Rx link plus
// the heatmap sampling parameters. SampleCount 0 lets the engine derive
// a count from the path length. HeatmapRadiusMeters/HeatmapStepMeters 0
// fall back to the configured defaults.
type AnalysisRequest struct {
	Tx           LinkEndpoint `json:"tx"`
	Rx           LinkEndpoint `json:"rx"`
	FrequencyGHz float64      `json:"frequency_ghz"`
	SampleCount  int          `json:"sample_count,omitempty"`

	HeatmapRadiusMeters float64 `json:"heatmap_radius_m,omitempty"`
	HeatmapStepMeters   float64 `json:"heatmap_step_m,omitempty"`
}

// AnalysisResult is the outcome of one analysis round. RunID is the
// engine's monotonically increasing identifier for the round.
// Superseded is true when a newer round started while this one was in
// flight; a superseded round's results are returned to its caller but
// are never committed as the engine's latest profile/heatmap.
type AnalysisResult struct {
	RunID            int64          `json:"run_id"`
	Profile          *PathProfile   `json:"profile,omitempty"`
	Heatmap          *HeatmapResult `json:"heatmap,omitempty"`
	DirectDistanceKm float64        `json:"direct_distance_km"`
	Superseded       bool           `json:"superseded,omitempty"`
	Elapsed          time.Duration  `json:"elapsed_ns"`
}
