package model

// HeatmapClass buckets a grid point's estimated margin.
type HeatmapClass string

const (
	// HeatmapClear marks points with comfortably positive margin (> 2 m).
	HeatmapClear HeatmapClass = "clear"
	// HeatmapMarginal marks points between 0 and 2 m of margin.
	HeatmapMarginal HeatmapClass = "marginal"
	// HeatmapObstructed marks points with negative margin.
	HeatmapObstructed HeatmapClass = "obstructed"
)

// HeatmapPoint is one cell of the receiver-relocation sensitivity grid.
// Offsets are in projection metres relative to the receiver.
// EstimatedMarginMeters is nil when the point could not be classified,
// either because its height lookup failed or because the run
// established no baseline height; such points carry no classification.
type HeatmapPoint struct {
	OffsetE               float64      `json:"offset_e_m"`
	OffsetN               float64      `json:"offset_n_m"`
	GeoPosition           GeoPoint     `json:"position"`
	EstimatedMarginMeters *float64     `json:"estimated_margin_m,omitempty"`
	Classification        HeatmapClass `json:"classification,omitempty"`
	IsCenter              bool         `json:"is_center,omitempty"`
}

// BaselineSource records where a heatmap run took its reference height
// from. The first-success fallback is a documented, potentially biasing
// heuristic, so consumers can see which one was in effect.
type BaselineSource string

const (
	// BaselineCenter means the center point's own height lookup succeeded.
	BaselineCenter BaselineSource = "center"
	// BaselineFirstSuccess means the center lookup failed and the first
	// successfully fetched grid point supplied the reference height.
	BaselineFirstSuccess BaselineSource = "first_success"
	// BaselineNone means no height lookup succeeded at all; every point
	// in the run is missing.
	BaselineNone BaselineSource = "none"
)

// HeatmapResult is the complete point set of one sampling run. The set
// replaces the previous run's set atomically from a consumer's view;
// points within a run are ordered row-major (south-to-north rows,
// west-to-east within a row).
type HeatmapResult struct {
	Points          []HeatmapPoint `json:"points"`
	CenterHeightM   float64        `json:"center_height_m"`
	Baseline        BaselineSource `json:"baseline_source"`
	BaselineMarginM float64        `json:"baseline_margin_m"`
	MissingPoints   int            `json:"missing_points"`
	RadiusMeters    float64        `json:"radius_m"`
	StepMeters      float64        `json:"step_m"`
}
