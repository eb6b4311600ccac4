package core

import (
	"fmt"

	"github.com/RX12/RF-LOS-CH/model"
)

// Default receiver-relocation grid: offsets {-30, 0, +30} m on both
// axes, a 3x3 square centred on the receiver.
const (
	DefaultHeatmapRadiusMeters = 30.0
	DefaultHeatmapStepMeters   = 30.0
)

// HeatmapGrid describes the square sampling grid laid around the
// receiver in projection space.
type HeatmapGrid struct {
	RadiusMeters float64
	StepMeters   float64
}

// DefaultHeatmapGrid returns the 3x3 reference layout.
func DefaultHeatmapGrid() HeatmapGrid {
	return HeatmapGrid{RadiusMeters: DefaultHeatmapRadiusMeters, StepMeters: DefaultHeatmapStepMeters}
}

// Validate rejects geometries that cannot produce a grid.
func (g HeatmapGrid) Validate() error {
	if g.RadiusMeters <= 0 {
		return fmt.Errorf("%w: heatmap radius %.1f m, want > 0", ErrInvalidInput, g.RadiusMeters)
	}
	if g.StepMeters <= 0 {
		return fmt.Errorf("%w: heatmap step %.1f m, want > 0", ErrInvalidInput, g.StepMeters)
	}
	return nil
}

// GridOffset is one cell of the heatmap grid, expressed as an offset
// from the receiver in projection metres.
type GridOffset struct {
	DE, DN float64
	Center bool
}

// Offsets enumerates the grid in row-major order: northing rows from
// south to north, easting within each row from west to east. The cell
// count per axis is 2*floor(radius/step)+1, so the (0,0) cell at the
// receiver itself appears exactly once regardless of geometry.
func (g HeatmapGrid) Offsets() []GridOffset {
	n := int(g.RadiusMeters / g.StepMeters)
	out := make([]GridOffset, 0, (2*n+1)*(2*n+1))
	for iN := -n; iN <= n; iN++ {
		for iE := -n; iE <= n; iE++ {
			out = append(out, GridOffset{
				DE:     float64(iE) * g.StepMeters,
				DN:     float64(iN) * g.StepMeters,
				Center: iE == 0 && iN == 0,
			})
		}
	}
	return out
}

// EstimateMargin extrapolates the analyzed path margin to a relocated
// receiver using a first-order model: within tens of metres the sight
// line and Fresnel geometry barely change, so raising the receiver
// site by some amount raises the worst-point margin by the same
// amount.
func EstimateMargin(baselineMarginM, pointHeightM, centerHeightM float64) float64 {
	return baselineMarginM + (pointHeightM - centerHeightM)
}

// ClassifyMargin buckets an estimated margin for display. The 2 m
// band between clear and obstructed absorbs the error of the
// first-order extrapolation.
func ClassifyMargin(marginM float64) model.HeatmapClass {
	switch {
	case marginM > 2:
		return model.HeatmapClear
	case marginM < 0:
		return model.HeatmapObstructed
	default:
		return model.HeatmapMarginal
	}
}
