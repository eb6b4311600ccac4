package core

import (
	"fmt"
	"math"

	"github.com/RX12/RF-LOS-CH/model"
)

// fresnelClearanceFactor is the fraction of the first Fresnel zone
// that must stay clear of terrain (the 60% clearance rule).
const fresnelClearanceFactor = 0.6

// AnalyzeProfile evaluates a terrain elevation profile between a
// transmitter (co-located with the first sample) and a receiver
// (co-located with the last sample).
//
// The line of sight is interpolated linearly between the antenna tips.
// At every sample the clearance boundary is the line of sight lowered
// by 60% of the local first Fresnel zone radius; terrain above the
// boundary obstructs the link. The reported margin is the distance
// from the worst sample to its boundary, negative when obstructed.
func AnalyzeProfile(samples []model.ElevationSample, tx, rx model.LinkEndpoint, freqGHz float64) (*model.PathProfile, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty elevation profile", ErrInvalidInput)
	}
	if freqGHz <= 0 {
		return nil, fmt.Errorf("%w: frequency %.3f GHz, want > 0", ErrInvalidInput, freqGHz)
	}

	origin := samples[0].DistanceMeters
	totalM := samples[len(samples)-1].DistanceMeters - origin
	if totalM <= 0 {
		return nil, fmt.Errorf("%w: profile spans %.1f m, want > 0", ErrInvalidInput, totalM)
	}
	totalKm := totalM / 1000

	txAbs := samples[0].TerrainElevationMeters + tx.HeightAboveGround
	rxAbs := samples[len(samples)-1].TerrainElevationMeters + rx.HeightAboveGround

	out := &model.PathProfile{
		Samples:         make([]model.ProfileSample, 0, len(samples)),
		TotalDistanceKm: totalKm,
		FSPLdB:          FreeSpacePathLoss(totalKm, freqGHz),
	}

	worst := math.Inf(-1)
	for _, s := range samples {
		distM := s.DistanceMeters - origin
		los := txAbs + (rxAbs-txAbs)*(distM/totalM)
		boundary := los - fresnelClearanceFactor*FresnelRadius(distM/1000, totalKm, freqGHz)
		if margin := s.TerrainElevationMeters - boundary; margin > worst {
			worst = margin
		}
		out.Samples = append(out.Samples, model.ProfileSample{
			DistanceKm:            distM / 1000,
			TerrainMeters:         s.TerrainElevationMeters,
			LOSMeters:             los,
			FresnelBoundaryMeters: boundary,
		})
	}

	// Positive worst excursion means terrain pierces the boundary
	// somewhere; the published margin is its negation, so clear links
	// report how much room is left and obstructed ones how deep the
	// worst incursion is.
	out.IsObstructed = worst > 0
	out.ReportedMarginMeters = -worst
	return out, nil
}
