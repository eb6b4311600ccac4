package core

import "math"

// FresnelRadius returns the first Fresnel zone radius in metres at
// d1Km kilometres from one end of a totalKm kilometre path carried at
// freqGHz. The zone collapses to zero at both endpoints; outside the
// path, or for a non-positive frequency, the radius is zero rather
// than NaN so callers can subtract it unconditionally.
func FresnelRadius(d1Km, totalKm, freqGHz float64) float64 {
	if freqGHz <= 0 || totalKm <= 0 || d1Km <= 0 || d1Km >= totalKm {
		return 0
	}
	return 17.32 * math.Sqrt(d1Km*(totalKm-d1Km)/(totalKm*freqGHz))
}

// FreeSpacePathLoss returns the free-space loss in dB for a path of
// distanceKm kilometres at freqGHz gigahertz, zero for degenerate
// inputs.
func FreeSpacePathLoss(distanceKm, freqGHz float64) float64 {
	if distanceKm <= 0 || freqGHz <= 0 {
		return 0
	}
	return 92.45 + 20*math.Log10(distanceKm) + 20*math.Log10(freqGHz)
}
