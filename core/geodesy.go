package core

import (
	"github.com/golang/geo/s2"

	"github.com/RX12/RF-LOS-CH/model"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle
// distances between link endpoints.
const EarthRadiusMeters = 6371000.0

// ToPlanar converts a WGS84 coordinate to the LV03 projection grid
// using the published swisstopo approximate formulas (metre-level
// accuracy inside Switzerland).
//
// The formulas are fitted polynomials: ToPlanar and ToGeo were fitted
// independently and are NOT exact inverses of each other. Callers that
// need round-trip fidelity must apply an explicit correction, see
// GeoCorrection.
func ToPlanar(p model.GeoPoint) model.PlanarPoint {
	// Latitude/longitude in auxiliary units: arcseconds relative to
	// the Bern datum point, scaled by 1e-4.
	phi := (p.Lat*3600 - 169028.66) / 10000
	lam := (p.Lng*3600 - 26782.5) / 10000

	e := 600072.37 +
		211455.93*lam -
		10938.51*lam*phi -
		0.36*lam*phi*phi -
		44.54*lam*lam*lam
	n := 200147.07 +
		308807.95*phi +
		3745.25*lam*lam +
		76.63*phi*phi -
		194.56*lam*lam*phi +
		119.79*phi*phi*phi

	return model.PlanarPoint{E: e, N: n}
}

// ToGeo converts an LV03 grid position back to WGS84 degrees using the
// inverse set of swisstopo approximate formulas. See ToPlanar for the
// round-trip caveat.
func ToGeo(p model.PlanarPoint) model.GeoPoint {
	// Auxiliary units: civilian LV03 coordinates relative to Bern in
	// thousands of kilometres.
	y := (p.E - 600000) / 1000000
	x := (p.N - 200000) / 1000000

	lam := 2.6779094 +
		4.728982*y +
		0.791484*y*x +
		0.1306*y*x*x -
		0.0436*y*y*y
	phi := 16.9023892 +
		3.238272*x -
		0.270978*y*y -
		0.002528*x*x -
		0.0447*y*y*x -
		0.0140*x*x*x

	// Auxiliary values are in 10000" units; convert to degrees.
	return model.GeoPoint{Lat: phi * 100 / 36, Lng: lam * 100 / 36}
}

// GeoCorrection returns the offset that cancels the transform
// round-trip drift at p: orig − ToGeo(ToPlanar(orig)), in degrees.
// Adding it to ToGeo output maps the planar image of p back onto p
// exactly; nearby points inherit the same correction with a residual
// far below the transforms' own fitting error.
func GeoCorrection(p model.GeoPoint) (dLat, dLng float64) {
	rt := ToGeo(ToPlanar(p))
	return p.Lat - rt.Lat, p.Lng - rt.Lng
}

// DistanceMeters returns the great-circle distance between two
// geographic points. Used to size profile sample counts and to rank
// search results; the profile service remains the authority on the
// analyzed path length.
func DistanceMeters(a, b model.GeoPoint) float64 {
	la := s2.LatLngFromDegrees(a.Lat, a.Lng)
	lb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return la.Distance(lb).Radians() * EarthRadiusMeters
}
