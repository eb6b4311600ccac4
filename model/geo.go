package model

// GeoPoint is a geographic coordinate in WGS84 degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PlanarPoint is a position in the Swiss LV03 projection grid, metres.
// E grows eastward, N northward. The grid is metric, so short-range
// offset and distance arithmetic can be done directly on E/N.
type PlanarPoint struct {
	E float64 `json:"easting"`
	N float64 `json:"northing"`
}

// Offset returns the point shifted by dE metres east and dN metres north.
func (p PlanarPoint) Offset(dE, dN float64) PlanarPoint {
	return PlanarPoint{E: p.E + dE, N: p.N + dN}
}

// LinkEndpoint is one end of the radio link: an antenna mounted
// HeightAboveGround metres above the terrain at Position.
type LinkEndpoint struct {
	Position          GeoPoint `json:"position"`
	HeightAboveGround float64  `json:"height_above_ground_m"`
}
