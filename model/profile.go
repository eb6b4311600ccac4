package model

// ElevationSample is one terrain measurement along the Tx–Rx path as
// returned by the profile service. DistanceMeters is cumulative from
// the Tx end and must be monotonically non-decreasing across a profile.
type ElevationSample struct {
	DistanceMeters         float64 `json:"distance_m"`
	TerrainElevationMeters float64 `json:"elevation_m"`
}

// ProfileSample is one analyzed point of a PathProfile: the terrain
// height, the straight sight line and the 60% Fresnel clearance
// boundary, all in metres above sea level.
type ProfileSample struct {
	DistanceKm            float64 `json:"distance_km"`
	TerrainMeters         float64 `json:"terrain_m"`
	LOSMeters             float64 `json:"los_m"`
	FresnelBoundaryMeters float64 `json:"fresnel_boundary_m"`
}

// PathProfile is the result of one profile analysis. It is created
// fresh per analysis call and replaces any prior profile wholesale; it
// is never partially mutated.
//
// ReportedMarginMeters is positive when the terrain clears the 60%
// Fresnel boundary everywhere (clearance in metres at the worst
// sample) and negative when terrain penetrates it (penetration depth).
type PathProfile struct {
	Samples              []ProfileSample `json:"samples"`
	TotalDistanceKm      float64         `json:"total_distance_km"`
	ReportedMarginMeters float64         `json:"margin_m"`
	IsObstructed         bool            `json:"obstructed"`
	FSPLdB               float64         `json:"fspl_db"`
}
