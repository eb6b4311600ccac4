package model

// SearchResult is one place-search candidate. DistanceKm is the
// great-circle distance from the caller-supplied reference point and
// is zero when no reference was given.
type SearchResult struct {
	Label      string   `json:"label"`
	Position   GeoPoint `json:"position"`
	DistanceKm float64  `json:"distance_km,omitempty"`
}
