// Package core holds the domain model shared by the session, fetch and
// orchestration layers: the normalized vehicle record, the slug rules that
// produce stable ids, and the error taxonomy.
package core

import "time"

// VehicleRecord is the canonical normalized output unit. Latitude and
// longitude are guaranteed in range by the normalizer; records that fail
// validation never make it into a FetchResult.
type VehicleRecord struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Speed      *float64   `json:"speed,omitempty"`
	Heading    *float64   `json:"heading,omitempty"`
	LastUpdate *time.Time `json:"last_update,omitempty"`

	// Source tags which discovery strategy produced the record.
	Source string `json:"source,omitempty"`

	// Extras carries provider-specific fields (odometer, battery,
	// satellite count, ...) that survived normalization.
	Extras map[string]any `json:"extras,omitempty"`
}

// FetchResult maps vehicle id to its latest record. It is rebuilt from
// scratch every fetch cycle; nothing accumulates across cycles here.
type FetchResult map[string]VehicleRecord

// ValidCoordinates reports whether lat/lng fall inside the WGS84 envelope.
// Boundary values are valid.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Filter returns a copy of r restricted to the given ids. A nil or empty
// id list returns r unchanged.
func (r FetchResult) Filter(ids []string) FetchResult {
	if len(ids) == 0 {
		return r
	}
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	out := make(FetchResult, len(ids))
	for id, rec := range r {
		if _, ok := keep[id]; ok {
			out[id] = rec
		}
	}
	return out
}
