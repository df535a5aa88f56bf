// Package geo holds the coordinate and viewport value types shared by the
// geocoder, the selection controller and the conversation engine.
package geo

import (
	"fmt"
	"math"
)

// LatLng is a coordinate pair in signed decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and within range.
func (p LatLng) Valid() bool {
	return finite(p.Lat) && finite(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 &&
		p.Lng >= -180 && p.Lng <= 180
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ResolvedLocation is the result of a successful geocoding lookup.
// QueryText is always the user's original phrasing, not the provider's normalized form.
type ResolvedLocation struct {
	QueryText   string   `json:"query_text"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	DisplayName *string  `json:"display_name,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// NewResolvedLocation builds a location and rejects non-finite or out of range coordinates.
func NewResolvedLocation(query string, lat, lng float64) (ResolvedLocation, error) {
	p := LatLng{Lat: lat, Lng: lng}
	if !p.Valid() {
		return ResolvedLocation{}, fmt.Errorf("coordinates out of range: %v,%v", lat, lng)
	}
	return ResolvedLocation{QueryText: query, Latitude: lat, Longitude: lng}, nil
}

// Clone returns a copy that shares no pointers with l.
func (l *ResolvedLocation) Clone() *ResolvedLocation {
	if l == nil {
		return nil
	}
	c := *l
	if l.DisplayName != nil {
		v := *l.DisplayName
		c.DisplayName = &v
	}
	if l.Category != nil {
		v := *l.Category
		c.Category = &v
	}
	if l.Confidence != nil {
		v := *l.Confidence
		c.Confidence = &v
	}
	return &c
}

// Point returns the location's coordinate pair.
func (l ResolvedLocation) Point() LatLng {
	return LatLng{Lat: l.Latitude, Lng: l.Longitude}
}

// Label is the provider's display name when present, otherwise the query text.
func (l ResolvedLocation) Label() string {
	if l.DisplayName != nil && *l.DisplayName != "" {
		return *l.DisplayName
	}
	return l.QueryText
}

// Viewport is the map's center and zoom. It is always replaced as a whole.
type Viewport struct {
	Center LatLng `json:"center"`
	Zoom   int    `json:"zoom"`
}

// Marker is what the map widget pins for the active location.
type Marker struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label"`
}

// MarkerFor derives the widget marker for a location.
func MarkerFor(l ResolvedLocation) Marker {
	return Marker{Lat: l.Latitude, Lng: l.Longitude, Label: l.Label()}
}
