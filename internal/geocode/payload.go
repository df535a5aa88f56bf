package geocode

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/comigor/mapchat-go/internal/geo"
)

// candidate is one element of the provider's JSON array. Only lat/lon are required.
type candidate struct {
	Lat         *string  `json:"lat"`
	Lon         *string  `json:"lon"`
	DisplayName *string  `json:"display_name"`
	Type        *string  `json:"type"`
	Importance  *float64 `json:"importance"`
}

var errMissingCoordinates = errors.New("candidate has no lat/lon")

// parseCandidates decodes the search response body.
func parseCandidates(body []byte) ([]candidate, error) {
	var out []candidate
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return out, nil
}

// toLocation validates a candidate and builds the location anchored on the original query.
func (c candidate) toLocation(query string) (geo.ResolvedLocation, error) {
	if c.Lat == nil || c.Lon == nil {
		return geo.ResolvedLocation{}, errMissingCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(*c.Lat), 64)
	if err != nil {
		return geo.ResolvedLocation{}, fmt.Errorf("parse lat %q: %w", *c.Lat, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(*c.Lon), 64)
	if err != nil {
		return geo.ResolvedLocation{}, fmt.Errorf("parse lon %q: %w", *c.Lon, err)
	}

	loc, err := geo.NewResolvedLocation(query, lat, lon)
	if err != nil {
		return geo.ResolvedLocation{}, err
	}
	loc.DisplayName = nonEmpty(c.DisplayName)
	loc.Category = nonEmpty(c.Type)
	loc.Confidence = c.Importance
	return loc, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
