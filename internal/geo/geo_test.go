package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewResolvedLocation_Range(t *testing.T) {
	cases := []struct {
		name     string
		lat, lng float64
		ok       bool
	}{
		{"paris", 48.8584, 2.2945, true},
		{"poles and antimeridian", -90, 180, true},
		{"lat too high", 90.0001, 0, false},
		{"lng too low", 0, -180.5, false},
		{"nan", math.NaN(), 0, false},
		{"inf", 0, math.Inf(1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := NewResolvedLocation("q", tc.lat, tc.lng)
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "q", loc.QueryText)
			require.Equal(t, LatLng{Lat: tc.lat, Lng: tc.lng}, loc.Point())
		})
	}
}

func TestLabelFallsBackToQuery(t *testing.T) {
	loc := ResolvedLocation{QueryText: "10 Downing St", Latitude: 51.5034, Longitude: -0.1276}
	require.Equal(t, "10 Downing St", loc.Label())

	empty := ""
	loc.DisplayName = &empty
	require.Equal(t, "10 Downing St", loc.Label())

	name := "10 Downing Street, London"
	loc.DisplayName = &name
	m := MarkerFor(loc)
	require.Equal(t, Marker{Lat: 51.5034, Lng: -0.1276, Label: name}, m)
}

func TestCloneSharesNoPointers(t *testing.T) {
	name, cat, conf := "Eiffel Tower", "attraction", 0.73
	orig := &ResolvedLocation{QueryText: "q", Latitude: 48.8584, Longitude: 2.2945, DisplayName: &name, Category: &cat, Confidence: &conf}

	c := orig.Clone()
	require.Equal(t, orig, c)

	c.Latitude = 0
	*c.DisplayName = "changed"
	*c.Category = "changed"
	*c.Confidence = 0
	require.InDelta(t, 48.8584, orig.Latitude, 1e-9)
	require.Equal(t, "Eiffel Tower", *orig.DisplayName)
	require.Equal(t, "attraction", *orig.Category)
	require.InDelta(t, 0.73, *orig.Confidence, 1e-9)

	var none *ResolvedLocation
	require.Nil(t, none.Clone())
}
