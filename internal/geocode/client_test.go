package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/mapchat-go/internal/config"
	"github.com/comigor/mapchat-go/internal/geo"
	"github.com/comigor/mapchat-go/internal/metrics"
)

const eiffelResponse = `[{"place_id":1,"lat":"48.8582599","lon":"2.2945006","display_name":"Tour Eiffel, Paris, France","type":"attraction","importance":0.73}]`

type fakeProvider struct {
	status int
	body   string
	calls  atomic.Int32
	last   atomic.Pointer[http.Request]
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	f.last.Store(r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

func newTestClient(t *testing.T, status int, body string, mutate ...func(*config.GeocoderConfig)) (*Client, *fakeProvider, *metrics.Metrics) {
	t.Helper()
	fp := &fakeProvider{status: status, body: body}
	srv := httptest.NewServer(fp)
	t.Cleanup(srv.Close)

	cfg := config.GeocoderConfig{
		BaseURL:   srv.URL + "/",
		UserAgent: "mapchat-test/1.0",
		Timeout:   2 * time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	m := metrics.New()
	return NewClient(cfg, WithMetrics(m), WithHTTPClient(srv.Client())), fp, m
}

func lookups(m *metrics.Metrics, outcome string) float64 {
	c, err := m.Registry().Gather()
	if err != nil {
		return -1
	}
	for _, mf := range c {
		if mf.GetName() != "mapchat_geocode_lookups_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestResolve_Found(t *testing.T) {
	c, fp, m := newTestClient(t, http.StatusOK, eiffelResponse, func(cfg *config.GeocoderConfig) {
		cfg.Language = "en"
		cfg.CountryCodes = "fr"
	})

	loc, ok := c.Resolve(context.Background(), "Eiffel Tower, Paris")
	require.True(t, ok)
	require.NotNil(t, loc)
	require.Equal(t, "Eiffel Tower, Paris", loc.QueryText)
	require.InDelta(t, 48.8582599, loc.Latitude, 1e-9)
	require.InDelta(t, 2.2945006, loc.Longitude, 1e-9)
	require.Equal(t, "Tour Eiffel, Paris, France", *loc.DisplayName)
	require.Equal(t, "attraction", *loc.Category)
	require.InDelta(t, 0.73, *loc.Confidence, 1e-9)

	require.EqualValues(t, 1, fp.calls.Load())
	req := fp.last.Load()
	require.Equal(t, "/search", req.URL.Path)
	require.Equal(t, "Eiffel Tower, Paris", req.URL.Query().Get("q"))
	require.Equal(t, "json", req.URL.Query().Get("format"))
	require.Equal(t, "1", req.URL.Query().Get("limit"))
	require.Equal(t, "en", req.URL.Query().Get("accept-language"))
	require.Equal(t, "fr", req.URL.Query().Get("countrycodes"))
	require.Equal(t, "mapchat-test/1.0", req.Header.Get("User-Agent"))

	require.InDelta(t, 1, lookups(m, metrics.OutcomeFound), 0)
}

func TestResolve_OptionalFieldsAbsent(t *testing.T) {
	c, _, _ := newTestClient(t, http.StatusOK, `[{"lat":"-33.8568","lon":"151.2153"}]`)

	loc, ok := c.Resolve(context.Background(), "opera house")
	require.True(t, ok)
	require.Nil(t, loc.DisplayName)
	require.Nil(t, loc.Category)
	require.Nil(t, loc.Confidence)
	require.Equal(t, "opera house", loc.Label())
}

func TestResolve_NoMatch(t *testing.T) {
	c, fp, m := newTestClient(t, http.StatusOK, `[]`)

	loc, ok := c.Resolve(context.Background(), "zzzNotARealPlace")
	require.False(t, ok)
	require.Nil(t, loc)
	require.EqualValues(t, 1, fp.calls.Load())
	require.InDelta(t, 1, lookups(m, metrics.OutcomeNotFound), 0)
}

func TestResolve_FailuresCollapseToAbsent(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`},
		{"server error", http.StatusBadGateway, ``},
		{"not json", http.StatusOK, `<html>oops</html>`},
		{"object instead of array", http.StatusOK, `{"lat":"1","lon":"2"}`},
		{"missing lon", http.StatusOK, `[{"lat":"1.0"}]`},
		{"unparsable lat", http.StatusOK, `[{"lat":"north","lon":"2.0"}]`},
		{"out of range", http.StatusOK, `[{"lat":"91.0","lon":"2.0"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, fp, m := newTestClient(t, tc.status, tc.body)
			loc, ok := c.Resolve(context.Background(), "somewhere")
			require.False(t, ok)
			require.Nil(t, loc)
			require.EqualValues(t, 1, fp.calls.Load())
			require.InDelta(t, 1, lookups(m, metrics.OutcomeError), 0)
		})
	}
}

func TestResolve_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(config.GeocoderConfig{BaseURL: url, UserAgent: "ua", Timeout: time.Second})
	loc, ok := c.Resolve(context.Background(), "Paris")
	require.False(t, ok)
	require.Nil(t, loc)
}

func TestResolve_BlankQueryMakesNoCall(t *testing.T) {
	c, fp, _ := newTestClient(t, http.StatusOK, eiffelResponse)

	_, ok := c.Resolve(context.Background(), "   ")
	require.False(t, ok)
	require.Zero(t, fp.calls.Load())
}

func TestResolve_BreakerOpensAfterFailures(t *testing.T) {
	c, fp, m := newTestClient(t, http.StatusServiceUnavailable, ``, func(cfg *config.GeocoderConfig) {
		cfg.Breaker = config.BreakerConfig{Enabled: true, MaxFailures: 2, OpenTimeout: time.Minute}
	})

	for i := 0; i < 3; i++ {
		_, ok := c.Resolve(context.Background(), "Paris")
		require.False(t, ok)
	}
	require.EqualValues(t, 2, fp.calls.Load())
	require.InDelta(t, 2, lookups(m, metrics.OutcomeError), 0)
	require.InDelta(t, 1, lookups(m, metrics.OutcomeRejected), 0)
}

func TestResolve_BreakerIgnoresNoMatch(t *testing.T) {
	c, fp, _ := newTestClient(t, http.StatusOK, `[]`, func(cfg *config.GeocoderConfig) {
		cfg.Breaker = config.BreakerConfig{Enabled: true, MaxFailures: 1, OpenTimeout: time.Minute}
	})

	for i := 0; i < 3; i++ {
		_, ok := c.Resolve(context.Background(), "nowhere")
		require.False(t, ok)
	}
	require.EqualValues(t, 3, fp.calls.Load())
}

func TestResolverFunc(t *testing.T) {
	var got string
	var r Resolver = ResolverFunc(func(_ context.Context, q string) (*geo.ResolvedLocation, bool) {
		got = q
		return nil, false
	})
	_, ok := r.Resolve(context.Background(), "x")
	require.False(t, ok)
	require.Equal(t, "x", got)
}
