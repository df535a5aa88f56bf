package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/comigor/mapchat-go/internal/config"
	"github.com/comigor/mapchat-go/internal/geo"
	"github.com/comigor/mapchat-go/internal/logger"
	"github.com/comigor/mapchat-go/internal/metrics"
)

// maxBodyBytes bounds how much of a search response is read.
const maxBodyBytes = 1 << 20

// Client is a Resolver backed by a Nominatim-compatible HTTP search endpoint.
// Every Resolve makes exactly one request and never retries.
type Client struct {
	cfg     config.GeocoderConfig
	client  *http.Client
	metrics *metrics.Metrics
	breaker *gobreaker.CircuitBreaker
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithMetrics records lookup outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a new geocoding Client.
func NewClient(cfg config.GeocoderConfig, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Breaker.Enabled {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "geocoder",
			MaxRequests: 1,
			Timeout:     cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.Breaker.MaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.L.Warn("geocoder breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return c
}

// Resolve looks up query and returns the provider's best match.
// No match and provider failures both return (nil, false).
func (c *Client) Resolve(ctx context.Context, query string) (*geo.ResolvedLocation, bool) {
	if strings.TrimSpace(query) == "" {
		return nil, false
	}

	start := time.Now()
	var (
		loc *geo.ResolvedLocation
		err error
	)
	if c.breaker != nil {
		var res any
		res, err = c.breaker.Execute(func() (any, error) {
			return c.search(ctx, query)
		})
		loc, _ = res.(*geo.ResolvedLocation)
	} else {
		loc, err = c.search(ctx, query)
	}
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		logger.L.Warn("geocode lookup rejected by breaker", "query", query, "error", err)
		c.metrics.ObserveLookup(metrics.OutcomeRejected, elapsed)
		return nil, false
	case err != nil:
		logger.L.Error("geocode lookup failed", "query", query, "error", err, "elapsed", elapsed)
		c.metrics.ObserveLookup(metrics.OutcomeError, elapsed)
		return nil, false
	case loc == nil:
		logger.L.Info("geocode lookup found nothing", "query", query, "elapsed", elapsed)
		c.metrics.ObserveLookup(metrics.OutcomeNotFound, elapsed)
		return nil, false
	}

	logger.L.Info("geocode lookup resolved", "query", query, "lat", loc.Latitude, "lng", loc.Longitude, "elapsed", elapsed)
	c.metrics.ObserveLookup(metrics.OutcomeFound, elapsed)
	return loc, true
}

// search performs the single outbound request. A nil location with a nil error means no match.
func (c *Client) search(ctx context.Context, query string) (*geo.ResolvedLocation, error) {
	endpoint, err := c.searchURL(query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	candidates, err := parseCandidates(body)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	loc, err := candidates[0].toLocation(query)
	if err != nil {
		return nil, fmt.Errorf("malformed candidate: %w", err)
	}
	return &loc, nil
}

func (c *Client) searchURL(query string) (string, error) {
	base, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/search")
	if err != nil {
		return "", fmt.Errorf("parse geocoder base url: %w", err)
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")
	if c.cfg.Language != "" {
		q.Set("accept-language", c.cfg.Language)
	}
	if c.cfg.CountryCodes != "" {
		q.Set("countrycodes", c.cfg.CountryCodes)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}
