// Package geocode turns free text into a geo.ResolvedLocation using a
// Nominatim-compatible search endpoint.
//
// A lookup has three outcomes: a location, no match, or a provider failure.
// Callers only see the first two; failures are logged, counted and reported
// as "no match" so a conversation can never stall on the provider.
package geocode

import (
	"context"

	"github.com/comigor/mapchat-go/internal/geo"
)

// Resolver resolves a query to at most one location. It may block.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*geo.ResolvedLocation, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, query string) (*geo.ResolvedLocation, bool)

func (f ResolverFunc) Resolve(ctx context.Context, query string) (*geo.ResolvedLocation, bool) {
	return f(ctx, query)
}
