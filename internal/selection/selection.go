package selection

import (
	"github.com/comigor/mapchat-go/internal/geo"
)

// DefaultViewport is the baseline view used before any location is found and after a reset.
var DefaultViewport = geo.Viewport{Center: geo.LatLng{Lat: 51.505, Lng: -0.09}, Zoom: 13}

// Controller derives the map viewport from the activated location.
// The viewport is held as a single value so center and zoom always change together.
type Controller struct {
	fallback geo.Viewport
	current  geo.Viewport
}

// New returns a Controller whose default viewport is fallback.
func New(fallback geo.Viewport) *Controller {
	return &Controller{fallback: fallback, current: fallback}
}

// Activate centers the view on location at the given zoom and returns the new viewport.
func (c *Controller) Activate(location geo.ResolvedLocation, zoom int) geo.Viewport {
	c.current = geo.Viewport{Center: location.Point(), Zoom: zoom}
	return c.current
}

// DefaultViewport returns the configured baseline viewport.
func (c *Controller) DefaultViewport() geo.Viewport {
	return c.fallback
}

// Clear restores the default viewport.
func (c *Controller) Clear() geo.Viewport {
	c.current = c.fallback
	return c.current
}

// Current returns the viewport last produced by Activate or Clear.
func (c *Controller) Current() geo.Viewport {
	return c.current
}
