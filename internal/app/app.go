// Package app wires configuration into the components shared by both binaries.
package app

import (
	"github.com/comigor/mapchat-go/internal/config"
	"github.com/comigor/mapchat-go/internal/engine"
	"github.com/comigor/mapchat-go/internal/geocode"
	"github.com/comigor/mapchat-go/internal/history"
	"github.com/comigor/mapchat-go/internal/logger"
	"github.com/comigor/mapchat-go/internal/metrics"
	"github.com/comigor/mapchat-go/internal/session"
)

// App holds the long-lived components.
type App struct {
	Config   *config.Config
	Metrics  *metrics.Metrics
	Journal  *history.Journal
	Sessions *session.Manager
}

// New builds the geocoder, journal and session manager from cfg.
func New(cfg *config.Config) *App {
	m := metrics.New()

	var journal *history.Journal
	if cfg.History.Enabled {
		journal = history.NewJournal(cfg.History.DBPath)
	}

	resolver := geocode.NewClient(cfg.Geocoder, geocode.WithMetrics(m))
	sessions := session.NewManager(resolver, engine.SettingsFromConfig(cfg), journal, m)

	logger.L.Info("application initialized",
		"geocoder", cfg.Geocoder.BaseURL,
		"breaker", cfg.Geocoder.Breaker.Enabled,
		"history", cfg.History.Enabled,
	)
	return &App{Config: cfg, Metrics: m, Journal: journal, Sessions: sessions}
}

// Close waits for in-flight lookups and releases the journal.
func (a *App) Close() error {
	a.Sessions.Wait()
	if a.Journal != nil {
		return a.Journal.Close()
	}
	return nil
}
