package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comigor/mapchat-go/internal/app"
	"github.com/comigor/mapchat-go/internal/config"
	"github.com/comigor/mapchat-go/internal/logger"
	"github.com/comigor/mapchat-go/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	a := app.New(cfg)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.New(a.Sessions, a.Metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.L.Info("starting server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.L.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Geocoder.Timeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("server shutdown error", "error", err)
	}
	if err := a.Close(); err != nil {
		logger.L.Error("close error", "error", err)
	}
}
