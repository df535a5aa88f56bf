package main

import (
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/comigor/mapchat-go/internal/app"
	"github.com/comigor/mapchat-go/internal/config"
	"github.com/comigor/mapchat-go/internal/logger"
	"github.com/comigor/mapchat-go/internal/mcpserver"
)

var version = "dev"

func main() {
	// stdout carries the protocol
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	a := app.New(cfg)
	defer func() {
		if err := a.Close(); err != nil {
			logger.L.Error("close error", "error", err)
		}
	}()

	logger.L.Info("serving MCP over stdio", "version", version)
	if err := server.ServeStdio(mcpserver.New(a.Sessions, version)); err != nil {
		logger.L.Error("mcp server stopped", "error", err)
	}
}
