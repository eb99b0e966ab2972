// Command gateway is the two-tier caching LLM proxy server.
//
// It reads configuration from environment variables (or a .env file) and
// starts an OpenAI-compatible HTTP proxy on the configured port.
//
// Quick-start:
//
//	GROQ_API_KEY=sk-... ./gateway
//
// See internal/config for all available configuration variables.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nulpointcorp/llm-gateway/internal/app"
	"github.com/nulpointcorp/llm-gateway/internal/config"
	"github.com/nulpointcorp/llm-gateway/internal/logger"
)

// version is overridden at build time via -ldflags="-X main.version=x.y.z".
var version = "0.1.0"

func main() {
	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration — exits with a descriptive error if required vars are missing.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Build the structured logger. All subsystems share this instance.
	l := logger.Build(cfg.LogLevel)
	slog.SetDefault(l)

	// Initialise and run the application.
	a, err := app.New(ctx, cfg, l, version)
	if err != nil {
		l.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		l.Error("gateway stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
