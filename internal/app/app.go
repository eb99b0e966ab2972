// Package app wires every component into a running gateway process:
// configuration, the ambient logger, the cache clients, the pipeline, and
// the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"github.com/nulpointcorp/llm-gateway/internal/breaker"
	"github.com/nulpointcorp/llm-gateway/internal/cache"
	"github.com/nulpointcorp/llm-gateway/internal/config"
	"github.com/nulpointcorp/llm-gateway/internal/embedclient"
	"github.com/nulpointcorp/llm-gateway/internal/metrics"
	"github.com/nulpointcorp/llm-gateway/internal/pipeline"
	"github.com/nulpointcorp/llm-gateway/internal/pricing"
	"github.com/nulpointcorp/llm-gateway/internal/proxy"
	"github.com/nulpointcorp/llm-gateway/internal/requestlog"
	"github.com/nulpointcorp/llm-gateway/internal/upstream"
)

// App owns every long-lived resource the gateway needs and the fasthttp
// server bound to them.
type App struct {
	cfg *config.Config
	log *slog.Logger

	exact    *cache.ExactCache
	vector   *cache.VectorCache
	embed    *embedclient.Client
	upstream *upstream.Client

	pricingModel *pricing.Model
	cacheMetrics *metrics.CacheMetrics
	promRegistry *metrics.PromRegistry
	reqLog       *requestlog.Logger
	cb           *breaker.Breaker
	analytics    requestlog.AnalyticsSink

	pipeline *pipeline.Pipeline
	server   *proxy.Server

	httpServer *fasthttp.Server
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("listening", slog.String("addr", addr))
		if err := a.httpServer.ListenAndServe(addr); err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		return a.httpServer.Shutdown()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}

// Close releases every pooled resource. Safe to call after a failed New.
func (a *App) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.reqLog != nil {
		record(a.reqLog.Close())
	}
	if a.exact != nil {
		record(a.exact.Close())
	}
	if a.vector != nil {
		record(a.vector.Close())
	}
	if a.analytics != nil {
		record(a.analytics.Close())
	}

	return firstErr
}
