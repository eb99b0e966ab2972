package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/llm-gateway/internal/analytics"
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

// upstreamEndpoint is the OpenAI-compatible chat-completions path on the
// configured provider. Groq's API is OpenAI-compatible at this path.
const upstreamEndpoint = "https://api.groq.com/openai/v1/chat/completions"

// New constructs every component and wires them into a Pipeline and HTTP
// Server. Redis or Qdrant being unreachable at startup is logged as a
// warning, never fatal; the embedding service is not probed at startup.
// Only a missing GROQ_API_KEY (already enforced by config.Load) aborts the
// process.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	exact := buildExactCache(ctx, cfg.RedisURL, log)

	vector, err := cache.NewVectorCache(qdrantGRPCAddr(cfg.QdrantURL))
	if err != nil {
		log.Warn("vector cache unavailable at startup", slog.Any("error", err))
	} else if err := vector.EnsureCollection(ctx); err != nil {
		log.Warn("could not ensure vector collection, semantic tier may be degraded", slog.Any("error", err))
	}

	embed := embedclient.New(cfg.EmbeddingURL)
	upstreamClient := upstream.New(upstreamEndpoint, cfg.GroqAPIKey)

	pricingModel := pricing.New()
	cacheMetrics := metrics.New(pricingModel)
	promRegistry := metrics.NewPromRegistry()
	promRegistry.SetBuildInfo(version)

	var sink requestlog.AnalyticsSink
	if cfg.ClickHouseDSN != "" {
		ch, err := analytics.NewClickHouseSink(cfg.ClickHouseDSN)
		if err != nil {
			log.Warn("clickhouse analytics sink unavailable, continuing without it", slog.Any("error", err))
		} else {
			sink = ch
		}
	}

	reqLog := requestlog.New(ctx, cfg.LogPath, sink, func(err error) {
		log.Error("request log write failed", slog.Any("error", err))
	})

	cb := breaker.New(cfg.CircuitBreaker.ErrorThreshold, cfg.CircuitBreaker.TimeWindow, cfg.CircuitBreaker.HalfOpenTimeout)

	pl := pipeline.New(exact, vector, embed, upstreamClient, cacheMetrics, pricingModel, reqLog, cb, log)

	server := proxy.New(pl, exact, exact, vector, embed, cacheMetrics, promRegistry, cfg.CORSOrigins, log, proxy.DashboardHTML)

	a := &App{
		cfg:          cfg,
		log:          log,
		exact:        exact,
		vector:       vector,
		embed:        embed,
		upstream:     upstreamClient,
		pricingModel: pricingModel,
		cacheMetrics: cacheMetrics,
		promRegistry: promRegistry,
		reqLog:       reqLog,
		cb:           cb,
		analytics:    sink,
		pipeline:     pl,
		server:       server,
		httpServer: &fasthttp.Server{
			Handler: server.Handler(),
		},
	}

	return a, nil
}

// buildExactCache connects to Redis without aborting on a failed initial
// ping — per spec.md §4.2/§7 an unreachable exact tier degrades the proxy,
// it does not prevent it from starting.
func buildExactCache(ctx context.Context, redisURL string, log *slog.Logger) *cache.ExactCache {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn("invalid REDIS_URL, exact tier disabled", slog.Any("error", err))
		opts = &redis.Options{Addr: "127.0.0.1:0"}
	}

	cli := redis.NewClient(opts)
	exact := cache.NewExactCacheFromClient(cli)

	if !exact.Health(ctx) {
		log.Warn("exact cache (redis) unreachable at startup, continuing degraded")
	}

	return exact
}

// qdrantGRPCAddr strips an http(s):// scheme from QDRANT_URL, which is
// documented as an HTTP-style URL but consumed by a gRPC dialer.
func qdrantGRPCAddr(qdrantURL string) string {
	addr := strings.TrimPrefix(qdrantURL, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	return addr
}
