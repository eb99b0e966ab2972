package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/llm-gateway/internal/metrics"
	"github.com/nulpointcorp/llm-gateway/internal/pipeline"
	"github.com/nulpointcorp/llm-gateway/pkg/apierr"
)

// HealthChecker is satisfied by every dependency the /health endpoint
// probes: the exact cache, the vector cache, and the embedding client.
type HealthChecker interface {
	Health(ctx context.Context) bool
}

// Flusher is satisfied by the exact cache for the admin flush endpoint.
type Flusher interface {
	FlushAll(ctx context.Context) error
}

const healthProbeTimeout = 3 * time.Second

// Server wires the pipeline and operator surface into fasthttp handlers.
type Server struct {
	pipeline *pipeline.Pipeline

	exact    HealthChecker
	exactFlu Flusher
	vector   HealthChecker
	embed    HealthChecker

	cacheMetrics *metrics.CacheMetrics
	prom         *metrics.PromRegistry

	corsOrigins []string
	log         *slog.Logger

	dashboardHTML []byte
}

// New builds a Server.
func New(p *pipeline.Pipeline, exact HealthChecker, exactFlu Flusher, vector HealthChecker, embed HealthChecker, cacheMetrics *metrics.CacheMetrics, prom *metrics.PromRegistry, corsOrigins []string, log *slog.Logger, dashboardHTML []byte) *Server {
	return &Server{
		pipeline:      p,
		exact:         exact,
		exactFlu:      exactFlu,
		vector:        vector,
		embed:         embed,
		cacheMetrics:  cacheMetrics,
		prom:          prom,
		corsOrigins:   corsOrigins,
		log:           log,
		dashboardHTML: dashboardHTML,
	}
}

func (s *Server) handleChatCompletions(ctx *fasthttp.RequestCtx) {
	body := ctx.PostBody()

	bypass := strings.EqualFold(string(ctx.Request.Header.Peek("x-bypass-cache")), "true")

	ttlOverride := 0
	if raw := string(ctx.Request.Header.Peek("x-cache-ttl")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			ttlOverride = n
		}
	}

	respBody, err := s.pipeline.Handle(ctx, body, bypass, ttlOverride)
	if err != nil {
		s.writePipelineError(ctx, err)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(respBody)
}

func (s *Server) writePipelineError(ctx *fasthttp.RequestCtx, err error) {
	pe, ok := err.(*pipeline.Error)
	if !ok {
		apierr.WriteInternalError(ctx, err.Error())
		return
	}
	switch pe.Kind {
	case pipeline.KindMalformedRequest:
		apierr.WriteMalformedRequest(ctx, pe.Message)
	case pipeline.KindUpstreamError:
		apierr.WriteUpstreamError(ctx, pe.Message)
	default:
		apierr.WriteInternalError(ctx, pe.Message)
	}
}

// serviceState is the nested {"status":"up"|"down"} shape spec.md's
// response table requires for each probed dependency.
type serviceState struct {
	Status string `json:"status"`
}

type serviceStatus struct {
	Redis      serviceState `json:"redis"`
	Qdrant     serviceState `json:"qdrant"`
	Embeddings serviceState `json:"embeddings"`
}

func newServiceState(up bool) serviceState {
	if up {
		return serviceState{Status: "up"}
	}
	return serviceState{Status: "down"}
}

// probeServices runs all three dependency health checks concurrently with a
// shared deadline (spec.md §4.8 / §8: "the three probes execute
// concurrently").
func (s *Server) probeServices(ctx context.Context) (serviceStatus, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	var wg sync.WaitGroup
	var redisUp, qdrantUp, embedUp bool

	wg.Add(3)
	go func() { defer wg.Done(); redisUp = s.exact.Health(probeCtx) }()
	go func() { defer wg.Done(); qdrantUp = s.vector.Health(probeCtx) }()
	go func() { defer wg.Done(); embedUp = s.embed.Health(probeCtx) }()
	wg.Wait()

	allUp := redisUp && qdrantUp && embedUp
	s.prom.SetServiceHealth("redis", redisUp)
	s.prom.SetServiceHealth("qdrant", qdrantUp)
	s.prom.SetServiceHealth("embeddings", embedUp)

	return serviceStatus{
		Redis:      newServiceState(redisUp),
		Qdrant:     newServiceState(qdrantUp),
		Embeddings: newServiceState(embedUp),
	}, allUp
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	services, allUp := s.probeServices(ctx)

	status := fasthttp.StatusOK
	statusWordTop := "ok"
	if !allUp {
		status = fasthttp.StatusServiceUnavailable
		statusWordTop = "degraded"
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(struct {
		Status    string        `json:"status"`
		Services  serviceStatus `json:"services"`
		Timestamp string        `json:"timestamp"`
	}{
		Status:    statusWordTop,
		Services:  services,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	ctx.SetBody(body)
}

func (s *Server) handleMetrics(ctx *fasthttp.RequestCtx) {
	snap := s.cacheMetrics.Snapshot()
	s.prom.MirrorSnapshot(snap)

	ctx.SetContentType("application/json")
	body, _ := json.Marshal(snap)
	ctx.SetBody(body)
}

func (s *Server) handleDashboard(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBody(s.dashboardHTML)
}

func (s *Server) handleCacheClear(ctx *fasthttp.RequestCtx) {
	if err := s.exactFlu.FlushAll(ctx); err != nil {
		ctx.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		body, _ := json.Marshal(struct {
			Error string `json:"error"`
		}{Error: err.Error()})
		ctx.SetBody(body)
		return
	}

	ctx.SetContentType("application/json")
	body, _ := json.Marshal(struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}{Status: "success", Message: "exact cache flushed"})
	ctx.SetBody(body)
}

func (s *Server) handleAdminStats(ctx *fasthttp.RequestCtx) {
	snap := s.cacheMetrics.Snapshot()
	services, _ := s.probeServices(ctx)

	ctx.SetContentType("application/json")
	body, _ := json.Marshal(struct {
		CacheStats metrics.Snapshot `json:"cache_stats"`
		Services   serviceStatus    `json:"services"`
	}{CacheStats: snap, Services: services})
	ctx.SetBody(body)
}
