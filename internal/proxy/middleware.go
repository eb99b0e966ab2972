package proxy

import (
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/llm-gateway/internal/metrics"
	"github.com/nulpointcorp/llm-gateway/pkg/apierr"
)

// recovery turns a handler panic into a 500 instead of tearing down the
// worker goroutine, and logs the stack for diagnosis.
func recovery(log *slog.Logger, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
				apierr.WriteInternalError(ctx, "internal server error")
			}
		}()
		next(ctx)
	}
}

// requestID stamps every response with an x-request-id header, generating
// one if the client didn't supply it.
func requestID(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := string(ctx.Request.Header.Peek("x-request-id"))
		if id == "" {
			id = uuid.New().String()
		}
		ctx.Response.Header.Set("x-request-id", id)
		next(ctx)
	}
}

// cors allows the configured origins to poll the JSON endpoints from the
// dashboard page.
func cors(origins []string, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(ctx *fasthttp.RequestCtx) {
		origin := string(ctx.Request.Header.Peek("Origin"))
		switch {
		case allowAll:
			ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
		}
		ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type, x-bypass-cache, x-cache-ttl")

		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// observability records per-route request counts, status codes, and
// latency into the Prometheus registry, and tracks in-flight concurrency.
func observability(prom *metrics.PromRegistry, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		prom.IncInFlight()
		defer prom.DecInFlight()

		start := time.Now()
		next(ctx)
		route := string(ctx.Path())
		prom.ObserveHTTP(route, ctx.Response.StatusCode(), time.Since(start))
	}
}

func chain(log *slog.Logger, corsOrigins []string, prom *metrics.PromRegistry, h fasthttp.RequestHandler) fasthttp.RequestHandler {
	h = observability(prom, h)
	h = cors(corsOrigins, h)
	h = requestID(h)
	h = recovery(log, h)
	return h
}
