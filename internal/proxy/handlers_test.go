package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/llm-gateway/internal/metrics"
	"github.com/nulpointcorp/llm-gateway/internal/pricing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHealthChecker struct {
	up bool
}

func (f *fakeHealthChecker) Health(ctx context.Context) bool { return f.up }

type fakeFlusher struct {
	err error
}

func (f *fakeFlusher) FlushAll(ctx context.Context) error { return f.err }

func newTestServer(exactUp, vectorUp, embedUp bool, flushErr error) *Server {
	p := pricing.New()
	return New(
		nil,
		&fakeHealthChecker{up: exactUp},
		&fakeFlusher{err: flushErr},
		&fakeHealthChecker{up: vectorUp},
		&fakeHealthChecker{up: embedUp},
		metrics.New(p),
		metrics.NewPromRegistry(),
		[]string{"*"},
		discardLogger(),
		[]byte("<html></html>"),
	)
}

func TestHandleHealthAllUpReturnsNestedStatusObjects(t *testing.T) {
	s := newTestServer(true, true, true, nil)

	// Init gives the ctx a server, which its context.Context methods need.
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&fasthttp.Request{}, nil, nil)
	s.handleHealth(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}

	var resp struct {
		Status   string `json:"status"`
		Services struct {
			Redis      struct{ Status string `json:"status"` } `json:"redis"`
			Qdrant     struct{ Status string `json:"status"` } `json:"qdrant"`
			Embeddings struct{ Status string `json:"status"` } `json:"embeddings"`
		} `json:"services"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("unmarshal: %v\nbody: %s", err, ctx.Response.Body())
	}

	if resp.Status != "ok" {
		t.Errorf("expected status=ok, got %q", resp.Status)
	}
	if resp.Services.Redis.Status != "up" || resp.Services.Qdrant.Status != "up" || resp.Services.Embeddings.Status != "up" {
		t.Errorf("expected all services up, got %+v", resp.Services)
	}
	if resp.Timestamp == "" {
		t.Error("expected a non-empty timestamp")
	}
}

func TestHandleHealthDegradedWhenOneServiceDown(t *testing.T) {
	s := newTestServer(true, false, true, nil)

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&fasthttp.Request{}, nil, nil)
	s.handleHealth(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", ctx.Response.StatusCode())
	}

	var resp struct {
		Status   string `json:"status"`
		Services struct {
			Qdrant struct{ Status string `json:"status"` } `json:"qdrant"`
		} `json:"services"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("expected status=degraded, got %q", resp.Status)
	}
	if resp.Services.Qdrant.Status != "down" {
		t.Errorf("expected qdrant.status=down, got %q", resp.Services.Qdrant.Status)
	}
}

func TestHandleAdminStatsNestsServiceStatus(t *testing.T) {
	s := newTestServer(true, true, false, nil)

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&fasthttp.Request{}, nil, nil)
	s.handleAdminStats(ctx)

	var resp struct {
		CacheStats json.RawMessage `json:"cache_stats"`
		Services   struct {
			Embeddings struct{ Status string `json:"status"` } `json:"embeddings"`
		} `json:"services"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("unmarshal: %v\nbody: %s", err, ctx.Response.Body())
	}
	if resp.Services.Embeddings.Status != "down" {
		t.Errorf("expected embeddings.status=down, got %q", resp.Services.Embeddings.Status)
	}
	if len(resp.CacheStats) == 0 {
		t.Error("expected cache_stats to be populated")
	}
}

func TestHandleCacheClearSuccess(t *testing.T) {
	s := newTestServer(true, true, true, nil)

	ctx := &fasthttp.RequestCtx{}
	s.handleCacheClear(ctx)

	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("expected status=success, got %q", resp.Status)
	}
}

func TestHandleCacheClearFailure(t *testing.T) {
	s := newTestServer(true, true, true, errors.New("flush failed"))

	ctx := &fasthttp.RequestCtx{}
	s.handleCacheClear(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", ctx.Response.StatusCode())
	}
}

func TestHandleDashboardServesEmbeddedHTML(t *testing.T) {
	s := newTestServer(true, true, true, nil)

	ctx := &fasthttp.RequestCtx{}
	s.handleDashboard(ctx)

	if string(ctx.Response.Body()) != "<html></html>" {
		t.Errorf("unexpected dashboard body: %s", ctx.Response.Body())
	}
	if ct := string(ctx.Response.Header.ContentType()); ct != "text/html; charset=utf-8" {
		t.Errorf("unexpected content type: %q", ct)
	}
}
