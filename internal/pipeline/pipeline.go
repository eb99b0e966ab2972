// Package pipeline implements the request orchestrator: the ordered
// sequence of fingerprinting, exact lookup, embedding, vector search,
// upstream call, and dual writeback that makes the two-tier cache work.
//
// Pipeline is HTTP-agnostic on purpose — it takes a raw request body and
// header-derived flags, and returns a raw response body or a *Error.
// internal/proxy owns translating fasthttp requests into calls here.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nulpointcorp/llm-gateway/internal/cache"
	"github.com/nulpointcorp/llm-gateway/internal/fingerprint"
	"github.com/nulpointcorp/llm-gateway/internal/metrics"
	"github.com/nulpointcorp/llm-gateway/internal/pricing"
	"github.com/nulpointcorp/llm-gateway/internal/requestlog"
	"github.com/nulpointcorp/llm-gateway/internal/upstream"
)

const (
	ttlShort = 3600 * time.Second
	ttlLong  = 86400 * time.Second
)

// ErrorKind identifies which error-handling row in the pipeline's error
// table produced a Error.
type ErrorKind string

const (
	KindMalformedRequest ErrorKind = "MalformedRequest"
	KindUpstreamError    ErrorKind = "UpstreamError"
)

// Error is the only error type Handle returns to its caller. Every other
// failure mode (cache-tier errors, embedding unavailability) is absorbed
// internally and logged — it never reaches the HTTP layer as an error.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// ExactStore is the three-valued exact-tier contract the pipeline depends
// on. *cache.ExactCache satisfies this.
type ExactStore interface {
	Get(ctx context.Context, key string) ([]byte, cache.ExactResult, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Embedder is the embedding-service contract. *embedclient.Client satisfies
// this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Upstreamer is the upstream LLM contract. *upstream.Client satisfies this.
type Upstreamer interface {
	Complete(ctx context.Context, body []byte) (*upstream.Response, error)
}

// Breaker guards the upstream call. A single breaker backs Pipeline — there
// is exactly one configured provider, so there is no per-provider map to
// maintain.
type Breaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
}

// noopBreaker always allows; used when no breaker is wired.
type noopBreaker struct{}

func (noopBreaker) Allow() bool      { return true }
func (noopBreaker) RecordSuccess()   {}
func (noopBreaker) RecordFailure()   {}

// Pipeline is the request orchestrator. All fields are set once at startup
// and shared across every request — no per-request allocation beyond what
// Handle itself needs.
type Pipeline struct {
	exact    ExactStore
	vector   cache.VectorStore
	embedder Embedder
	upstream Upstreamer

	metrics *metrics.CacheMetrics
	pricing *pricing.Model
	reqlog  *requestlog.Logger
	breaker Breaker
	log     *slog.Logger
}

// New builds a Pipeline. breaker may be nil, in which case the upstream
// call is never blocked by circuit-breaker state.
func New(exact ExactStore, vector cache.VectorStore, embedder Embedder, ups Upstreamer, m *metrics.CacheMetrics, p *pricing.Model, rl *requestlog.Logger, breaker Breaker, log *slog.Logger) *Pipeline {
	if breaker == nil {
		breaker = noopBreaker{}
	}
	return &Pipeline{
		exact:    exact,
		vector:   vector,
		embedder: embedder,
		upstream: ups,
		metrics:  m,
		pricing:  p,
		reqlog:   rl,
		breaker:  breaker,
		log:      log,
	}
}

type chatMessageJSON struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestJSON struct {
	Model       string            `json:"model"`
	Messages    []chatMessageJSON `json:"messages"`
	Temperature *float64          `json:"temperature"`
	MaxTokens   *int              `json:"max_tokens"`
}

type chatResponseJSON struct {
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Handle runs the full pipeline for one request and returns the raw
// response body to send back to the client. bypass and ttlOverrideSeconds
// come from the x-bypass-cache / x-cache-ttl headers.
func (p *Pipeline) Handle(ctx context.Context, rawBody []byte, bypass bool, ttlOverrideSeconds int) ([]byte, error) {
	req, err := parseChatRequest(rawBody)
	if err != nil {
		return nil, &Error{Kind: KindMalformedRequest, Status: 400, Message: err.Error()}
	}

	_, exactKey := fingerprint.Fingerprint(toFingerprintRequest(req))
	ttl := resolveTTL(ttlOverrideSeconds, req.Temperature)

	if bypass {
		return p.resolveViaUpstream(ctx, rawBody, req.Model, exactKey, ttl, nil, false)
	}

	switch data, result, getErr := p.exact.Get(ctx, exactKey); result {
	case cache.ResultPresent:
		p.recordExactHit(req.Model, exactKey)
		return data, nil
	case cache.ResultError:
		p.log.Warn("exact cache get failed, proceeding as miss", slog.String("key", exactKey), slog.Any("error", getErr))
	}

	var embedding []float32
	embedding, embedErr := p.embedder.Embed(ctx, promptText(req))
	if embedErr != nil {
		p.log.Warn("embedding error — skipping semantic cache", slog.Any("error", embedErr))
		embedding = nil
	} else {
		match, searchErr := p.vector.Search(ctx, embedding)
		if searchErr != nil {
			p.log.Warn("vector search failed, proceeding to upstream", slog.Any("error", searchErr))
		} else if match != nil {
			return p.resolveSemanticHit(ctx, exactKey, ttl, match)
		}
	}

	return p.resolveViaUpstream(ctx, rawBody, req.Model, exactKey, ttl, embedding, true)
}

func (p *Pipeline) recordExactHit(model, exactKey string) {
	p.metrics.RecordExactHit()
	p.reqlog.Log(requestlog.Entry{Outcome: requestlog.ExactHit, Model: model, Tokens: 0, CostUSD: 0})
}

func (p *Pipeline) resolveSemanticHit(ctx context.Context, exactKey string, ttl time.Duration, match *cache.VectorMatch) ([]byte, error) {
	if err := p.exact.Set(ctx, exactKey, match.Response, ttl); err != nil {
		p.log.Warn("exact promotion write failed", slog.String("key", exactKey), slog.Any("error", err))
	}

	model, totalTokens := decodeResponseAccounting(match.Response)
	p.metrics.RecordSemanticHit(totalTokens, model)
	cost := p.pricing.Cost(model, totalTokens, 0)
	p.reqlog.Log(requestlog.Entry{Outcome: requestlog.SemanticHit, Model: model, Tokens: totalTokens, CostUSD: cost})

	return match.Response, nil
}

// resolveViaUpstream performs the upstream call and, unless bypass/writeback
// is disabled, the dual writeback. write is false only for the bypass path.
func (p *Pipeline) resolveViaUpstream(ctx context.Context, rawBody []byte, reqModel, exactKey string, ttl time.Duration, embedding []float32, write bool) ([]byte, error) {
	if !p.breaker.Allow() {
		return nil, &Error{Kind: KindUpstreamError, Status: 500, Message: "upstream circuit breaker is open"}
	}

	resp, err := p.upstream.Complete(ctx, rawBody)
	if err != nil {
		p.breaker.RecordFailure()
		return nil, &Error{Kind: KindUpstreamError, Status: 500, Message: fmt.Sprintf("upstream request failed: %v", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.breaker.RecordFailure()
		return nil, &Error{Kind: KindUpstreamError, Status: 500, Message: fmt.Sprintf("upstream returned status %d", resp.StatusCode)}
	}
	p.breaker.RecordSuccess()

	if write {
		if err := p.exact.Set(ctx, exactKey, resp.RawBody, ttl); err != nil {
			p.log.Warn("exact writeback failed", slog.String("key", exactKey), slog.Any("error", err))
		}
		if embedding != nil {
			id := uuid.New().String()
			if err := p.vector.Upsert(ctx, id, embedding, exactKey, resp.RawBody); err != nil {
				p.log.Warn("vector writeback failed", slog.String("key", exactKey), slog.Any("error", err))
			}
		}
	}

	model := resp.Model
	if model == "" {
		model = reqModel
	}
	totalTokens := resp.TotalTokens
	if totalTokens == 0 {
		totalTokens = resp.PromptTokens + resp.CompletionTokens()
	}
	p.metrics.RecordMiss(resp.PromptTokens, resp.CompletionTokens(), totalTokens, model)
	cost := p.pricing.Cost(model, resp.PromptTokens, resp.CompletionTokens())
	p.reqlog.Log(requestlog.Entry{Outcome: requestlog.Miss, Model: model, Tokens: totalTokens, CostUSD: cost})

	return resp.RawBody, nil
}

func parseChatRequest(rawBody []byte) (chatRequestJSON, error) {
	var req chatRequestJSON
	if err := json.Unmarshal(rawBody, &req); err != nil {
		return req, fmt.Errorf("invalid JSON body: %w", err)
	}
	if req.Model == "" {
		return req, fmt.Errorf("missing required field: model")
	}
	if len(req.Messages) == 0 {
		return req, fmt.Errorf("messages must be a non-empty array")
	}
	return req, nil
}

func toFingerprintRequest(req chatRequestJSON) fingerprint.Request {
	msgs := make([]fingerprint.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = fingerprint.Message{Role: m.Role, Content: m.Content}
	}
	return fingerprint.Request{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// promptText builds the embedding input: each message as "role: content",
// joined by newlines, using the message text as received (not normalized —
// normalization is an exact-key concern, not an embedding one).
func promptText(req chatRequestJSON) string {
	lines := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		lines[i] = m.Role + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func resolveTTL(overrideSeconds int, temperature *float64) time.Duration {
	if overrideSeconds > 0 {
		return time.Duration(overrideSeconds) * time.Second
	}
	if temperature != nil && *temperature > 0.7 {
		return ttlShort
	}
	return ttlLong
}

// decodeResponseAccounting pulls the model and total-token-count out of a
// cached ChatResponse JSON blob. A decode failure yields zero values rather
// than an error — a corrupt cache entry must not fail the request that
// surfaces it, it can only under-report accounting for it.
func decodeResponseAccounting(body []byte) (model string, totalTokens int) {
	var r chatResponseJSON
	if err := json.Unmarshal(body, &r); err != nil {
		return "", 0
	}
	return r.Model, r.Usage.TotalTokens
}
