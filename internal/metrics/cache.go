// Package metrics holds the process-wide cache metrics registry (lock-free
// atomic counters and their snapshot projection) plus an ambient Prometheus
// exposition for operators who scrape instead of polling the dashboard.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/nulpointcorp/llm-gateway/internal/pricing"
)

// CacheMetrics is the core counter set the request pipeline updates. Every
// field is a lock-free atomic; readers take a consistent-per-counter, not
// consistent-across-counters, snapshot — derived ratios tolerate mild skew.
type CacheMetrics struct {
	exactHits    atomic.Uint64
	semanticHits atomic.Uint64
	misses       atomic.Uint64

	tokensUsed  atomic.Uint64
	tokensSaved atomic.Uint64

	// costSpentMicros / costSavedMicros store USD * 1e6 so they can live in
	// an atomic integer instead of racing float64 adds.
	costSpentMicros atomic.Uint64
	costSavedMicros atomic.Uint64

	pricing   *pricing.Model
	startedAt time.Time
}

// New creates a CacheMetrics registry. startedAt is recorded for the
// snapshot's uptime field.
func New(p *pricing.Model) *CacheMetrics {
	return &CacheMetrics{pricing: p, startedAt: time.Now()}
}

// RecordExactHit accounts one exact-tier hit. Per spec.md §4.6 step 5, exact
// hits do not re-read the cached response's token count — tokens_saved is
// incremented by zero, a documented limitation (spec.md §9).
func (m *CacheMetrics) RecordExactHit() {
	m.exactHits.Add(1)
}

// RecordSemanticHit accounts one semantic-tier hit, attributing the cached
// response's total tokens to tokens_saved and their dollar value to
// cost_saved.
func (m *CacheMetrics) RecordSemanticHit(totalTokens int, model string) {
	m.semanticHits.Add(1)
	m.tokensSaved.Add(uint64(totalTokens))
	saved := m.pricing.Cost(model, totalTokens, 0)
	m.costSavedMicros.Add(uint64(saved * 1_000_000))
}

// RecordMiss accounts one miss resolved by an upstream call, attributing
// the response's usage to tokens_used and cost_spent.
func (m *CacheMetrics) RecordMiss(promptTokens, completionTokens, totalTokens int, model string) {
	m.misses.Add(1)
	m.tokensUsed.Add(uint64(totalTokens))
	spent := m.pricing.Cost(model, promptTokens, completionTokens)
	m.costSpentMicros.Add(uint64(spent * 1_000_000))
}

// Snapshot is the read-time projection of CacheMetrics plus derived ratios.
type Snapshot struct {
	ExactHits    uint64 `json:"exact_hits"`
	SemanticHits uint64 `json:"semantic_hits"`
	Misses       uint64 `json:"misses"`
	TotalRequests uint64 `json:"total_requests"`
	HitRatePercent float64 `json:"hit_rate_percent"`

	TokensUsed                  uint64  `json:"tokens_used"`
	TokensSaved                 uint64  `json:"tokens_saved"`
	TotalTokensWithoutCache     uint64  `json:"total_tokens_without_cache"`
	CostSpentUSD                float64 `json:"cost_spent_usd"`
	CostSavedUSD                float64 `json:"cost_saved_usd"`
	TotalCostWithoutCacheUSD    float64 `json:"total_cost_without_cache_usd"`
	SavingsPercent               float64 `json:"savings_percent"`

	Pricing map[string]pricing.Rate `json:"pricing"`
	Note    string                  `json:"note,omitempty"`

	UptimeSeconds int64     `json:"uptime_seconds"`
	StartedAt     time.Time `json:"started_at"`
}

// Snapshot projects the current counters into a MetricsSnapshot.
func (m *CacheMetrics) Snapshot() Snapshot {
	exact := m.exactHits.Load()
	semantic := m.semanticHits.Load()
	miss := m.misses.Load()
	total := exact + semantic + miss

	tokensUsed := m.tokensUsed.Load()
	tokensSaved := m.tokensSaved.Load()
	costSpent := float64(m.costSpentMicros.Load()) / 1_000_000
	costSaved := float64(m.costSavedMicros.Load()) / 1_000_000

	var hitRate float64
	if total > 0 {
		hitRate = float64(exact+semantic) / float64(total) * 100
	}

	var savingsPct float64
	totalCostWithoutCache := costSpent + costSaved
	if totalCostWithoutCache > 0 {
		savingsPct = costSaved / totalCostWithoutCache * 100
	}

	snap := Snapshot{
		ExactHits:      exact,
		SemanticHits:   semantic,
		Misses:         miss,
		TotalRequests:  total,
		HitRatePercent: hitRate,

		TokensUsed:               tokensUsed,
		TokensSaved:              tokensSaved,
		TotalTokensWithoutCache:  tokensUsed + tokensSaved,
		CostSpentUSD:             costSpent,
		CostSavedUSD:             costSaved,
		TotalCostWithoutCacheUSD: totalCostWithoutCache,
		SavingsPercent:           savingsPct,

		Pricing: pricing.Table,

		UptimeSeconds: int64(time.Since(m.startedAt).Seconds()),
		StartedAt:     m.startedAt.UTC(),
	}

	if m.pricing.UsedFallback() {
		snap.Note = "fallback pricing was used for at least one observation"
	}

	return snap
}
