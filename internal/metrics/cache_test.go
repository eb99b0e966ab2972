package metrics

import (
	"testing"

	"github.com/nulpointcorp/llm-gateway/internal/pricing"
)

func TestInvariantTotalRequestsSumsCounters(t *testing.T) {
	m := New(pricing.New())

	m.RecordMiss(10, 10, 20, "llama-3.3-70b-versatile")
	m.RecordExactHit()
	m.RecordExactHit()
	m.RecordSemanticHit(15, "llama-3.3-70b-versatile")

	snap := m.Snapshot()
	if snap.TotalRequests != snap.ExactHits+snap.SemanticHits+snap.Misses {
		t.Fatalf("total_requests invariant broken: %+v", snap)
	}
	if snap.ExactHits != 2 || snap.SemanticHits != 1 || snap.Misses != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}

func TestExactHitDoesNotAddTokensSaved(t *testing.T) {
	m := New(pricing.New())
	m.RecordExactHit()
	snap := m.Snapshot()
	if snap.TokensSaved != 0 {
		t.Fatalf("exact hits must not contribute to tokens_saved, got %d", snap.TokensSaved)
	}
}

func TestSemanticHitAddsTokensAndCostSaved(t *testing.T) {
	m := New(pricing.New())
	m.RecordSemanticHit(100, "llama-3.1-8b-instant")
	snap := m.Snapshot()
	if snap.TokensSaved != 100 {
		t.Fatalf("tokens_saved = %d, want 100", snap.TokensSaved)
	}
	if snap.CostSavedUSD <= 0 {
		t.Fatal("cost_saved_usd must be positive after a semantic hit")
	}
}

func TestFallbackNoteAppearsInSnapshot(t *testing.T) {
	m := New(pricing.New())
	m.RecordMiss(10, 10, 20, "totally-unknown-model")
	snap := m.Snapshot()
	if snap.Note == "" {
		t.Fatal("expected fallback note in snapshot after an unknown model miss")
	}
}
