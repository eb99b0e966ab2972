package cache

import (
	"context"
	"testing"
)

// No live Qdrant server is available in this environment, so these tests
// exercise construction and the degrade-on-unreachable path rather than
// real search/upsert semantics (covered by the pipeline fake instead).

func TestNewVectorCacheDoesNotDialEagerly(t *testing.T) {
	c, err := NewVectorCache("127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewVectorCache should not error on an unreachable address (lazy dial): %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
}

func TestHealthFalseWhenUnreachable(t *testing.T) {
	c, err := NewVectorCache("127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewVectorCache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if c.Health(context.Background()) {
		t.Fatal("expected Health to report down when nothing is listening")
	}
}

func TestSearchErrorWhenUnreachable(t *testing.T) {
	c, err := NewVectorCache("127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewVectorCache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	vec := make([]float32, vectorDimension)
	match, err := c.Search(context.Background(), vec)
	if err == nil {
		t.Fatal("expected an error searching an unreachable collection")
	}
	if match != nil {
		t.Fatal("expected nil match on error")
	}
}

// fakeVectorStore is a hand-written in-memory VectorStore — no generated
// mocks, matching the teacher's fakes. The pipeline tests define their own
// fakeVector; this one is checked against the interface below.
type fakeVectorStore struct {
	ensureErr error
	match     *VectorMatch
	searchErr error
	upserted  []fakeUpsert
	upsertErr error
	healthy   bool
}

type fakeUpsert struct {
	ID       string
	Vector   []float32
	CacheKey string
	Response []byte
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context) error { return f.ensureErr }

func (f *fakeVectorStore) Search(ctx context.Context, vector []float32) (*VectorMatch, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.match, nil
}

func (f *fakeVectorStore) Upsert(ctx context.Context, id string, vector []float32, cacheKey string, response []byte) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, fakeUpsert{ID: id, Vector: vector, CacheKey: cacheKey, Response: response})
	return nil
}

func (f *fakeVectorStore) Health(ctx context.Context) bool { return f.healthy }

func (f *fakeVectorStore) Close() error { return nil }

var _ VectorStore = (*fakeVectorStore)(nil)
