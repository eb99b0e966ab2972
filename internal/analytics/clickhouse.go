// Package analytics provides an optional ClickHouse-backed AnalyticsSink for
// internal/requestlog. It is wired only when CLICKHOUSE_DSN is configured;
// the flat request log file remains the durable source of truth either way.
package analytics

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/nulpointcorp/llm-gateway/internal/requestlog"
)

// ClickHouseSink mirrors every completed request into a ClickHouse table
// for historical analysis, independent of the flat request log file.
type ClickHouseSink struct {
	db *sql.DB
}

// NewClickHouseSink opens dsn and ensures the target table exists.
func NewClickHouseSink(dsn string) (*ClickHouseSink, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("analytics: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("analytics: ping: %w", err)
	}
	if err := ensureTable(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ClickHouseSink{db: db}, nil
}

func ensureTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS llm_gateway_requests (
			ts DateTime,
			outcome String,
			model String,
			tokens UInt32,
			cost_usd Float64
		) ENGINE = MergeTree()
		ORDER BY ts
	`)
	if err != nil {
		return fmt.Errorf("analytics: ensure table: %w", err)
	}
	return nil
}

// Insert writes one completed-request record.
func (s *ClickHouseSink) Insert(ctx context.Context, e requestlog.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_gateway_requests (ts, outcome, model, tokens, cost_usd) VALUES (?, ?, ?, ?, ?)
	`, e.Timestamp, string(e.Outcome), e.Model, e.Tokens, e.CostUSD)
	if err != nil {
		return fmt.Errorf("analytics: insert: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *ClickHouseSink) Close() error {
	return s.db.Close()
}

var _ requestlog.AnalyticsSink = (*ClickHouseSink)(nil)
