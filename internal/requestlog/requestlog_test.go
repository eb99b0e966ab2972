package requestlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogWritesFixedWidthLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requests.log")

	l := New(context.Background(), path, nil, nil)
	t.Cleanup(func() { _ = l.Close() })

	l.Log(Entry{
		Timestamp: time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC),
		Outcome:   Miss,
		Model:     "llama-3.3-70b-versatile",
		Tokens:    42,
		CostUSD:   0.00123,
	})

	waitForLine(t, path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	line := string(data)

	if !strings.Contains(line, "MISS") {
		t.Fatalf("expected MISS outcome in line, got %q", line)
	}
	if !strings.Contains(line, "llama-3.3-70b-versatile") {
		t.Fatalf("expected model in line, got %q", line)
	}
	if !strings.Contains(line, "42 tokens") {
		t.Fatalf("expected right-aligned token count, got %q", line)
	}
	if !strings.Contains(line, "$0.00123") {
		t.Fatalf("expected 5-decimal cost, got %q", line)
	}
	if !strings.Contains(line, "2026-08-03T12:00:00Z") {
		t.Fatalf("expected ISO-8601 UTC timestamp, got %q", line)
	}
}

func TestDroppedCountsOnFullChannel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requests.log")

	sink := &blockingSink{release: make(chan struct{})}
	l := New(context.Background(), path, sink, nil)
	t.Cleanup(func() {
		close(sink.release)
		_ = l.Close()
	})

	for i := 0; i < channelBuffer+100; i++ {
		l.Log(Entry{Outcome: Miss, Model: "m"})
	}

	// The writer holds at most one entry (stuck in the sink) and the channel
	// holds channelBuffer, so at least 99 of the 100 extra entries are dropped.
	if l.Dropped() < 99 {
		t.Fatalf("expected at least 99 dropped entries, got %d", l.Dropped())
	}
}

// blockingSink stalls the writer goroutine until release is closed.
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Insert(ctx context.Context, e Entry) error {
	<-s.release
	return nil
}

func (s *blockingSink) Close() error { return nil }

func waitForLine(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s to be written", path)
}
