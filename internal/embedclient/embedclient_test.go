package embedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text != "hello world" {
			t.Fatalf("unexpected text: %q", req.Text)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	vec, err := c.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3-dim vector, got %d", len(vec))
	}
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Embed(context.Background(), "x")
	if err == nil {
		t.Fatal("expected an error on 500 response")
	}
}

func TestEmbedEmptyVectorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: nil})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Embed(context.Background(), "x")
	if err == nil {
		t.Fatal("expected an error on an empty embedding")
	}
}

func TestEmbedUnreachableHost(t *testing.T) {
	c := New("http://127.0.0.1:1/embed")
	_, err := c.Embed(context.Background(), "x")
	if err == nil {
		t.Fatal("expected an error when the embedding service is unreachable")
	}
}

func TestHealthOKHitsSiblingHealthRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("expected Health to GET /health, got %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
	}))
	defer srv.Close()

	c := New(srv.URL + "/embed")
	if !c.Health(context.Background()) {
		t.Fatal("expected Health to report up")
	}
}

func TestHealthDownOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL + "/embed")
	if c.Health(context.Background()) {
		t.Fatal("expected Health to report down on a non-200 response")
	}
}

func TestHealthDownOnNonOKBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "degraded"})
	}))
	defer srv.Close()

	c := New(srv.URL + "/embed")
	if c.Health(context.Background()) {
		t.Fatal("expected Health to report down when status is not \"ok\"")
	}
}

func TestHealthDownWhenUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1/embed")
	if c.Health(context.Background()) {
		t.Fatal("expected Health to report down when unreachable")
	}
}

func TestHealthURLFrom(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:8001/embed":  "http://127.0.0.1:8001/health",
		"http://127.0.0.1:8001/embed/": "http://127.0.0.1:8001/health",
		"http://127.0.0.1:8001":        "http://127.0.0.1:8001/health",
	}
	for in, want := range cases {
		if got := healthURLFrom(in); got != want {
			t.Fatalf("healthURLFrom(%q) = %q, want %q", in, got, want)
		}
	}
}
