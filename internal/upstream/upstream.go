// Package upstream forwards chat-completion requests verbatim to the
// configured LLM provider. It deliberately does not use a typed provider
// SDK: the proxy must preserve unknown/extra fields in the client's JSON
// body byte-for-byte, which a struct-typed request would silently drop.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const requestTimeout = 60 * time.Second

// Client posts chat-completion requests to a single OpenAI-compatible
// endpoint. One *http.Client with a pooled transport is built at startup
// and shared by every request — no per-call client construction.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// New returns a Client posting to endpoint (e.g.
// "https://api.groq.com/openai/v1/chat/completions") using apiKey as a
// bearer token.
func New(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        128,
				MaxIdleConnsPerHost: 128,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Response is the subset of the upstream's JSON body the pipeline needs to
// act on (usage accounting, model echoed back). RawBody is the full,
// unmodified response returned to the client and written to the cache.
type Response struct {
	RawBody      []byte
	StatusCode   int
	Model        string
	PromptTokens int
	TotalTokens  int
}

// usageEnvelope is decoded only far enough to pull out accounting fields;
// every other field in the body passes through RawBody untouched.
type usageEnvelope struct {
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// CompletionTokens is derived rather than stored on Response directly so
// callers always compute cost from the same decode.
func (r Response) CompletionTokens() int {
	if r.TotalTokens < r.PromptTokens {
		return 0
	}
	return r.TotalTokens - r.PromptTokens
}

// Complete forwards body (the client's raw chat-completion JSON, unmodified)
// to the upstream and returns its raw response alongside the accounting
// fields the pipeline needs. A non-nil error means the upstream could not
// be reached or its response could not be read. A non-2xx status is not an
// error here: it is returned in StatusCode, and the pipeline maps it to a
// 500 just as it does an error.
func (c *Client) Complete(ctx context.Context, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: read response: %w", err)
	}

	out := &Response{RawBody: raw, StatusCode: resp.StatusCode}

	var env usageEnvelope
	if err := json.Unmarshal(raw, &env); err == nil {
		out.Model = env.Model
		out.PromptTokens = env.Usage.PromptTokens
		out.TotalTokens = env.Usage.TotalTokens
	}

	return out, nil
}

// Health issues a lightweight request to confirm the upstream is reachable.
// Any status below 500, including 4xx such as an auth error, counts as
// "up"; a 5xx status or a transport error counts as "down". Health is a
// reachability probe, not a request-success probe.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
