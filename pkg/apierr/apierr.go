// Package apierr provides structured API error types and HTTP status
// mapping for the cache proxy's error kinds.
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// ErrorType constants, one per error-kind row the pipeline and operator
// surface can produce.
const (
	TypeMalformedRequest = "malformed_request"
	TypeUpstreamError    = "upstream_error"
	TypeInternalError    = "internal_error"
)

// Code constants.
const (
	CodeInvalidJSON   = "invalid_json"
	CodeUpstreamError = "upstream_error"
	CodeInternalError = "internal_error"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteMalformedRequest writes the 400 MalformedRequest error (spec.md §7).
func WriteMalformedRequest(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusBadRequest, message, TypeMalformedRequest, CodeInvalidJSON)
}

// WriteUpstreamError writes the 500 UpstreamError error — the only cache-
// tier-adjacent failure allowed to produce a 5xx (spec.md §7).
func WriteUpstreamError(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusInternalServerError, message, TypeUpstreamError, CodeUpstreamError)
}

// WriteInternalError writes a generic 500 for failures outside the
// pipeline's documented error kinds (e.g. a handler-level panic recovery).
func WriteInternalError(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusInternalServerError, message, TypeInternalError, CodeInternalError)
}
