package provider

import (
	"errors"
	"fmt"
)

// RejectionKind classifies a non-2xx provider response. Each kind carries a
// different retry policy in the orchestrator.
type RejectionKind string

const (
	RejectionRateLimited RejectionKind = "rate_limited" // 429: retry same model with backoff
	RejectionModeration  RejectionKind = "moderation"   // 403: skip model immediately
	RejectionClient      RejectionKind = "client"       // other 4xx: skip model immediately
	RejectionServer      RejectionKind = "server"       // 5xx: retry within budget, then advance
)

// RejectionError is a structured error for a provider-side refusal.
type RejectionError struct {
	Kind       RejectionKind
	StatusCode int
	Model      string
	Body       string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("provider rejected %s: %s (status %d)", e.Model, e.Kind, e.StatusCode)
}

// Retryable reports whether the same model may be retried after backoff.
func (e *RejectionError) Retryable() bool {
	return e.Kind == RejectionRateLimited || e.Kind == RejectionServer
}

// TransportError wraps a network-level failure (dial, TLS, timeout). Always
// retryable within the model's budget.
type TransportError struct {
	Model string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider transport failure for %s: %v", e.Model, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// StreamError is a mid-stream error event delivered inside the SSE payload.
type StreamError struct {
	Model   string
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error from %s: %s", e.Model, e.Message)
}

// classifyStatus maps an HTTP status to a rejection kind.
func classifyStatus(status int) RejectionKind {
	switch {
	case status == 429:
		return RejectionRateLimited
	case status == 403:
		return RejectionModeration
	case status >= 400 && status < 500:
		return RejectionClient
	default:
		return RejectionServer
	}
}

// AsRejection unwraps err into a RejectionError if it is one.
func AsRejection(err error) (*RejectionError, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
