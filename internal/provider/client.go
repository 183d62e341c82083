package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Caller issues one chat request and, on 2xx, hands back the live response
// body for streaming. The fallback orchestrator depends on this interface.
type Caller interface {
	Call(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

// Client is an HTTP Caller against an OpenRouter-compatible endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient builds a provider client. timeout bounds the whole call including
// the streamed read.
func NewClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Call POSTs the request body and returns the open response body on 2xx.
// Non-2xx responses are drained, closed, and classified into the error
// taxonomy; the caller never receives a body it must clean up on error.
func (c *Client) Call(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Error("provider.call.transport_error",
			"model", req.Model,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, &TransportError{Model: req.Model, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview := readPreview(resp.Body, 512)
		_ = resp.Body.Close()
		kind := classifyStatus(resp.StatusCode)
		c.log.Warn("provider.call.rejected",
			"model", req.Model,
			"status", resp.StatusCode,
			"kind", string(kind),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, &RejectionError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Model:      req.Model,
			Body:       preview,
		}
	}

	c.log.Info("provider.call.ok",
		"model", req.Model,
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp.Body, nil
}

func readPreview(r io.Reader, n int) string {
	buf := make([]byte, n)
	read, _ := io.ReadFull(r, buf)
	return string(buf[:read])
}
