// Package docfetch downloads remote documents referenced by URL in an
// extraction request, enforcing the same byte ceiling as direct uploads.
package docfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrTooLarge marks a document over the configured byte ceiling; the API
// layer maps it to 413.
var ErrTooLarge = errors.New("document exceeds size limit")

type Fetcher struct {
	client   *http.Client
	maxBytes int64
	log      *slog.Logger
}

func NewFetcher(timeout time.Duration, maxBytes int64, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		log:      log,
	}
}

// Fetch downloads url and returns its bytes and Content-Type. The ceiling is
// enforced on the actual body, not the advertised Content-Length, since
// servers lie about the latter.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch document: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.log.Warn("docfetch.body_close", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch document: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, "", ErrTooLarge
	}

	// Read one byte past the limit to distinguish at-limit from over-limit.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", ErrTooLarge
	}

	f.log.Info("docfetch.ok",
		"bytes", len(data),
		"content_type", resp.Header.Get("Content-Type"),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, resp.Header.Get("Content-Type"), nil
}
