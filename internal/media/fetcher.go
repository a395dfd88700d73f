// Package media retrieves photo attachments referenced by inbound events.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fetcher downloads a remote attachment and returns it base64-encoded for the
// vision completion request. Any failure is the caller's cue to proceed
// without the attachment.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 20 * 1024 * 1024
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads url and returns (base64 payload, MIME type).
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}

	// Read one byte past the cap to distinguish "exactly at cap" from "over".
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return "", "", fmt.Errorf("attachment exceeds %d bytes", f.maxBytes)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}

	return base64.StdEncoding.EncodeToString(data), mime, nil
}
