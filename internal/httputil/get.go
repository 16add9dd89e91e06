// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the proxy and the engine client.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a failed response body is kept for the error message.
const maxErrorBody = 512

// StatusError reports a non-2xx response from an upstream service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.Code, e.Body)
}

// Get issues a single GET request and returns the response when the status
// is 2xx. Any other status is drained, closed, and reported as a
// *StatusError. There is no retry: callers surface failures to the user,
// who decides whether to try again.
func Get(ctx context.Context, client *http.Client, url, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return Do(client, req)
}

// Do executes req and converts non-2xx responses into a *StatusError.
func Do(client *http.Client, req *http.Request) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// ClientKey picks the identifier rate limiting is keyed on: the peer
// address when known, otherwise the first X-Forwarded-For hop, otherwise
// "unknown". It is best-effort; clients behind one NAT share a key.
func ClientKey(remoteIP string, header http.Header) string {
	if ip := strings.TrimSpace(remoteIP); ip != "" {
		return ip
	}
	if fwd := header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return "unknown"
}
