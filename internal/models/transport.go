package models

import (
	"io"
	"net/http"
	"strings"
	"time"
)

// checkedTransport turns transport failures and non-API responses (e.g. a
// reverse proxy answering "no available server" in plain text) into
// ErrModelUnavailable.
type checkedTransport struct {
	inner    http.RoundTripper
	provider string
}

// newHTTPClient returns a client whose responses are checked for provider.
func newHTTPClient(provider string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &checkedTransport{inner: http.DefaultTransport, provider: provider},
	}
}

func (t *checkedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &ErrModelUnavailable{Provider: t.provider, Cause: err}
	}

	if resp.StatusCode >= 400 {
		return nil, t.reject(resp)
	}

	// JSON for unary calls, ndjson (ollama) or SSE (OpenAI-compatible) for streams.
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "json") && !strings.Contains(ct, "event-stream") {
		return nil, t.reject(resp)
	}

	return resp, nil
}

func (t *checkedTransport) reject(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()
	status := 0
	if resp.StatusCode >= 400 {
		status = resp.StatusCode
	}
	return &ErrModelUnavailable{
		Provider: t.provider,
		Status:   status,
		Body:     strings.TrimSpace(string(body)),
	}
}
