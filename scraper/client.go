package scraper

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lukemcguire/imagegrab/result"
)

const (
	acceptHTML  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptImage = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"

	phasePage  = "page"
	phaseImage = "image"
)

// NewHTTPClient builds the client shared by extraction and downloads.
// Redirects follow the net/http defaults. Timeouts are applied per request
// through the context so that reading the body is covered too.
func NewHTTPClient(cfg Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via Config.InsecureSkipVerify
	}
	return &http.Client{Transport: transport}
}

// get issues a GET for rawURL and returns the response if its status is 2xx.
// The caller must close the body. Failures come back as *result.Error.
func get(ctx context.Context, client *http.Client, rawURL, userAgent, accept, phase string, metrics *Metrics) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, result.NetworkError(rawURL, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	metrics.IncRequest(phase)
	start := time.Now()
	resp, err := client.Do(req)
	metrics.ObserveDuration(phase, time.Since(start))
	if err != nil {
		return nil, result.NetworkError(rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drainAndClose(resp.Body)
		return nil, result.StatusError(rawURL, resp.StatusCode)
	}
	return resp, nil
}

// drainAndClose discards a small remainder of body so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, 4<<10)
	_ = body.Close()
}
