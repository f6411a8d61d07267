package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/errgroup"
)

const (
	robotsCacheSize = 256
	robotsCacheTTL  = time.Hour
	robotsMaxBytes  = 512 << 10
	robotsWarmLimit = 4
)

// robotsEntry is a cached robots.txt. A nil data means allow everything.
type robotsEntry struct {
	data *robotstxt.RobotsData
}

// RobotsChecker fetches and caches robots.txt rules per scheme and host.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	cache     *expirable.LRU[string, robotsEntry]
}

// NewRobotsChecker creates a RobotsChecker that fetches with client.
func NewRobotsChecker(client *http.Client, userAgent string, timeout time.Duration) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
		cache:     expirable.NewLRU[string, robotsEntry](robotsCacheSize, nil, robotsCacheTTL),
	}
}

// Allowed reports whether rawURL may be fetched by the configured user agent.
// Any failure to obtain or parse robots.txt allows the fetch; the returned
// error is informational.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true, fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Host == "" {
		return true, nil
	}

	key := originOf(parsed)
	entry, ok := r.cache.Get(key)
	if !ok {
		entry, err = r.fetch(ctx, key)
		r.cache.Add(key, entry)
	}
	if entry.data == nil {
		return true, err
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return entry.data.TestAgent(path, r.userAgent), err
}

// Warm fetches robots.txt for every uncached origin among urls, a few
// origins at a time, so the Allowed calls that follow are served from cache.
// Nothing is cached once ctx is done.
func (r *RobotsChecker) Warm(ctx context.Context, urls []string) {
	origins := make(map[string]struct{})
	for _, rawURL := range urls {
		parsed, err := url.Parse(rawURL)
		if err != nil || parsed.Host == "" {
			continue
		}
		key := originOf(parsed)
		if !r.cache.Contains(key) {
			origins[key] = struct{}{}
		}
	}

	var g errgroup.Group
	g.SetLimit(robotsWarmLimit)
	for origin := range origins {
		origin := origin
		g.Go(func() error {
			entry, _ := r.fetch(ctx, origin)
			if ctx.Err() == nil {
				r.cache.Add(origin, entry)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func originOf(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// fetch downloads and parses robots.txt for origin. 404 and 5xx mean allow all.
func (r *RobotsChecker) fetch(ctx context.Context, origin string) (robotsEntry, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return robotsEntry{}, fmt.Errorf("create robots.txt request for %s: %w", origin, err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return robotsEntry{}, fmt.Errorf("fetch robots.txt for %s: %w", origin, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode >= 500 {
		return robotsEntry{}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return robotsEntry{}, fmt.Errorf("read robots.txt for %s: %w", origin, err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return robotsEntry{}, fmt.Errorf("parse robots.txt for %s: %w", origin, err)
	}
	return robotsEntry{data: data}, nil
}

// Purge drops all cached entries.
func (r *RobotsChecker) Purge() {
	r.cache.Purge()
}
