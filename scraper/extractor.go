// Package scraper fetches one web page, collects the images it references and
// downloads them to a local directory.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lukemcguire/imagegrab/result"
	"github.com/lukemcguire/imagegrab/urlutil"
)

// Extractor fetches a page and returns the image URLs it references.
type Extractor struct {
	cfg    Config
	client *http.Client
	robots *RobotsChecker
	log    *logrus.Logger
}

// NewExtractor creates an Extractor. A nil logger discards all output.
func NewExtractor(cfg Config, logger *logrus.Logger) *Extractor {
	cfg = cfg.withDefaults()
	client := NewHTTPClient(cfg)

	e := &Extractor{
		cfg:    cfg,
		client: client,
		log:    orDiscard(logger),
	}
	if cfg.RespectRobots {
		e.robots = NewRobotsChecker(client, cfg.UserAgent, cfg.RequestTimeout)
	}
	return e
}

// SetHTTPClient replaces the client used for the page and robots.txt requests.
func (e *Extractor) SetHTTPClient(client *http.Client) {
	e.client = client
	if e.robots != nil {
		e.robots = NewRobotsChecker(client, e.cfg.UserAgent, e.cfg.RequestTimeout)
	}
}

// Extract downloads pageURL and returns the absolute URLs of its img sources,
// in document order, that pass filter. Any failure aborts the call and no
// partial result is returned. A page without images yields an empty
// Extraction, not an error.
func (e *Extractor) Extract(ctx context.Context, pageURL string, filter urlutil.FilterMode) (*result.Extraction, error) {
	page, err := urlutil.ParsePageURL(pageURL)
	if err != nil {
		return nil, err
	}
	pageStr := page.String()
	log := e.log.WithFields(logrus.Fields{"page_url": pageStr, "filter": filter.String()})

	if e.robots != nil {
		allowed, robotsErr := e.robots.Allowed(ctx, pageStr)
		if robotsErr != nil {
			log.WithError(robotsErr).Warn("robots.txt unavailable, allowing")
		}
		if !allowed {
			e.cfg.Metrics.IncError(result.KindDisallowed)
			return nil, result.DisallowedError(pageStr)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	log.Debug("fetching page")
	resp, err := get(ctx, e.client, pageStr, e.cfg.UserAgent, acceptHTML, phasePage, e.cfg.Metrics)
	if err != nil {
		e.cfg.Metrics.IncError(result.KindOf(err))
		return nil, err
	}
	defer resp.Body.Close()

	limit := e.cfg.MaxPageBytes
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		e.cfg.Metrics.IncError(result.KindNetwork)
		return nil, result.NetworkError(pageStr, fmt.Errorf("read body: %w", err))
	}
	if int64(len(raw)) > limit {
		e.cfg.Metrics.IncError(result.KindDecode)
		return nil, result.DecodeError(pageStr, fmt.Errorf("page exceeds %d bytes", limit))
	}

	text, err := decodeBody(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		e.cfg.Metrics.IncError(result.KindDecode)
		return nil, result.DecodeError(pageStr, err)
	}

	sources, err := ExtractImageSources(strings.NewReader(text))
	if err != nil {
		e.cfg.Metrics.IncError(result.KindDecode)
		return nil, result.DecodeError(pageStr, err)
	}

	images, err := e.collect(page, sources, filter)
	if err != nil {
		return nil, err
	}

	e.cfg.Metrics.AddImagesFound(len(images))
	log.WithFields(logrus.Fields{"found": len(sources), "kept": len(images)}).Info("extraction finished")

	return &result.Extraction{
		PageURL: pageStr,
		Filter:  filter.String(),
		Found:   len(sources),
		Images:  images,
	}, nil
}

// collect resolves, optionally dedupes, and filters sources in order.
func (e *Extractor) collect(page *url.URL, sources []string, filter urlutil.FilterMode) ([]result.ImageRef, error) {
	var seen *SeenSet
	if e.cfg.Dedupe {
		var err error
		seen, err = NewSeenSet()
		if err != nil {
			return nil, result.FileSystemError("", fmt.Errorf("open seen set: %w", err))
		}
		defer func() {
			if closeErr := seen.Close(); closeErr != nil {
				e.log.WithError(closeErr).Warn("closing seen set")
			}
		}()
	}

	images := make([]result.ImageRef, 0, len(sources))
	for _, src := range sources {
		abs := urlutil.ResolveImageSource(page, src)
		if seen != nil && !seen.AddIfNew(dedupeKey(abs)) {
			continue
		}
		if !filter.Match(abs) {
			continue
		}
		images = append(images, result.ImageRef{
			Raw:      src,
			URL:      abs,
			External: !urlutil.IsSameDomain(abs, page.Hostname()),
		})
	}
	return images, nil
}

// dedupeKey folds trivially different spellings of the same URL together.
func dedupeKey(rawURL string) string {
	if normalized, err := urlutil.Normalize(rawURL); err == nil {
		return normalized
	}
	return rawURL
}

func orDiscard(logger *logrus.Logger) *logrus.Logger {
	if logger != nil {
		return logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}
