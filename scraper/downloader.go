package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lukemcguire/imagegrab/result"
)

// Downloader saves a list of image URLs into a directory.
type Downloader struct {
	cfg    Config
	client *http.Client
	robots *RobotsChecker
	pacer  *Pacer
	log    *logrus.Logger
}

// NewDownloader creates a Downloader. A nil logger discards all output.
func NewDownloader(cfg Config, logger *logrus.Logger) *Downloader {
	cfg = cfg.withDefaults()
	client := NewHTTPClient(cfg)

	d := &Downloader{
		cfg:    cfg,
		client: client,
		pacer:  NewPacer(cfg.Pause),
		log:    orDiscard(logger),
	}
	if cfg.RespectRobots {
		d.robots = NewRobotsChecker(client, cfg.UserAgent, cfg.RequestTimeout)
	}
	return d
}

// SetHTTPClient replaces the client used for image and robots.txt requests.
func (d *Downloader) SetHTTPClient(client *http.Client) {
	d.client = client
	if d.robots != nil {
		d.robots = NewRobotsChecker(client, d.cfg.UserAgent, d.cfg.RequestTimeout)
	}
}

// batch collects outcomes and reports progress.
type batch struct {
	summary    *result.Summary
	onProgress ProgressFunc
}

func (b *batch) record(o result.Outcome) {
	s := b.summary
	s.Outcomes = append(s.Outcomes, o)
	s.Attempted++
	if o.OK() {
		s.Succeeded++
	} else {
		s.Failed++
	}
	if b.onProgress != nil {
		b.onProgress(DownloadEvent{Index: o.Index, Total: s.Total, Done: s.Attempted, Outcome: o})
	}
}

func (b *batch) cancel() {
	b.summary.Cancelled = true
}

// Download fetches every URL into dir, creating it if needed, and reports each
// finished item to onProgress (which may be nil). A failed item is recorded
// and the batch moves on. Cancelling ctx stops the batch before the next item;
// the item in flight still completes and is counted. The returned error is
// non-nil only when dir cannot be created.
func (d *Downloader) Download(ctx context.Context, urls []string, dir string, onProgress ProgressFunc) (*result.Summary, error) {
	start := time.Now()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.cfg.Metrics.IncError(result.KindFileSystem)
		return nil, result.FileSystemError(dir, fmt.Errorf("create target directory: %w", err))
	}

	b := &batch{
		summary: &result.Summary{
			SessionID: uuid.NewString(),
			TargetDir: dir,
			Total:     len(urls),
			Outcomes:  make([]result.Outcome, 0, len(urls)),
		},
		onProgress: onProgress,
	}
	log := d.log.WithFields(logrus.Fields{"session": b.summary.SessionID, "dir": dir})
	log.WithField("total", len(urls)).Info("download started")

	if d.robots != nil {
		d.robots.Warm(ctx, urls)
	}
	d.run(ctx, urls, dir, b, log)

	s := b.summary
	s.Duration = time.Since(start)

	log.WithFields(logrus.Fields{
		"attempted": s.Attempted,
		"succeeded": s.Succeeded,
		"failed":    s.Failed,
		"cancelled": s.Cancelled,
		"duration":  s.Duration,
	}).Info("download finished")

	return s, nil
}

// run processes urls one at a time, in order.
func (d *Downloader) run(ctx context.Context, urls []string, dir string, b *batch, log *logrus.Entry) {
	for i, rawURL := range urls {
		if err := d.pacer.Wait(ctx); err != nil {
			b.cancel()
			return
		}
		b.record(d.fetchOne(ctx, i, rawURL, dir, log))
	}
}

// fetchOne downloads a single item and converts the result to an Outcome.
// The transfer ignores ctx cancellation and is bounded by RequestTimeout.
func (d *Downloader) fetchOne(ctx context.Context, index int, rawURL, dir string, log *logrus.Entry) result.Outcome {
	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.RequestTimeout)
	defer cancel()

	log = log.WithFields(logrus.Fields{"index": index, "img_url": rawURL})
	path, n, status, err := d.fetch(itemCtx, index, rawURL, dir, log)

	o := result.Outcome{Index: index, URL: rawURL, StatusCode: status}
	if err != nil {
		o.Error = err.Error()
		o.Kind = result.KindOf(err)
		o.Category = result.ClassifyError(err, status)
		log.WithError(err).WithField("category", o.Category).Warn("download failed")
	} else {
		o.Path = path
		o.Bytes = n
		log.WithFields(logrus.Fields{"path": path, "bytes": n}).Debug("download saved")
	}
	d.cfg.Metrics.ObserveOutcome(o)
	return o
}

// fetch performs the request and writes the body. Nothing is left on disk
// unless it returns a nil error.
func (d *Downloader) fetch(ctx context.Context, index int, rawURL, dir string, log *logrus.Entry) (string, int64, int, error) {
	if d.robots != nil {
		allowed, robotsErr := d.robots.Allowed(ctx, rawURL)
		if robotsErr != nil {
			log.WithError(robotsErr).Debug("robots.txt unavailable, allowing")
		}
		if !allowed {
			return "", 0, 0, result.DisallowedError(rawURL)
		}
	}

	resp, err := get(ctx, d.client, rawURL, d.cfg.UserAgent, acceptImage, phaseImage, d.cfg.Metrics)
	if err != nil {
		return "", 0, result.StatusCodeOf(err), err
	}
	defer resp.Body.Close()

	file, path, err := createUnique(dir, CandidateName(rawURL, index))
	if err != nil {
		return "", 0, resp.StatusCode, result.FileSystemError(dir, err)
	}

	n, err := writeBody(file, resp.Body, rawURL, path)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = result.FileSystemError(path, closeErr)
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			log.WithError(rmErr).WithField("path", path).Warn("removing partial file")
		}
		return "", 0, resp.StatusCode, err
	}
	return path, n, resp.StatusCode, nil
}

// writeBody copies body into dst, attributing a failure to the disk or the
// network depending on which side broke.
func writeBody(dst io.Writer, body io.Reader, rawURL, path string) (int64, error) {
	w := &errWriter{w: dst}
	n, err := io.Copy(w, body)
	if err == nil {
		return n, nil
	}
	if w.err != nil {
		return n, result.FileSystemError(path, fmt.Errorf("write file: %w", w.err))
	}
	return n, result.NetworkError(rawURL, fmt.Errorf("read body: %w", err))
}

// errWriter remembers the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil && e.err == nil {
		e.err = err
	}
	return n, err
}
