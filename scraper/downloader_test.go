package scraper_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/lukemcguire/imagegrab/result"
	"github.com/lukemcguire/imagegrab/scraper"
)

// newImageServer serves the request path as the body for any path under
// /img/, 404 under /missing/, and 500 under /broken/.
func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = fmt.Fprint(w, r.URL.RequestURI())
	})
	mux.HandleFunc("/missing/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/broken/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

// eventRecorder collects progress events and flags concurrent callbacks.
type eventRecorder struct {
	mu         sync.Mutex
	events     []scraper.DownloadEvent
	inFlight   atomic.Int32
	overlapped atomic.Bool
}

func (r *eventRecorder) record(evt scraper.DownloadEvent) {
	if r.inFlight.Add(1) > 1 {
		r.overlapped.Store(true)
	}
	defer r.inFlight.Add(-1)

	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	return string(data)
}

func TestDownloadSavesFilesAndReportsProgress(t *testing.T) {
	ts := newImageServer(t)
	dir := filepath.Join(t.TempDir(), "nested", "out")
	urls := []string{ts.URL + "/img/a.jpg", ts.URL + "/img/b.png"}

	rec := &eventRecorder{}
	summary, err := scraper.NewDownloader(testConfig(), nil).Download(context.Background(), urls, dir, rec.record)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if summary.Total != 2 || summary.Attempted != 2 || summary.Succeeded != 2 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 2 attempted, 2 succeeded", summary)
	}
	if summary.Cancelled {
		t.Error("summary marked cancelled")
	}
	if summary.TargetDir != dir {
		t.Errorf("TargetDir = %q, want %q", summary.TargetDir, dir)
	}
	if summary.SessionID == "" {
		t.Error("SessionID empty")
	}

	if got := readFile(t, filepath.Join(dir, "a.jpg")); got != "/img/a.jpg" {
		t.Errorf("a.jpg content = %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "b.png")); got != "/img/b.png" {
		t.Errorf("b.png content = %q", got)
	}

	if len(rec.events) != 2 {
		t.Fatalf("got %d events, want 2", len(rec.events))
	}
	for i, evt := range rec.events {
		if evt.Index != i || evt.Total != 2 || evt.Done != i+1 {
			t.Errorf("event %d = {Index:%d Total:%d Done:%d}", i, evt.Index, evt.Total, evt.Done)
		}
		if !evt.Outcome.OK() {
			t.Errorf("event %d outcome failed: %s", i, evt.Outcome.Error)
		}
	}
	if summary.Outcomes[1].Path != filepath.Join(dir, "b.png") {
		t.Errorf("Outcomes[1].Path = %q", summary.Outcomes[1].Path)
	}
	if summary.Outcomes[1].Bytes != int64(len("/img/b.png")) {
		t.Errorf("Outcomes[1].Bytes = %d", summary.Outcomes[1].Bytes)
	}
}

func TestDownloadSameBaseNameProducesDistinctFiles(t *testing.T) {
	ts := newImageServer(t)
	dir := t.TempDir()
	urls := []string{ts.URL + "/img/x/photo.jpg", ts.URL + "/img/y/photo.jpg"}

	summary, err := scraper.NewDownloader(testConfig(), nil).Download(context.Background(), urls, dir, nil)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if summary.Succeeded != 2 {
		t.Fatalf("Succeeded = %d, want 2", summary.Succeeded)
	}

	if got := readFile(t, filepath.Join(dir, "photo.jpg")); got != "/img/x/photo.jpg" {
		t.Errorf("photo.jpg = %q, want first URL's body", got)
	}
	if got := readFile(t, filepath.Join(dir, "photo_1.jpg")); got != "/img/y/photo.jpg" {
		t.Errorf("photo_1.jpg = %q, want second URL's body", got)
	}
}

func TestDownloadNeverOverwritesExistingFile(t *testing.T) {
	ts := newImageServer(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	summary, err := scraper.NewDownloader(testConfig(), nil).Download(context.Background(), []string{ts.URL + "/img/a.jpg"}, dir, nil)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if got := readFile(t, filepath.Join(dir, "a.jpg")); got != "keep me" {
		t.Errorf("existing file overwritten: %q", got)
	}
	if want := filepath.Join(dir, "a_1.jpg"); summary.Outcomes[0].Path != want {
		t.Errorf("Path = %q, want %q", summary.Outcomes[0].Path, want)
	}
}

func TestDownloadSyntheticNames(t *testing.T) {
	ts := newImageServer(t)
	dir := t.TempDir()
	urls := []string{ts.URL + "/img/a.jpg", ts.URL + "/img/noext", ts.URL + "/img/"}

	if _, err := scraper.NewDownloader(testConfig(), nil).Download(context.Background(), urls, dir, nil); err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	for _, name := range []string{"a.jpg", "image_2.jpg", "image_3.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestDownloadAllFailuresWriteNothing(t *testing.T) {
	ts := newImageServer(t)
	dir := t.TempDir()
	urls := []string{ts.URL + "/missing/a.jpg", ts.URL + "/missing/b.jpg", ts.URL + "/missing/c.jpg"}

	rec := &eventRecorder{}
	summary, err := scraper.NewDownloader(testConfig(), nil).Download(context.Background(), urls, dir, rec.record)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if summary.Succeeded != 0 || summary.Failed != 3 || summary.Attempted != 3 {
		t.Errorf("summary = %+v, want 0 succeeded, 3 failed", summary)
	}
	if names := dirEntries(t, dir); len(names) != 0 {
		t.Errorf("files written on failure: %v", names)
	}
	if len(rec.events) != 3 {
		t.Errorf("got %d events, want 3", len(rec.events))
	}
	for _, o := range summary.Outcomes {
		if o.Kind != result.KindHTTPStatus || o.Category != result.Category4xx || o.StatusCode != 404 {
			t.Errorf("outcome %d = kind %q category %q status %d", o.Index, o.Kind, o.Category, o.StatusCode)
		}
		if o.Path != "" {
			t.Errorf("failed outcome has path %q", o.Path)
		}
	}
}

func TestDownloadContinuesAfterFailure(t *testing.T) {
	ts := newImageServer(t)
	dir := t.TempDir()
	urls := []string{ts.URL + "/img/a.jpg", ts.URL + "/broken/b.jpg", ts.URL + "/img/c.jpg"}

	summary, err := scraper.NewDownloader(testConfig(), nil).Download(context.Background(), urls, dir, nil)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 2 succeeded, 1 failed", summary)
	}
	failed := summary.Failures()
	if len(failed) != 1 || failed[0].Index != 1 || failed[0].Category != result.Category5xx {
		t.Errorf("Failures() = %+v", failed)
	}
	if !summary.Outcomes[2].OK() {
		t.Errorf("item after failure not downloaded: %s", summary.Outcomes[2].Error)
	}
}

func TestDownloadCancellationStopsBetweenItems(t *testing.T) {
	ts := newImageServer(t)
	dir := t.TempDir()
	urls := make([]string, 5)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/img/%d.jpg", ts.URL, i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var events int
	onProgress := func(evt scraper.DownloadEvent) {
		events++
		if evt.Done == 2 {
			cancel()
		}
	}

	summary, err := scraper.NewDownloader(testConfig(), nil).Download(ctx, urls, dir, onProgress)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if !summary.Cancelled {
		t.Error("summary not marked cancelled")
	}
	if summary.Attempted != 2 || events != 2 {
		t.Errorf("attempted = %d, events = %d, want 2 and 2", summary.Attempted, events)
	}
	if summary.Succeeded+summary.Failed != summary.Attempted {
		t.Errorf("succeeded %d + failed %d != attempted %d", summary.Succeeded, summary.Failed, summary.Attempted)
	}
	if summary.Total != 5 {
		t.Errorf("Total = %d, want 5", summary.Total)
	}
	if names := dirEntries(t, dir); len(names) != 2 {
		t.Errorf("files on disk = %v, want 2", names)
	}
}

func TestDownloadCancelledBeforeStart(t *testing.T) {
	ts := newImageServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &eventRecorder{}
	summary, err := scraper.NewDownloader(testConfig(), nil).Download(ctx, []string{ts.URL + "/img/a.jpg"}, t.TempDir(), rec.record)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if !summary.Cancelled || summary.Attempted != 0 || len(rec.events) != 0 {
		t.Errorf("summary = %+v, events = %d, want cancelled with nothing attempted", summary, len(rec.events))
	}
}

func TestDownloadInFlightItemCompletesAfterCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		_, _ = fmt.Fprint(w, "slow")
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
		close(release)
	}()

	dir := t.TempDir()
	urls := []string{ts.URL + "/slow.jpg", ts.URL + "/never.jpg"}
	summary, err := scraper.NewDownloader(testConfig(), nil).Download(ctx, urls, dir, nil)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if summary.Attempted != 1 || summary.Succeeded != 1 || !summary.Cancelled {
		t.Errorf("summary = %+v, want the in-flight item saved and the batch cancelled", summary)
	}
	if got := readFile(t, filepath.Join(dir, "slow.jpg")); got != "slow" {
		t.Errorf("slow.jpg = %q", got)
	}
}

func TestDownloadTruncatedBodyRemovesPartialFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("only a little"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	summary, err := scraper.NewDownloader(testConfig(), nil).Download(context.Background(), []string{ts.URL + "/a.jpg"}, dir, nil)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if summary.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", summary.Failed)
	}
	if kind := summary.Outcomes[0].Kind; kind != result.KindNetwork {
		t.Errorf("Kind = %q, want %q", kind, result.KindNetwork)
	}
	if names := dirEntries(t, dir); len(names) != 0 {
		t.Errorf("partial file left behind: %v", names)
	}
}

func TestDownloadNetworkErrorWithMockTransport(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://images.test/a.jpg", httpmock.NewErrorResponder(errors.New("connection refused")))
	transport.RegisterResponder("GET", "http://images.test/b.jpg", httpmock.NewBytesResponder(200, []byte{0xff, 0xd8, 0xff}))

	d := scraper.NewDownloader(testConfig(), nil)
	d.SetHTTPClient(&http.Client{Transport: transport})

	dir := t.TempDir()
	summary, err := d.Download(context.Background(), []string{"http://images.test/a.jpg", "http://images.test/b.jpg"}, dir, nil)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 succeeded, 1 failed", summary)
	}
	if kind := summary.Outcomes[0].Kind; kind != result.KindNetwork {
		t.Errorf("Kind = %q, want %q", kind, result.KindNetwork)
	}
	if got := readFile(t, filepath.Join(dir, "b.jpg")); got != "\xff\xd8\xff" {
		t.Errorf("b.jpg = %q", got)
	}
}

func TestDownloadTargetDirFailureIsFatal(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	summary, err := scraper.NewDownloader(testConfig(), nil).Download(context.Background(), []string{"http://example.test/a.jpg"}, filepath.Join(blocker, "sub"), nil)
	if summary != nil {
		t.Errorf("Download() returned summary %+v", summary)
	}
	if result.KindOf(err) != result.KindFileSystem {
		t.Errorf("KindOf(err) = %q, want %q (err: %v)", result.KindOf(err), result.KindFileSystem, err)
	}
}

func TestDownloadRespectsRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "img")
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := testConfig()
	cfg.RespectRobots = true
	dir := t.TempDir()
	summary, err := scraper.NewDownloader(cfg, nil).Download(context.Background(),
		[]string{ts.URL + "/private/a.jpg", ts.URL + "/public/b.jpg"}, dir, nil)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	first := summary.Outcomes[0]
	if first.OK() || first.Kind != result.KindDisallowed || first.Category != result.CategoryDisallowed {
		t.Errorf("disallowed outcome = %+v", first)
	}
	if !summary.Outcomes[1].OK() {
		t.Errorf("allowed outcome failed: %s", summary.Outcomes[1].Error)
	}
	if names := dirEntries(t, dir); len(names) != 1 || names[0] != "b.jpg" {
		t.Errorf("files = %v, want [b.jpg]", names)
	}
}

func TestDownloadPausesBetweenRequests(t *testing.T) {
	ts := newImageServer(t)
	cfg := testConfig()
	cfg.Pause = 30 * time.Millisecond

	urls := []string{ts.URL + "/img/a.jpg", ts.URL + "/img/b.jpg", ts.URL + "/img/c.jpg"}
	summary, err := scraper.NewDownloader(cfg, nil).Download(context.Background(), urls, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if summary.Duration < 50*time.Millisecond {
		t.Errorf("Duration = %v, want at least two pauses", summary.Duration)
	}
}

func TestDownloadOneRequestAtATime(t *testing.T) {
	var inFlight, peak atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		_, _ = fmt.Fprint(w, r.URL.RequestURI())
	}))
	defer ts.Close()

	const n = 8
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/img/same.jpg?v=%d", ts.URL, i)
	}

	dir := t.TempDir()
	rec := &eventRecorder{}
	summary, err := scraper.NewDownloader(testConfig(), nil).Download(context.Background(), urls, dir, rec.record)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if summary.Succeeded != n {
		t.Fatalf("Succeeded = %d, want %d", summary.Succeeded, n)
	}
	if got := peak.Load(); got != 1 {
		t.Errorf("peak concurrent requests = %d, want 1", got)
	}
	if rec.overlapped.Load() {
		t.Error("progress callback invoked concurrently")
	}
	for i, evt := range rec.events {
		if evt.Index != i || evt.Done != i+1 {
			t.Errorf("events[%d] = Index %d Done %d, want in input order", i, evt.Index, evt.Done)
		}
	}

	names := dirEntries(t, dir)
	if len(names) != n {
		t.Errorf("got %d files, want %d distinct", len(names), n)
	}
	for _, name := range names {
		if !strings.HasPrefix(name, "same") {
			t.Errorf("unexpected file %q", name)
		}
	}
}

func TestDownloadRecordsMetrics(t *testing.T) {
	ts := newImageServer(t)
	cfg := testConfig()
	cfg.Metrics = scraper.NewMetrics()

	urls := []string{ts.URL + "/img/a.jpg", ts.URL + "/missing/b.jpg"}
	if _, err := scraper.NewDownloader(cfg, nil).Download(context.Background(), urls, t.TempDir(), nil); err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	m := cfg.Metrics
	if got := metricValue(t, m, "imagegrab_downloads_total", map[string]string{"outcome": "success"}); got != 1 {
		t.Errorf("successes = %v, want 1", got)
	}
	if got := metricValue(t, m, "imagegrab_downloads_total", map[string]string{"outcome": "failure"}); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
	if got := metricValue(t, m, "imagegrab_errors_total", map[string]string{"kind": string(result.KindHTTPStatus)}); got != 1 {
		t.Errorf("http_status errors = %v, want 1", got)
	}
	if got := metricValue(t, m, "imagegrab_bytes_written_total", nil); got != float64(len("/img/a.jpg")) {
		t.Errorf("bytes written = %v", got)
	}
	if got := metricValue(t, m, "imagegrab_requests_total", map[string]string{"phase": "image"}); got != 2 {
		t.Errorf("image requests = %v, want 2", got)
	}
}

func TestChannelProgressStopsWhenContextDone(t *testing.T) {
	ch := make(chan scraper.DownloadEvent)
	ctx, cancel := context.WithCancel(context.Background())
	progress := scraper.ChannelProgress(ctx, ch)

	go func() {
		evt := <-ch
		if evt.Index != 0 {
			t.Errorf("received Index %d, want 0", evt.Index)
		}
	}()
	progress(scraper.DownloadEvent{Index: 0, Total: 2})

	cancel()
	done := make(chan struct{})
	go func() {
		progress(scraper.DownloadEvent{Index: 1, Total: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ChannelProgress blocked after context was cancelled")
	}
}
