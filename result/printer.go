package result

import (
	"fmt"
	"io"
)

const (
	markOK     = "✓"
	markFailed = "✗"
)

// Mark returns the status marker shown next to an outcome.
func Mark(o Outcome) string {
	if o.OK() {
		return markOK
	}
	return markFailed
}

// PrintExtraction writes the numbered image list to w.
func PrintExtraction(w io.Writer, ex *Extraction) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	if ex == nil || len(ex.Images) == 0 {
		writef("No images found\n")
		return
	}
	for i, img := range ex.Images {
		writef("%d. %s\n", i+1, img.URL)
	}
	writef("Found %d images\n", len(ex.Images))
}

// PrintOutcome writes a single progress line for one finished item.
func PrintOutcome(w io.Writer, o Outcome, total int) {
	if o.OK() {
		_, _ = fmt.Fprintf(w, "%s [%d/%d] %s -> %s\n", Mark(o), o.Index+1, total, o.URL, o.Path)
		return
	}
	_, _ = fmt.Fprintf(w, "%s [%d/%d] %s: %s\n", Mark(o), o.Index+1, total, o.URL, o.Error)
}

// PrintSummary writes the end-of-batch status to w.
func PrintSummary(w io.Writer, s *Summary) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	if s == nil {
		writef("No download performed\n")
		return
	}
	if s.Cancelled {
		writef("Download cancelled after %d of %d images: %d successful, %d failed\n",
			s.Attempted, s.Total, s.Succeeded, s.Failed)
	} else {
		writef("Download completed: %d successful, %d failed\n", s.Succeeded, s.Failed)
	}
	writef("Images saved to: %s\n", s.TargetDir)
}
