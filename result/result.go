package result

import "time"

// ImageRef is one img src value found on a page.
type ImageRef struct {
	Raw      string `json:"raw"`      // The src value as written in the markup
	URL      string `json:"url"`      // Absolute URL after resolution
	External bool   `json:"external"` // Whether the image lives outside the page's domain
}

// Extraction is the ordered list of image references kept from one page.
type Extraction struct {
	PageURL string     `json:"page_url"`
	Filter  string     `json:"filter"`
	Found   int        `json:"found"` // img tags with a src, before filtering
	Images  []ImageRef `json:"images"`
}

// URLs returns the resolved URLs in document order.
func (e *Extraction) URLs() []string {
	if e == nil {
		return nil
	}
	urls := make([]string, len(e.Images))
	for i, img := range e.Images {
		urls[i] = img.URL
	}
	return urls
}

// Outcome is the result of downloading a single URL.
// Path is set on success; Error is set on failure.
type Outcome struct {
	Index      int           `json:"index"`
	URL        string        `json:"url"`
	Path       string        `json:"path,omitempty"`
	Bytes      int64         `json:"bytes,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Kind       ErrorKind     `json:"error_kind,omitempty"`
	Category   ErrorCategory `json:"error_type,omitempty"`
}

// OK reports whether the download succeeded.
func (o Outcome) OK() bool {
	return o.Error == ""
}

// Summary aggregates the outcomes of one download batch.
type Summary struct {
	SessionID string        `json:"session_id"`
	TargetDir string        `json:"target_dir"`
	Total     int           `json:"total"`     // URLs handed to the batch
	Attempted int           `json:"attempted"` // URLs actually processed
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled bool          `json:"cancelled"`
	Duration  time.Duration `json:"duration_ns"`
	Outcomes  []Outcome     `json:"outcomes"`
}

// Failures returns the failed outcomes in index order.
func (s *Summary) Failures() []Outcome {
	if s == nil {
		return nil
	}
	var failed []Outcome
	for _, o := range s.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}
