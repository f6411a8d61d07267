package result

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteJSON writes the download summary, outcomes included, as indented JSON.
func WriteJSON(w io.Writer, summary *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write json output: %w", err)
	}
	return nil
}

// WriteCSV writes one row per outcome to the writer.
// Always includes a header row, even if there are no outcomes.
// Column order: index, url, status, path, bytes, status_code, error_type, error
func WriteCSV(w io.Writer, outcomes []Outcome) error {
	cw := csv.NewWriter(w)

	header := []string{"index", "url", "status", "path", "bytes", "status_code", "error_type", "error"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, o := range outcomes {
		status := "ok"
		if !o.OK() {
			status = "failed"
		}
		record := []string{
			strconv.Itoa(o.Index + 1),
			o.URL,
			status,
			o.Path,
			bytesStr(o),
			statusCodeStr(o.StatusCode),
			string(o.Category),
			o.Error,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record for %s: %w", o.URL, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv output: %w", err)
	}
	return nil
}

// WriteReport writes summary to path, choosing CSV for a ".csv" extension
// and JSON otherwise.
func WriteReport(path string, summary *Summary) (err error) {
	if summary == nil {
		return errors.New("write report: no summary")
	}
	if dir := filepath.Dir(path); dir != "." {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return fmt.Errorf("create report directory: %w", mkErr)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close report %s: %w", path, closeErr)
		}
	}()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return WriteCSV(file, summary.Outcomes)
	}
	return WriteJSON(file, summary)
}

// statusCodeStr converts an HTTP status code to a string.
// Returns empty string for 0 (no HTTP status).
func statusCodeStr(code int) string {
	if code == 0 {
		return ""
	}
	return strconv.Itoa(code)
}

func bytesStr(o Outcome) string {
	if !o.OK() {
		return ""
	}
	return strconv.FormatInt(o.Bytes, 10)
}
