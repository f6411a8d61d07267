package scraper

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	fallbackExt = ".jpg"
	// maxNameBytes leaves room for a "_NNN" suffix under the common 255-byte limit.
	maxNameBytes = 200
	maxSuffix    = 10000
)

// CandidateName derives the local filename for the image at rawURL, the
// index-th item of its batch. The last segment of the URL path is used when it
// has both a stem and an extension; otherwise the name is image_<index+1>.jpg.
func CandidateName(rawURL string, index int) string {
	fallback := fmt.Sprintf("image_%d%s", index+1, fallbackExt)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}

	// Split before unescaping so an encoded slash stays inside the segment.
	segment := parsed.EscapedPath()
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	segment = sanitizeName(segment)

	ext := path.Ext(segment)
	stem := strings.TrimSuffix(segment, ext)
	if ext == "" || ext == "." || strings.Trim(stem, ". ") == "" {
		return fallback
	}

	return truncateStem(stem, maxNameBytes-len(ext)) + ext
}

// sanitizeName replaces characters that are unsafe in filenames on common
// platforms, including path separators.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return '_'
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
}

// truncateStem shortens s to at most limit bytes on a rune boundary.
func truncateStem(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// suffixedName returns name with "_n" inserted before its extension.
// n == 0 returns name unchanged.
func suffixedName(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}

// createUnique creates a new file in dir named name, or name_1, name_2, ...
// when earlier names are taken. O_EXCL makes the probe atomic, so concurrent
// writers in or outside this process never receive the same path and no
// existing file is ever truncated.
func createUnique(dir, name string) (*os.File, string, error) {
	for n := 0; n < maxSuffix; n++ {
		target := filepath.Join(dir, suffixedName(name, n))
		file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, target, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return nil, "", err
	}
	return nil, "", fmt.Errorf("no free name for %s after %d attempts", name, maxSuffix)
}
