package urlutil

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// IsSameDomain checks if targetURL belongs to the same domain as baseHost.
// Subdomains are considered same-domain (e.g., cdn.example.com matches example.com).
func IsSameDomain(targetURL string, baseHost string) bool {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	host := parsed.Hostname()
	baseHost = strings.ToLower(baseHost)
	host = strings.ToLower(host)

	return host == baseHost || strings.HasSuffix(host, "."+baseHost)
}

// IsHTTPScheme returns true if the URL has an http or https scheme.
// Returns false for empty strings, non-HTTP schemes, or unparseable URLs.
func IsHTTPScheme(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

// FilterMode selects which resolved image URLs proceed to download.
// The zero value passes everything.
type FilterMode struct {
	ext string
}

// FilterAll passes every image URL through unchanged.
var FilterAll = FilterMode{}

// ExtensionFilter returns a filter keeping URLs that end in ".ext".
// The token is matched case-insensitively; a leading dot is ignored.
func ExtensionFilter(ext string) FilterMode {
	return FilterMode{ext: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))}
}

// ParseFilter converts a user-supplied token into a FilterMode.
// "" and "all" select FilterAll; anything else must be an alphanumeric
// extension token such as "jpg" or ".png".
func ParseFilter(token string) (FilterMode, error) {
	token = strings.TrimSpace(token)
	if token == "" || strings.EqualFold(token, "all") {
		return FilterAll, nil
	}

	ext := strings.TrimPrefix(token, ".")
	if ext == "" {
		return FilterAll, fmt.Errorf("invalid filter %q: empty extension", token)
	}
	for _, r := range ext {
		if !isAlnum(r) {
			return FilterAll, fmt.Errorf("invalid filter %q: extension must be alphanumeric", token)
		}
	}
	return ExtensionFilter(ext), nil
}

// IsAll reports whether the filter passes every URL.
func (f FilterMode) IsAll() bool {
	return f.ext == ""
}

// Extension returns the lowercased extension token, or "" for FilterAll.
func (f FilterMode) Extension() string {
	return f.ext
}

// String returns "all" or the extension token.
func (f FilterMode) String() string {
	if f.IsAll() {
		return "all"
	}
	return f.ext
}

// Match reports whether rawURL passes the filter.
//
// An extension filter keeps a URL whose lowercased form ends with ".ext", or
// with ".ext" followed by exactly one more character, so "jpg" also keeps
// "photo.jpge". The whole URL string is tested, query included: "a.png?v=2"
// does not match "png".
func (f FilterMode) Match(rawURL string) bool {
	if f.IsAll() {
		return true
	}

	lower := strings.ToLower(rawURL)
	suffix := "." + f.ext
	if strings.HasSuffix(lower, suffix) {
		return true
	}

	_, size := utf8.DecodeLastRuneInString(lower)
	if size == 0 {
		return false
	}
	return strings.HasSuffix(lower[:len(lower)-size], suffix)
}

// Apply returns the URLs that pass the filter, preserving order.
func (f FilterMode) Apply(urls []string) []string {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if f.Match(u) {
			kept = append(kept, u)
		}
	}
	return kept
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
