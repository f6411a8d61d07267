package urlutil

import (
	"net/url"
	"strings"
)

// ResolveImageSource turns an img src value into an absolute URL using only
// the page's scheme and host:
//
//	"//cdn/x.png"        -> "<scheme>://cdn/x.png"
//	"/img/a.jpg"         -> "<scheme>://<host>/img/a.jpg"
//	"http(s)://..."      -> unchanged
//	"c.gif", "../d.gif"  -> "<scheme>://<host>/c.gif", "<scheme>://<host>/../d.gif"
//
// The page path is never consulted and dot segments are not collapsed, so a
// path-relative src on a nested page resolves against the site root.
func ResolveImageSource(page *url.URL, src string) string {
	switch {
	case strings.HasPrefix(src, "//"):
		return page.Scheme + ":" + src
	case strings.HasPrefix(src, "/"):
		return Origin(page) + src
	case hasHTTPPrefix(src):
		return src
	default:
		return Origin(page) + "/" + src
	}
}

// Origin returns "scheme://host" for u, keeping any port.
func Origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

func hasHTTPPrefix(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
