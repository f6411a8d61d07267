package scraper

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// ExtractImageSources parses HTML from the given reader and returns the src
// attribute of every img tag in document order. Tags without a src, or with
// a blank one, are skipped. srcset and lazy-load attributes are ignored.
// Values are returned trimmed but otherwise as written, duplicates included.
func ExtractImageSources(body io.Reader) ([]string, error) {
	tokenizer := html.NewTokenizer(body)
	var sources []string

	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != nil && !errors.Is(err, io.EOF) {
				return sources, fmt.Errorf("tokenize html: %w", err)
			}
			return sources, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			if src, ok := imgSource(tokenizer); ok {
				sources = append(sources, src)
			}
		}
	}
}

// imgSource returns the first src attribute of the current tag.
func imgSource(tokenizer *html.Tokenizer) (string, bool) {
	for {
		key, val, more := tokenizer.TagAttr()
		if string(key) == "src" {
			src := strings.TrimSpace(string(val))
			return src, src != ""
		}
		if !more {
			return "", false
		}
	}
}

// decodeBody converts a page body to UTF-8 text. A charset named by the
// Content-Type header, a BOM, or a <meta> tag wins; otherwise a body that is
// already valid UTF-8 is used as is, and anything else is read as
// windows-1252 as browsers do. Invalid sequences become U+FFFD.
func decodeBody(raw []byte, contentType string) (string, error) {
	enc, name, certain := charset.DetermineEncoding(raw, contentType)
	if !certain && utf8.Valid(raw) {
		return string(raw), nil
	}

	text, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode body as %s: %w", name, err)
	}
	return strings.ToValidUTF8(string(text), "\uFFFD"), nil
}
