package result

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind is the coarse class of a failed fetch or write.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"     // connection, timeout, or TLS failure
	KindHTTPStatus ErrorKind = "http_status" // non-2xx response
	KindDecode     ErrorKind = "decode"      // unreadable page body
	KindFileSystem ErrorKind = "filesystem"  // directory or file write failure
	KindDisallowed ErrorKind = "disallowed"  // blocked by robots.txt
	KindUnknown    ErrorKind = "unknown"
)

// Error wraps a failure with its kind and, for HTTP failures, the status code.
type Error struct {
	Kind       ErrorKind
	URL        string // URL or local path the failure concerns
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NetworkError marks err as a transport failure while fetching rawURL.
func NetworkError(rawURL string, err error) *Error {
	return &Error{Kind: KindNetwork, URL: rawURL, Err: err}
}

// StatusError records a non-success HTTP response.
func StatusError(rawURL string, statusCode int) *Error {
	return &Error{Kind: KindHTTPStatus, URL: rawURL, StatusCode: statusCode}
}

// DecodeError marks err as a failure to turn a page body into text.
func DecodeError(rawURL string, err error) *Error {
	return &Error{Kind: KindDecode, URL: rawURL, Err: err}
}

// FileSystemError marks err as a failure creating or writing path.
func FileSystemError(path string, err error) *Error {
	return &Error{Kind: KindFileSystem, URL: path, Err: err}
}

// DisallowedError records a URL skipped because robots.txt forbids it.
func DisallowedError(rawURL string) *Error {
	return &Error{Kind: KindDisallowed, URL: rawURL, Err: errors.New("disallowed by robots.txt")}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusCodeOf returns the HTTP status carried by err, or 0.
func StatusCodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// ErrorCategory is a finer, display-oriented classification of a failure.
type ErrorCategory string

const (
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryDNSFailure        ErrorCategory = "dns_failure"
	CategoryConnectionRefused ErrorCategory = "connection_refused"
	CategoryTLS               ErrorCategory = "tls"
	Category3xx               ErrorCategory = "3xx"
	Category4xx               ErrorCategory = "4xx"
	Category5xx               ErrorCategory = "5xx"
	CategoryDecode            ErrorCategory = "decode"
	CategoryFileSystem        ErrorCategory = "filesystem"
	CategoryDisallowed        ErrorCategory = "disallowed"
	CategoryUnknown           ErrorCategory = "unknown"
)

// ClassifyError determines the error category based on the error and HTTP status code.
func ClassifyError(err error, statusCode int) ErrorCategory {
	if statusCode == 0 {
		statusCode = StatusCodeOf(err)
	}
	if statusCode > 0 {
		if statusCode >= 300 && statusCode <= 399 {
			return Category3xx
		}
		if statusCode >= 400 && statusCode <= 499 {
			return Category4xx
		}
		if statusCode >= 500 {
			return Category5xx
		}
	}

	if err == nil {
		return CategoryUnknown
	}

	switch KindOf(err) {
	case KindFileSystem:
		return CategoryFileSystem
	case KindDecode:
		return CategoryDecode
	case KindDisallowed:
		return CategoryDisallowed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	if isTLSError(err) {
		return CategoryTLS
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CategoryTimeout
		}
		return CategoryDNSFailure
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" && strings.Contains(opErr.Error(), "connection refused") {
			return CategoryConnectionRefused
		}
		if opErr.Timeout() {
			return CategoryTimeout
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	return CategoryUnknown
}

func isTLSError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var authErr x509.UnknownAuthorityError
	if errors.As(err, &authErr) {
		return true
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}
	var certErr x509.CertificateInvalidError
	return errors.As(err, &certErr)
}

// FormatCategory returns a human-readable label for an error category.
func FormatCategory(cat ErrorCategory) string {
	switch cat {
	case CategoryTimeout:
		return "Timeouts"
	case CategoryDNSFailure:
		return "DNS Failures"
	case CategoryConnectionRefused:
		return "Connection Refused"
	case CategoryTLS:
		return "TLS Errors"
	case Category3xx:
		return "Unfollowed Redirects (3xx)"
	case Category4xx:
		return "Client Errors (4xx)"
	case Category5xx:
		return "Server Errors (5xx)"
	case CategoryDecode:
		return "Decode Errors"
	case CategoryFileSystem:
		return "File System Errors"
	case CategoryDisallowed:
		return "Disallowed by robots.txt"
	default:
		return "Other Errors"
	}
}
