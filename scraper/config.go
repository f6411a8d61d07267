package scraper

import (
	"errors"
	"time"
)

// DefaultUserAgent identifies requests as a desktop browser; some image hosts
// reject obvious bot user agents outright.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config holds settings shared by the Extractor and the Downloader.
type Config struct {
	RequestTimeout time.Duration // Per-request timeout, body included (default 30s)
	UserAgent      string        // User-Agent header sent with every request

	// InsecureSkipVerify accepts any TLS certificate chain and host name.
	// Off by default. Turning it on trusts whatever answers on the other end
	// and is only meant for sites with broken certificates.
	InsecureSkipVerify bool

	MaxPageBytes  int64         // Largest page accepted; bigger pages fail extraction (default 32MB)
	Pause         time.Duration // Minimum spacing between image requests (default 100ms)
	RespectRobots bool          // Honor robots.txt for the page and every image
	Dedupe        bool          // Drop repeated image URLs within one extraction

	Metrics *Metrics // Optional; nil disables metrics
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 30 * time.Second,
		UserAgent:      DefaultUserAgent,
		MaxPageBytes:   defaultMaxPageBytes,
		Pause:          100 * time.Millisecond,
	}
}

// Validate reports the first incoherent setting.
func (c Config) Validate() error {
	if c.RequestTimeout < 0 {
		return errors.New("request timeout cannot be negative")
	}
	if c.MaxPageBytes < 0 {
		return errors.New("max page size cannot be negative")
	}
	if c.Pause < 0 {
		return errors.New("pause cannot be negative")
	}
	return nil
}

const defaultMaxPageBytes = 32 << 20

// withDefaults fills zero values so a bare Config{} is usable.
func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxPageBytes <= 0 {
		c.MaxPageBytes = defaultMaxPageBytes
	}
	return c
}
