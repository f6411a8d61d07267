package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/lukemcguire/imagegrab/scraper"
	"github.com/lukemcguire/imagegrab/urlutil"
)

// envPrefix namespaces environment overrides, e.g. IMAGEGRAB_TIMEOUT=20s.
const envPrefix = "imagegrab"

// settings is the full CLI configuration. Environment variables supply the
// defaults and command-line flags override them.
type settings struct {
	Filter      string        `default:"all"`
	Dir         string        `default:"downloaded_images"`
	Insecure    bool          `default:"false"`
	Timeout     time.Duration `default:"30s"`
	Pause       time.Duration `default:"100ms"`
	MaxPage     int64         `split_words:"true" default:"33554432"`
	UserAgent   string        `split_words:"true"`
	Robots      bool          `default:"false"`
	Dedupe      bool          `default:"false"`
	Report      string
	MetricsFile string `split_words:"true"`
	LogLevel    string `split_words:"true" default:"info"`
	LogJSON     bool   `envconfig:"LOG_JSON" default:"false"`
	LogFile     string `split_words:"true"`
	Plain       bool   `default:"false"`
	List        bool   `default:"false"`
	Yes         bool   `default:"false"`

	PageURL string `ignored:"true"`
}

// loadSettings reads IMAGEGRAB_* environment variables.
func loadSettings() (settings, error) {
	var s settings
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return settings{}, fmt.Errorf("read environment: %w", err)
	}
	if s.UserAgent == "" {
		s.UserAgent = scraper.DefaultUserAgent
	}
	return s, nil
}

var errUsage = errors.New("usage")

// parseArgs applies command-line flags on top of env and extracts the page URL.
func parseArgs(args []string, env settings, output io.Writer) (settings, error) {
	s := env
	fs := flag.NewFlagSet("imagegrab", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&s.Filter, "filter", env.Filter, `image filter: "all" or an extension such as jpg, png`)
	fs.StringVar(&s.Dir, "dir", env.Dir, "target directory, created if missing")
	fs.BoolVar(&s.Insecure, "insecure", env.Insecure, "skip TLS certificate verification (trusts any server)")
	fs.DurationVar(&s.Timeout, "timeout", env.Timeout, "per-request timeout, body included")
	fs.DurationVar(&s.Pause, "pause", env.Pause, "minimum pause between image requests")
	fs.Int64Var(&s.MaxPage, "max-page", env.MaxPage, "largest page in bytes accepted for extraction")
	fs.StringVar(&s.UserAgent, "user-agent", env.UserAgent, "User-Agent header")
	fs.BoolVar(&s.Robots, "robots", env.Robots, "honor robots.txt for the page and images")
	fs.BoolVar(&s.Dedupe, "dedupe", env.Dedupe, "drop repeated image URLs")
	fs.StringVar(&s.Report, "report", env.Report, "write per-image outcomes to a .json or .csv file")
	fs.StringVar(&s.MetricsFile, "metrics-file", env.MetricsFile, "write Prometheus metrics to this file on exit")
	fs.StringVar(&s.LogLevel, "log-level", env.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&s.LogJSON, "log-json", env.LogJSON, "log as JSON")
	fs.StringVar(&s.LogFile, "log-file", env.LogFile, "append logs to this file")
	fs.BoolVar(&s.Plain, "plain", env.Plain, "line-oriented output instead of the interactive UI")
	fs.BoolVar(&s.List, "list", env.List, "only list the images, do not download")
	fs.BoolVar(&s.Yes, "yes", env.Yes, "download without asking for confirmation")

	fs.Usage = func() {
		_, _ = fmt.Fprintln(output, "Usage: imagegrab [flags] <url>")
		_, _ = fmt.Fprintln(output, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return settings{}, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return settings{}, errUsage
	}
	s.PageURL = fs.Arg(0)
	return s, nil
}

// filterMode parses the -filter value.
func (s settings) filterMode() (urlutil.FilterMode, error) {
	return urlutil.ParseFilter(s.Filter)
}

// scraperConfig builds the core configuration from s.
func (s settings) scraperConfig(metrics *scraper.Metrics) (scraper.Config, error) {
	cfg := scraper.DefaultConfig()
	cfg.RequestTimeout = s.Timeout
	cfg.UserAgent = s.UserAgent
	cfg.InsecureSkipVerify = s.Insecure
	cfg.Pause = s.Pause
	cfg.MaxPageBytes = s.MaxPage
	cfg.RespectRobots = s.Robots
	cfg.Dedupe = s.Dedupe
	cfg.Metrics = metrics

	if err := cfg.Validate(); err != nil {
		return scraper.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Without -log-file, logs go to
// fallback, which is io.Discard while the interactive UI owns the terminal.
func newLogger(s settings, fallback io.Writer) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	if s.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if s.LogFile == "" {
		logger.SetOutput(fallback)
		return logger, io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(file)
	return logger, file, nil
}
