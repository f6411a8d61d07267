// Package main provides the imagegrab CLI entrypoint.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/lukemcguire/imagegrab/result"
	"github.com/lukemcguire/imagegrab/scraper"
	"github.com/lukemcguire/imagegrab/tui"
	"github.com/lukemcguire/imagegrab/urlutil"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// app holds what both output modes need.
type app struct {
	settings   settings
	filter     urlutil.FilterMode
	metrics    *scraper.Metrics
	log        *logrus.Logger
	extractor  *scraper.Extractor
	downloader *scraper.Downloader
}

// run executes the CLI and returns the process exit status.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	env, err := loadSettings()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	s, err := parseArgs(args, env, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	filter, err := s.filterMode()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := urlutil.ParsePageURL(s.PageURL); err != nil {
		_, _ = fmt.Fprintf(stderr, "Invalid URL: %s\nURL must start with http:// or https://\n", s.PageURL)
		return 1
	}

	interactive := !s.Plain && isTerminal(stdout)

	logOut := stderr
	if interactive {
		logOut = io.Discard
	}
	logger, logCloser, err := newLogger(s, logOut)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = logCloser.Close() }()

	var metrics *scraper.Metrics
	if s.MetricsFile != "" {
		metrics = scraper.NewMetrics()
	}

	cfg, err := s.scraperConfig(metrics)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("TLS certificate verification disabled")
	}

	a := &app{
		settings:   s,
		filter:     filter,
		metrics:    metrics,
		log:        logger,
		extractor:  scraper.NewExtractor(cfg, logger),
		downloader: scraper.NewDownloader(cfg, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	if interactive {
		code = a.runTUI(ctx, stderr)
	} else {
		code = a.runPlain(ctx, stdin, stdout, stderr)
	}

	if err := metrics.WriteTextfile(s.MetricsFile); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		code = 1
	}
	return code
}

func (a *app) runTUI(ctx context.Context, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.NewModel(ctx, cancel, a.extractor, a.downloader, tui.Options{
		PageURL:      a.settings.PageURL,
		Filter:       a.filter,
		TargetDir:    a.settings.Dir,
		AutoDownload: a.settings.Yes,
		ListOnly:     a.settings.List,
	})

	finalModel, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	final, ok := finalModel.(tui.Model)
	if !ok {
		return 1
	}
	if summary := final.GetSummary(); summary != nil {
		if err := a.writeReport(summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	if final.HasFailures() {
		return 1
	}
	return 0
}

func (a *app) runPlain(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int {
	ex, err := a.extractor.Extract(ctx, a.settings.PageURL, a.filter)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: extract: %v\n", err)
		return 1
	}

	result.PrintExtraction(stdout, ex)
	if a.settings.List || len(ex.Images) == 0 {
		return 0
	}

	if !a.settings.Yes && !confirm(stdin, stdout, len(ex.Images), a.settings.Dir) {
		return 0
	}

	onProgress := func(evt scraper.DownloadEvent) {
		result.PrintOutcome(stdout, evt.Outcome, evt.Total)
	}
	summary, err := a.downloader.Download(ctx, ex.URLs(), a.settings.Dir, onProgress)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: download: %v\n", err)
		return 1
	}

	result.PrintSummary(stdout, summary)
	if err := a.writeReport(summary); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if summary.Failed > 0 {
		return 1
	}
	return 0
}

func (a *app) writeReport(summary *result.Summary) error {
	if a.settings.Report == "" {
		return nil
	}
	if err := result.WriteReport(a.settings.Report, summary); err != nil {
		return err
	}
	a.log.WithField("path", a.settings.Report).Info("report written")
	return nil
}

// confirm asks before downloading. Anything but y or yes declines.
func confirm(stdin io.Reader, stdout io.Writer, n int, dir string) bool {
	_, _ = fmt.Fprintf(stdout, "Download %d images to %s? [y/N] ", n, dir)
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && line == "" {
		_, _ = fmt.Fprintln(stdout)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
