// Package tui provides the Bubble Tea terminal UI for imagegrab: it runs the
// extraction, lets the user review the image list, and shows download
// progress and a styled summary.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lukemcguire/imagegrab/result"
	"github.com/lukemcguire/imagegrab/scraper"
	"github.com/lukemcguire/imagegrab/urlutil"
)

// Extractor is the page-scanning half of the core.
type Extractor interface {
	Extract(ctx context.Context, pageURL string, filter urlutil.FilterMode) (*result.Extraction, error)
}

// Downloader is the saving half of the core.
type Downloader interface {
	Download(ctx context.Context, urls []string, dir string, onProgress scraper.ProgressFunc) (*result.Summary, error)
}

// Phase is the stage the UI is in.
type Phase int

const (
	PhaseExtracting Phase = iota
	PhaseReview
	PhaseDownloading
	PhaseDone
	PhaseFailed
)

// Options selects what the UI runs.
type Options struct {
	PageURL      string
	Filter       urlutil.FilterMode
	TargetDir    string
	AutoDownload bool // skip the review step
	ListOnly     bool // stop after extraction
}

const recentLines = 5

// Model is the Bubble Tea model for the extract-and-download flow.
type Model struct {
	ctx        context.Context
	cancel     context.CancelFunc
	extractor  Extractor
	downloader Downloader
	opts       Options

	spinner  spinner.Model
	progress progress.Model

	phase          Phase
	extraction     *result.Extraction
	summary        *result.Summary
	err            error
	downloadCancel context.CancelFunc
	progressCh     chan scraper.DownloadEvent

	done       int
	total      int
	succeeded  int
	failed     int
	recent     []result.Outcome
	cancelling bool
	quitting   bool
	width      int
}

// NewModel creates a TUI model. ctx bounds the whole program; cancel is
// called when the user quits.
func NewModel(ctx context.Context, cancel context.CancelFunc, extractor Extractor, downloader Downloader, opts Options) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		ctx:        ctx,
		cancel:     cancel,
		extractor:  extractor,
		downloader: downloader,
		opts:       opts,
		spinner:    spin,
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		phase:      PhaseExtracting,
	}
}

// Init starts the spinner and the extraction.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startExtract())
}

func (m Model) startExtract() tea.Cmd {
	return func() tea.Msg {
		ex, err := m.extractor.Extract(m.ctx, m.opts.PageURL, m.opts.Filter)
		if err != nil {
			err = fmt.Errorf("extract: %w", err)
		}
		return ExtractDoneMsg{Extraction: ex, Err: err}
	}
}

// startDownload launches the batch under its own cancel scope. Progress
// flows back through a channel that is closed once Download returns.
func (m Model) startDownload() (Model, tea.Cmd) {
	urls := m.extraction.URLs()
	dlCtx, dlCancel := context.WithCancel(m.ctx)
	ch := make(chan scraper.DownloadEvent, 16)

	m.phase = PhaseDownloading
	m.downloadCancel = dlCancel
	m.progressCh = ch
	m.total = len(urls)

	onProgress := scraper.ChannelProgress(m.ctx, ch)
	downloader := m.downloader
	dir := m.opts.TargetDir

	run := func() tea.Msg {
		defer dlCancel()
		defer close(ch)
		summary, err := downloader.Download(dlCtx, urls, dir, onProgress)
		if err != nil {
			err = fmt.Errorf("download: %w", err)
		}
		return DownloadDoneMsg{Summary: summary, Err: err}
	}
	return m, tea.Batch(run, waitForProgress(ch))
}

// Update handles messages from the Bubble Tea runtime.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = min(max(msg.Width-4, 10), 60)

	case ExtractDoneMsg:
		if msg.Err != nil {
			m.phase = PhaseFailed
			m.err = msg.Err
			return m, tea.Quit
		}
		m.extraction = msg.Extraction
		if m.opts.ListOnly || len(m.extraction.Images) == 0 {
			m.phase = PhaseDone
			return m, tea.Quit
		}
		if m.opts.AutoDownload {
			return m.startDownload()
		}
		m.phase = PhaseReview

	case DownloadProgressMsg:
		evt := msg.Event
		m.done = evt.Done
		if evt.Outcome.OK() {
			m.succeeded++
		} else {
			m.failed++
		}
		m.recent = append(m.recent, evt.Outcome)
		if len(m.recent) > recentLines {
			m.recent = m.recent[len(m.recent)-recentLines:]
		}
		cmd := m.progress.SetPercent(float64(evt.Done) / float64(max(evt.Total, 1)))
		return m, tea.Batch(cmd, waitForProgress(m.progressCh))

	case progressClosedMsg:
		return m, nil

	case DownloadDoneMsg:
		m.summary = msg.Summary
		m.downloadCancel = nil
		if msg.Err != nil {
			m.phase = PhaseFailed
			m.err = msg.Err
		} else {
			m.phase = PhaseDone
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		updated, cmd := m.progress.Update(msg)
		if pm, ok := updated.(progress.Model); ok {
			m.progress = pm
		}
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.phase == PhaseDownloading && m.downloadCancel != nil && !m.quitting {
			// Stop at the next item and quit once the summary arrives.
			m.quitting = true
			m.cancelling = true
			m.downloadCancel()
			return m, nil
		}
		m.quitting = true
		if m.downloadCancel != nil {
			m.downloadCancel()
		}
		m.cancel()
		return m, tea.Quit

	case "d", "enter":
		if m.phase == PhaseReview {
			return m.startDownload()
		}

	case "c", "esc":
		if m.phase == PhaseDownloading && m.downloadCancel != nil {
			m.cancelling = true
			m.downloadCancel()
		}
	}
	return m, nil
}

// View renders the current TUI state.
func (m Model) View() string {
	switch m.phase {
	case PhaseFailed:
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"

	case PhaseDone:
		if m.summary != nil {
			return RenderSummary(m.summary)
		}
		return RenderExtraction(m.extraction)

	case PhaseReview:
		var b strings.Builder
		b.WriteString(RenderExtraction(m.extraction))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("Target directory: %s", m.opts.TargetDir)))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("d/enter download • q quit"))
		b.WriteString("\n")
		return b.String()

	case PhaseDownloading:
		return m.downloadView()
	}

	if m.quitting {
		return ""
	}
	return fmt.Sprintf("%s Extracting images from %s\n", m.spinner.View(), m.opts.PageURL)
}

func (m Model) downloadView() string {
	var b strings.Builder

	status := fmt.Sprintf("Downloading %d/%d", min(m.done+1, m.total), m.total)
	switch {
	case m.quitting:
		status = "Quitting after current image..."
	case m.cancelling:
		status = "Cancelling after current image..."
	}
	fmt.Fprintf(&b, "%s %s  %s\n", m.spinner.View(), status,
		dimStyle.Render(fmt.Sprintf("(%d ok, %d failed)", m.succeeded, m.failed)))
	b.WriteString(m.progress.View())
	b.WriteString("\n")

	for _, o := range m.recent {
		b.WriteString(renderOutcomeLine(o, m.total))
		b.WriteString("\n")
	}
	if m.quitting {
		b.WriteString(helpStyle.Render("q again to quit now"))
	} else {
		b.WriteString(helpStyle.Render("c/esc cancel • q quit"))
	}
	b.WriteString("\n")
	return b.String()
}

// Phase returns the stage the UI ended in.
func (m Model) Phase() Phase {
	return m.phase
}

// Err returns the extraction or download error, if any.
func (m Model) Err() error {
	return m.err
}

// GetExtraction returns the extraction result.
func (m Model) GetExtraction() *result.Extraction {
	return m.extraction
}

// GetSummary returns the download summary, nil when no download ran.
func (m Model) GetSummary() *result.Summary {
	return m.summary
}

// HasFailures reports whether the run should end with a failing exit status.
// A download abandoned before its summary arrived counts as a failure.
func (m Model) HasFailures() bool {
	if m.err != nil || m.phase == PhaseDownloading {
		return true
	}
	return m.summary != nil && m.summary.Failed > 0
}
