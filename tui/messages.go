package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/imagegrab/result"
	"github.com/lukemcguire/imagegrab/scraper"
)

// ExtractDoneMsg carries the outcome of the page extraction.
type ExtractDoneMsg struct {
	Extraction *result.Extraction
	Err        error
}

// DownloadProgressMsg reports one finished download.
type DownloadProgressMsg struct {
	Event scraper.DownloadEvent
}

// DownloadDoneMsg signals the download batch has returned.
type DownloadDoneMsg struct {
	Summary *result.Summary
	Err     error
}

// progressClosedMsg is sent once the progress channel is drained and closed.
type progressClosedMsg struct{}

// waitForProgress returns a tea.Cmd that reads one event from the progress
// channel.
func waitForProgress(ch <-chan scraper.DownloadEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return progressClosedMsg{}
		}
		return DownloadProgressMsg{Event: evt}
	}
}
