package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lukemcguire/imagegrab/result"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true)
	successStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	categoryStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle         = lipgloss.NewStyle().Faint(true)
	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	urlStyle         = lipgloss.NewStyle()
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okMarkStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failMarkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// categoryOrder defines the display order for failure categories (most to least actionable).
var categoryOrder = []result.ErrorCategory{
	result.Category4xx,
	result.Category5xx,
	result.Category3xx,
	result.CategoryTimeout,
	result.CategoryDNSFailure,
	result.CategoryConnectionRefused,
	result.CategoryTLS,
	result.CategoryDisallowed,
	result.CategoryFileSystem,
	result.CategoryDecode,
	result.CategoryUnknown,
}

// maxListed caps the review list; the rest is summarized in one line.
const maxListed = 25

// RenderExtraction lists the extracted image URLs with their numbers.
func RenderExtraction(ex *result.Extraction) string {
	if ex == nil || len(ex.Images) == 0 {
		return warnStyle.Render("No images found") + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Found %d images", len(ex.Images))))
	if ex.Found != len(ex.Images) {
		b.WriteString(dimStyle.Render(fmt.Sprintf(" (%d img tags, filter %s)", ex.Found, ex.Filter)))
	}
	b.WriteString("\n")

	for i, img := range ex.Images {
		if i == maxListed {
			b.WriteString(dimStyle.Render(fmt.Sprintf("   ... and %d more", len(ex.Images)-maxListed)))
			b.WriteString("\n")
			break
		}
		line := fmt.Sprintf("%3d. %s", i+1, img.URL)
		if img.External {
			line += dimStyle.Render("  (external)")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func renderOutcomeLine(o result.Outcome, total int) string {
	if o.OK() {
		return fmt.Sprintf("%s [%d/%d] %s", okMarkStyle.Render(result.Mark(o)), o.Index+1, total, dimStyle.Render(o.Path))
	}
	return fmt.Sprintf("%s [%d/%d] %s %s", failMarkStyle.Render(result.Mark(o)), o.Index+1, total, o.URL, statusErrorStyle.Render(o.Error))
}

// RenderSummary produces a Lip Gloss styled summary of a download batch,
// with failures grouped by category.
func RenderSummary(s *result.Summary) string {
	if s == nil {
		return errorStyle.Render("No download performed.") + "\n"
	}

	var b strings.Builder

	grouped := make(map[result.ErrorCategory][]result.Outcome)
	for _, o := range s.Failures() {
		cat := o.Category
		if cat == "" {
			cat = result.CategoryUnknown
		}
		grouped[cat] = append(grouped[cat], o)
	}

	for _, cat := range categoryOrder {
		failed, exists := grouped[cat]
		if !exists || len(failed) == 0 {
			continue
		}

		b.WriteString(categoryStyle.Render(fmt.Sprintf("## %s (%d)", result.FormatCategory(cat), len(failed))))
		b.WriteString("\n")

		rows := make([][]string, 0, len(failed))
		for _, o := range failed {
			rows = append(rows, []string{fmt.Sprintf("%d", o.Index+1), o.URL, o.Error})
		}

		catTable := table.New().
			Border(lipgloss.RoundedBorder()).
			Headers("#", "URL", "Error").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if col == 2 {
					return statusErrorStyle
				}
				return urlStyle
			}).
			Rows(rows...)

		b.WriteString(catTable.Render())
		b.WriteString("\n\n")
	}

	switch {
	case s.Cancelled:
		b.WriteString(warnStyle.Render(fmt.Sprintf(
			"Download cancelled after %d of %d images: %d successful, %d failed",
			s.Attempted, s.Total, s.Succeeded, s.Failed)))
	case s.Failed > 0:
		b.WriteString(titleStyle.Render(fmt.Sprintf(
			"Download completed: %d successful, %d failed", s.Succeeded, s.Failed)))
	default:
		b.WriteString(successStyle.Render(fmt.Sprintf(
			"Download completed: %d successful, %d failed", s.Succeeded, s.Failed)))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Images saved to: %s\n", s.TargetDir)
	b.WriteString(dimStyle.Render(fmt.Sprintf("Session %s, %s", s.SessionID, s.Duration.Round(time.Millisecond))))
	b.WriteString("\n")

	return b.String()
}
