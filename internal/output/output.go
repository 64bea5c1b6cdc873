// Package output formats CLI messages, search results and answers.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/markrag/internal/rag"
	"github.com/Aman-CERP/markrag/internal/service"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer

	markdown bool
	width    int
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WithMarkdown makes Answer render answer text as terminal markdown wrapped
// to width columns.
func (w *Writer) WithMarkdown(width int) *Writer {
	w.markdown = true
	w.width = width
	return w
}

// Status prints a status message with an icon.
// Errors from writing are ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints an indented block.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Bookmark prints one ranked bookmark.
func (w *Writer) Bookmark(rank int, title, url, folder string, score float64) {
	if title == "" {
		title = "(untitled)"
	}
	_, _ = fmt.Fprintf(w.out, "%2d. %s  [%.3f]\n", rank, title, score)
	_, _ = fmt.Fprintf(w.out, "    %s\n", url)
	if folder != "" && folder != "/" {
		_, _ = fmt.Fprintf(w.out, "    in %s\n", folder)
	}
}

// SearchResults prints a search page with a paging footer.
func (w *Writer) SearchResults(query string, resp *service.SearchResponse) {
	if len(resp.Results) == 0 {
		w.Statusf("🔍", "No bookmarks match %q", query)
		if resp.Indexing {
			w.Status("", "Indexing is in progress, try again shortly.")
		}
		return
	}

	for i, r := range resp.Results {
		w.Bookmark(resp.Offset+i+1, r.Title, r.URL, r.FolderPath, r.Score)
	}
	w.Newline()

	shown := resp.Offset + len(resp.Results)
	footer := fmt.Sprintf("%d-%d of %d", resp.Offset+1, shown, resp.TotalCount)
	if shown < resp.TotalCount {
		footer += fmt.Sprintf(" (next page: --offset %d)", shown)
	}
	if !resp.UsedVector {
		footer += ", keyword ranking only"
	}
	w.Status("", footer)
}

// Answer prints an ask response and its sources.
func (w *Writer) Answer(resp *service.AskResponse) {
	answer := strings.TrimSpace(resp.Answer)
	if w.markdown && resp.Mode == rag.ModeLLM {
		answer = RenderMarkdown(answer, w.width)
	}
	_, _ = fmt.Fprintln(w.out, answer)
	if resp.LLMError != "" {
		w.Newline()
		w.Warningf("Language model unavailable: %s", resp.LLMError)
	}
	if len(resp.Sources) == 0 {
		return
	}
	w.Newline()
	_, _ = fmt.Fprintln(w.out, "Sources:")
	for _, s := range resp.Sources {
		w.Bookmark(s.Rank, s.Title, s.URL, s.FolderPath, s.Score)
	}
}

// Progress prints an in-place progress bar with message.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}

	pct := float64(current) / float64(total) * 100
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", renderProgressBar(current, total, 30), pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// ProgressDone completes a progress line with newline.
func (w *Writer) ProgressDone() {
	_, _ = fmt.Fprintln(w.out)
}

func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := int(float64(current) / float64(total) * float64(width))
	filled = max(0, min(filled, width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
