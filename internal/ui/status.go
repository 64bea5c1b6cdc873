package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo is what `markrag status` shows.
type StatusInfo struct {
	Snapshot

	// Mode is "daemon" when answered by a running daemon, "local" otherwise.
	Mode          string
	PID           int
	Uptime        string
	BookmarksPath string
	Watching      bool
	StorePath     string
	StoreSize     int64
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("markrag index"))

	if info.Mode == "daemon" {
		_, _ = fmt.Fprintf(r.out, "  Daemon:       %s (pid %d, up %s)\n", r.styles.Success.Render("running"), info.PID, info.Uptime)
	} else {
		_, _ = fmt.Fprintf(r.out, "  Daemon:       %s\n", r.styles.Warning.Render("not running"))
	}
	if info.BookmarksPath != "" {
		_, _ = fmt.Fprintf(r.out, "  Bookmarks:    %s\n", info.BookmarksPath)
	}
	if info.Mode == "daemon" {
		watch := r.styles.Warning.Render("off")
		if info.Watching {
			watch = r.styles.Success.Render("on")
		}
		_, _ = fmt.Fprintf(r.out, "  Watching:     %s\n", watch)
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Indexed:      %d bookmarks\n", info.TotalDocs)
	_, _ = fmt.Fprintf(r.out, "  Stored:       %d\n", info.StoredDocs)
	_, _ = fmt.Fprintf(r.out, "  Page text:    %d\n", info.ContentDocs)
	if info.EmbeddingModel != "" {
		_, _ = fmt.Fprintf(r.out, "  Model:        %s\n", info.EmbeddingModel)
	}
	if info.StorePath != "" {
		_, _ = fmt.Fprintf(r.out, "  Store:        %s (%s)\n", info.StorePath, FormatBytes(info.StoreSize))
	}
	if info.Sessions > 0 {
		_, _ = fmt.Fprintf(r.out, "  Sessions:     %d interactive\n", info.Sessions)
	}
	_, _ = fmt.Fprintln(r.out)

	r.renderPass(PassMetadata, info.Metadata)
	r.renderPass(PassContent, info.Content)
	return nil
}

func (r *StatusRenderer) renderPass(p Pass, s PassState) {
	var state string
	switch {
	case s.Running && s.Total > 0:
		state = r.styles.Active.Render(fmt.Sprintf("running %d/%d (%.0f%%)", s.Done, s.Total, s.Fraction()*100))
	case s.Running:
		state = r.styles.Active.Render("running")
	case s.LastIndexedAt != nil:
		state = "idle, last run " + formatTime(*s.LastIndexedAt)
		if s.LastReason != "" {
			state += " (" + s.LastReason + ")"
		}
	default:
		state = r.styles.Dim.Render("never run")
	}
	_, _ = fmt.Fprintf(r.out, "  %-13s %s\n", p.String()+":", state)
	if s.Queued != "" {
		_, _ = fmt.Fprintf(r.out, "  %-13s %s\n", "", r.styles.Warning.Render("queued: "+s.Queued))
	}
	if s.LastError != "" {
		_, _ = fmt.Fprintf(r.out, "  %-13s %s\n", "", r.styles.Error.Render("error: "+s.LastError))
	}
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(v any) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
