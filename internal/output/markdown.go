package output

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

const (
	defaultWrap = 100
	maxWrap     = 120
)

// RenderMarkdown renders md for a terminal of the given width using the
// 256-colour profile. The input is returned unchanged if rendering fails.
func RenderMarkdown(md string, width int) string {
	return renderMarkdown(md, width, termenv.ANSI256)
}

func renderMarkdown(md string, width int, profile termenv.Profile) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dracula"),
		glamour.WithWordWrap(wrapWidth(width)),
		glamour.WithColorProfile(profile),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func wrapWidth(width int) int {
	switch {
	case width <= 0:
		return defaultWrap
	case width > maxWrap:
		return maxWrap
	default:
		return width
	}
}
