package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// PlainRenderer prints one line per pass whenever that pass changes. It
// suits pipes and CI logs.
type PlainRenderer struct {
	mu   sync.Mutex
	out  io.Writer
	last map[Pass]string
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:  cfg.Output,
		last: make(map[Pass]string, 2),
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// Update implements Renderer.
func (r *PlainRenderer) Update(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range []Pass{PassMetadata, PassContent} {
		line := plainLine(p, snap)
		if line == "" || line == r.last[p] {
			continue
		}
		r.last[p] = line
		_, _ = fmt.Fprintln(r.out, line)
	}
}

func plainLine(p Pass, snap Snapshot) string {
	s := snap.Pass(p)
	switch {
	case s.Running && s.Total > 0:
		return fmt.Sprintf("[%s] %d/%d (%.0f%%)", p.Icon(), s.Done, s.Total, s.Fraction()*100)
	case s.Running:
		return fmt.Sprintf("[%s] starting", p.Icon())
	case s.LastError != "":
		return fmt.Sprintf("[%s] error: %s", p.Icon(), s.LastError)
	case s.LastIndexedAt != nil:
		n := snap.TotalDocs
		if p == PassContent {
			n = snap.ContentDocs
		}
		return fmt.Sprintf("[%s] idle, %d bookmarks indexed", p.Icon(), n)
	default:
		return ""
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
