// Package ui renders bookmark index status and live indexing progress in
// the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/Aman-CERP/markrag/internal/service"
)

// Pass identifies one of the two indexing passes.
type Pass int

const (
	// PassMetadata embeds title, folder and URL.
	PassMetadata Pass = iota
	// PassContent fetches page text and re-embeds.
	PassContent
)

// String returns the human-readable pass name.
func (p Pass) String() string {
	switch p {
	case PassMetadata:
		return "Metadata"
	case PassContent:
		return "Content"
	default:
		return "Unknown"
	}
}

// Icon returns the short tag used in plain output.
func (p Pass) Icon() string {
	switch p {
	case PassMetadata:
		return "META"
	case PassContent:
		return "PAGE"
	default:
		return "???"
	}
}

// PassState is the observed state of one pass.
type PassState struct {
	Running       bool
	Done          int
	Total         int
	LastIndexedAt *time.Time
	LastReason    string
	LastError     string
	Queued        string
}

// Fraction returns progress in [0, 1].
func (s PassState) Fraction() float64 {
	if s.Total <= 0 {
		return 0
	}
	f := float64(s.Done) / float64(s.Total)
	if f > 1 {
		return 1
	}
	return f
}

// Snapshot is a point-in-time view of the index.
type Snapshot struct {
	Metadata       PassState
	Content        PassState
	TotalDocs      int
	StoredDocs     int
	ContentDocs    int
	EmbeddingModel string
	Sessions       int
}

// Pass returns the state of p.
func (s Snapshot) Pass(p Pass) PassState {
	if p == PassContent {
		return s.Content
	}
	return s.Metadata
}

// SnapshotFrom converts a status response.
func SnapshotFrom(st *service.StatusResponse) Snapshot {
	if st == nil {
		return Snapshot{}
	}
	return Snapshot{
		Metadata: PassState{
			Running:       st.Running,
			Done:          st.ProgressDone,
			Total:         st.ProgressTotal,
			LastIndexedAt: st.LastIndexedAt,
			LastReason:    st.LastIndexReason,
			LastError:     st.LastError,
		},
		Content: PassState{
			Running:       st.ContentRunning,
			Done:          st.ContentProgressDone,
			Total:         st.ContentProgressTotal,
			LastIndexedAt: st.ContentLastIndexedAt,
			LastReason:    st.LastContentIndexReason,
			LastError:     st.ContentLastError,
			Queued:        st.QueuedContentReason,
		},
		TotalDocs:      st.TotalDocs,
		StoredDocs:     st.StoredDocs,
		ContentDocs:    st.ContentIndexedDocCount,
		EmbeddingModel: st.EmbeddingModel,
		Sessions:       st.InteractiveSessions,
	}
}

// Renderer displays a stream of snapshots.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// Update shows the latest snapshot.
	Update(snap Snapshot)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithTitle sets the panel title, usually the bookmarks file path.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a TUI renderer for interactive terminals and a plain
// renderer for CI, pipes, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// TerminalWidth returns the column count of w, or 0 when w is not a
// terminal.
func TerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
