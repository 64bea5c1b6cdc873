package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer shows a live dashboard using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *attachModel
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails for non-TTY output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	return &TUIRenderer{
		cfg:   cfg,
		model: newAttachModel(cfg.Title, GetStyles(cfg.NoColor)),
		done:  make(chan struct{}),
	}, nil
}

// Done is closed when the program exits, including when the user quits.
func (r *TUIRenderer) Done() <-chan struct{} {
	return r.done
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Update implements Renderer.
func (r *TUIRenderer) Update(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(snapshotMsg(snap))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

var _ Renderer = (*TUIRenderer)(nil)

type snapshotMsg Snapshot

// attachModel is the bubbletea model for the attach dashboard.
type attachModel struct {
	title    string
	styles   Styles
	width    int
	quitting bool
	received bool

	snap     Snapshot
	trackers map[Pass]*ProgressTracker
	spinner  spinner.Model
	bar      progress.Model
}

func newAttachModel(title string, styles Styles) *attachModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Header

	bar := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &attachModel{
		title:  title,
		styles: styles,
		width:  80,
		trackers: map[Pass]*ProgressTracker{
			PassMetadata: NewProgressTracker(),
			PassContent:  NewProgressTracker(),
		},
		spinner: s,
		bar:     bar,
	}
}

// Init implements tea.Model.
func (m *attachModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *attachModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-24, 20)

	case snapshotMsg:
		m.received = true
		m.snap = Snapshot(msg)
		m.trackers[PassMetadata].Observe(m.snap.Metadata)
		m.trackers[PassContent].Observe(m.snap.Content)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *attachModel) View() string {
	if m.quitting {
		return "Detached.\n"
	}

	contentWidth := max(m.width-4, 40)
	var sections []string
	if !m.received {
		sections = append(sections, m.spinner.View()+" Waiting for daemon status...")
	} else {
		sections = append(sections,
			m.renderTotals(),
			m.renderDivider(contentWidth),
			m.renderPass(PassMetadata, contentWidth),
			m.renderDivider(contentWidth),
			m.renderPass(PassContent, contentWidth),
		)
	}

	title := "markrag"
	if m.title != "" {
		title += " • " + m.title
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(contentWidth)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
		m.styles.Dim.Render("q to detach"),
	)
}

func (m *attachModel) renderTotals() string {
	line := fmt.Sprintf("%s %s   %s %s   %s %s",
		m.styles.Label.Render("Bookmarks:"), m.styles.Active.Render(fmt.Sprint(m.snap.TotalDocs)),
		m.styles.Label.Render("With page text:"), m.styles.Active.Render(fmt.Sprint(m.snap.ContentDocs)),
		m.styles.Label.Render("Sessions:"), m.styles.Active.Render(fmt.Sprint(m.snap.Sessions)),
	)
	if m.snap.EmbeddingModel != "" {
		line += "\n" + m.styles.Label.Render("Model: ") + m.snap.EmbeddingModel
	}
	return line
}

func (m *attachModel) renderPass(p Pass, width int) string {
	s := m.snap.Pass(p)
	header := m.styles.Active.Render(p.String() + " pass")

	if !s.Running {
		var status string
		switch {
		case s.LastError != "":
			status = m.styles.Error.Render("✗ " + s.LastError)
		case s.LastIndexedAt != nil:
			status = m.styles.Success.Render("● idle") + m.styles.Label.Render(", last run "+formatTime(*s.LastIndexedAt))
			if s.LastReason != "" {
				status += m.styles.Dim.Render(" (" + s.LastReason + ")")
			}
		default:
			status = m.styles.Dim.Render("○ not run yet")
		}
		if s.Queued != "" {
			status += "\n" + m.styles.Warning.Render("queued: "+s.Queued)
		}
		return header + "  " + status
	}

	stats := m.trackers[p].Stats()
	if stats.Total == 0 {
		return header + "  " + m.spinner.View() + " starting"
	}

	bar := m.bar.ViewAs(stats.Progress)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))
	lines := []string{
		header + "  " + m.spinner.View(),
		bar + "  " + pct,
		m.styles.Label.Render(fmt.Sprintf("%d / %d bookmarks", stats.Done, stats.Total)),
		m.renderSpeed(stats),
		m.styles.Spark.Render(m.trackers[p].RenderSparkline(max(width-12, 10))) + " " + m.styles.Dim.Render("docs/s"),
	}
	return strings.Join(lines, "\n")
}

func (m *attachModel) renderSpeed(stats ProgressStats) string {
	speed := fmt.Sprintf("Speed: %.1f/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		speed += fmt.Sprintf(" (avg: %.1f, peak: %.1f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	parts := []string{m.styles.Label.Render(speed)}
	if stats.ETA > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(stats.ETA)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

func (m *attachModel) renderDivider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}
