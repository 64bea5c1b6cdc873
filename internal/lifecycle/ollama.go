// Package lifecycle gets the local Ollama server ready for embeddings:
// detecting the install, starting the server and pulling the model.
package lifecycle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Aman-CERP/markrag/internal/embed"
	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

const (
	// StartupTimeout is how long to wait for Ollama to start.
	StartupTimeout = 30 * time.Second

	readyPollInterval    = 100 * time.Millisecond
	maxReadyPollInterval = 2 * time.Second
)

// Manager handles Ollama lifecycle operations for one host.
type Manager struct {
	host   string
	client *http.Client

	execCommand func(name string, args ...string) *exec.Cmd
	lookPath    func(file string) (string, error)
	fileExists  func(path string) bool
}

// PullProgress is one line of the streaming pull response.
type PullProgress struct {
	Status    string
	Total     int64
	Completed int64
}

// Percent returns completion in [0, 100], or 0 when the total is unknown.
func (p PullProgress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// EnsureOpts configures EnsureReady.
type EnsureOpts struct {
	AutoStart bool
	AutoPull  bool
	// Progress receives pull updates. Nil discards them.
	Progress func(PullProgress)
	// Log receives one-line status messages. Nil discards them.
	Log func(msg string)
}

// NewManager creates a manager for host, defaulting to the local server.
func NewManager(host string) *Manager {
	if host == "" {
		host = embed.DefaultOllamaHost
	}
	return &Manager{
		host:        strings.TrimRight(host, "/"),
		client:      &http.Client{Timeout: 5 * time.Second},
		execCommand: exec.Command,
		lookPath:    exec.LookPath,
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// Host returns the configured Ollama host.
func (m *Manager) Host() string {
	return m.host
}

// IsRemoteHost reports whether the host is not on this machine. Remote
// servers cannot be started locally.
func (m *Manager) IsRemoteHost() bool {
	return !strings.Contains(m.host, "localhost") && !strings.Contains(m.host, "127.0.0.1")
}

// IsInstalled returns the path of the ollama binary or app, if any.
func (m *Manager) IsInstalled() (bool, string) {
	if path, err := m.lookPath("ollama"); err == nil {
		return true, path
	}

	home := os.Getenv("HOME")
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{"/Applications/Ollama.app", filepath.Join(home, "Applications", "Ollama.app")}
	case "linux":
		candidates = []string{"/usr/local/bin/ollama", "/usr/bin/ollama", filepath.Join(home, ".local", "bin", "ollama")}
	}
	for _, p := range candidates {
		if m.fileExists(p) {
			return true, p
		}
	}
	return false, ""
}

// IsRunning reports whether the API answers.
func (m *Manager) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the names of the pulled models.
func (m *Manager) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, merrors.NetworkError("failed to connect to Ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result embed.OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	models := make([]string, len(result.Models))
	for i, info := range result.Models {
		models[i] = info.Name
	}
	return models, nil
}

// HasModel matches model by full name or by name without the tag.
func (m *Manager) HasModel(ctx context.Context, model string) (bool, error) {
	models, err := m.ListModels(ctx)
	if err != nil {
		return false, err
	}

	want := strings.ToLower(model)
	wantBase := strings.Split(want, ":")[0]
	for _, available := range models {
		got := strings.ToLower(available)
		if got == want || strings.Split(got, ":")[0] == wantBase {
			return true, nil
		}
	}
	return false, nil
}

// Start launches the local server. It is a no-op when already running.
func (m *Manager) Start(ctx context.Context) error {
	if m.IsRunning(ctx) {
		return nil
	}
	installed, path := m.IsInstalled()
	if !installed {
		return notInstalledError()
	}

	switch runtime.GOOS {
	case "darwin":
		if strings.HasSuffix(path, ".app") || m.fileExists("/Applications/Ollama.app") {
			if err := m.execCommand("open", "-a", "Ollama").Start(); err != nil {
				return fmt.Errorf("failed to open Ollama.app: %w", err)
			}
			return nil
		}
	case "linux":
		if m.execCommand("systemctl", "--user", "start", "ollama").Run() == nil {
			return nil
		}
	}
	return m.serve(path)
}

func (m *Manager) serve(path string) error {
	cmd := m.execCommand(path, "serve")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ollama serve: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// WaitForReady polls with exponential backoff until the API answers.
func (m *Manager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	if timeout == 0 {
		timeout = StartupTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := readyPollInterval
	for {
		if m.IsRunning(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return merrors.New(merrors.ErrCodeEmbedderUnavailable, "timeout waiting for Ollama to start", ctx.Err())
		case <-time.After(interval):
		}
		interval = min(interval*2, maxReadyPollInterval)
	}
}

// PullModel pulls model and streams progress. Pulled models return at once.
func (m *Manager) PullModel(ctx context.Context, model string, progress func(PullProgress)) error {
	has, err := m.HasModel(ctx, model)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	body, err := json.Marshal(map[string]any{"name": model, "stream": true})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Streaming: no client timeout, ctx bounds the pull.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return merrors.NetworkError("failed to start pull", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var line struct {
			Status    string `json:"status"`
			Error     string `json:"error"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Error != "" {
			return merrors.New(merrors.ErrCodeEmbedderUnavailable, "pull failed: "+line.Error, nil)
		}
		if progress != nil {
			progress(PullProgress{Status: line.Status, Total: line.Total, Completed: line.Completed})
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading pull response: %w", err)
	}
	return nil
}

// EnsureReady starts the server and pulls model as opts allow.
func (m *Manager) EnsureReady(ctx context.Context, model string, opts EnsureOpts) error {
	if model == "" {
		model = embed.DefaultOllamaModel
	}
	logf := func(format string, args ...any) {
		if opts.Log != nil {
			opts.Log(fmt.Sprintf(format, args...))
		}
	}

	if !m.IsRunning(ctx) {
		if !opts.AutoStart || m.IsRemoteHost() {
			return merrors.New(merrors.ErrCodeEmbedderUnavailable, "ollama is not running at "+m.host, nil).
				WithSuggestion("Start it with 'ollama serve'")
		}
		logf("Starting Ollama...")
		if err := m.Start(ctx); err != nil {
			return err
		}
		if err := m.WaitForReady(ctx, StartupTimeout); err != nil {
			return err
		}
		logf("Ollama is running at %s", m.host)
	}

	has, err := m.HasModel(ctx, model)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	if !opts.AutoPull {
		return merrors.New(merrors.ErrCodeEmbedderUnavailable, fmt.Sprintf("model %s is not pulled", model), nil).
			WithSuggestion("Run 'ollama pull " + model + "'")
	}

	logf("Pulling embedding model %s...", model)
	if err := m.PullModel(ctx, model, opts.Progress); err != nil {
		return err
	}
	logf("Model %s ready", model)
	return nil
}

func notInstalledError() error {
	return merrors.New(merrors.ErrCodeEmbedderUnavailable, "ollama is not installed", nil).
		WithSuggestion(InstallInstructions())
}

// InstallInstructions returns platform-specific install instructions.
func InstallInstructions() string {
	switch runtime.GOOS {
	case "darwin":
		return "Install from https://ollama.com/download or 'brew install ollama', then run 'markrag doctor --fix'"
	case "linux":
		return "Install with 'curl -fsSL https://ollama.com/install.sh | sh', then run 'markrag doctor --fix'"
	default:
		return "Download from https://ollama.com/download, then run 'markrag doctor --fix'"
	}
}
