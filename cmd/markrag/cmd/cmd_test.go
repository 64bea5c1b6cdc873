package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/markrag/internal/config"
	"github.com/Aman-CERP/markrag/internal/daemon"
	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/logging"
	"github.com/Aman-CERP/markrag/internal/service"
	"github.com/Aman-CERP/markrag/pkg/version"
)

const testBookmarks = `{
  "roots": {
    "bookmark_bar": {"id": "1", "name": "Bar", "type": "folder", "children": [
      {"id": "10", "name": "The Rust Programming Language", "type": "url", "url": "https://doc.rust-lang.org/book/"},
      {"id": "11", "name": "A Tour of Go", "type": "url", "url": "https://go.dev/tour/"},
      {"id": "12", "name": "Go by Example", "type": "url", "url": "https://gobyexample.com/"}
    ]}
  }
}`

// testEnv isolates a command run: data dir, user config dir, a bookmark
// file and an explicit config using the static embedder.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MARKRAG_HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MARKRAG_LLM_API_KEY", "")

	bookmarksPath := filepath.Join(dir, "Bookmarks")
	require.NoError(t, os.WriteFile(bookmarksPath, []byte(testBookmarks), 0o600))

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := "bookmarks:\n" +
		"  path: " + bookmarksPath + "\n" +
		"  watch: false\n" +
		"embeddings:\n" +
		"  provider: static\n" +
		"  dimensions: 64\n" +
		"indexing:\n" +
		"  content_enabled: false\n" +
		"  periodic_interval: 0s\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))
	return cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "markrag "+version.Version)

	out, err = run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestRootCmd_ProfileFlags(t *testing.T) {
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	heap := filepath.Join(dir, "heap.prof")

	_, err := run(t, "version", "--profile-cpu", cpu, "--profile-mem", heap)

	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}

func TestSearchCmd_LocalIndexesOnFirstSearch(t *testing.T) {
	// Given: no daemon and an empty store
	cfgPath := testEnv(t)

	// When: searching
	out, err := run(t, "search", "--config", cfgPath, "--json", "rust")

	// Then: the first search indexes in-process and ranks the match first
	require.NoError(t, err)
	var resp service.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "10", resp.Results[0].ID)
	assert.Equal(t, "/Bar", resp.Results[0].FolderPath)
}

func TestSearchCmd_HumanOutputAndPaging(t *testing.T) {
	cfgPath := testEnv(t)

	out, err := run(t, "search", "--config", cfgPath, "--limit", "1", "go")

	require.NoError(t, err)
	assert.Contains(t, out, " 1. ")
	assert.Contains(t, out, "(next page: --offset 1)")
}

func TestSearchCmd_CopyTopURL(t *testing.T) {
	cfgPath := testEnv(t)
	var copied string
	orig := writeClipboard
	writeClipboard = func(text string) error {
		copied = text
		return nil
	}
	t.Cleanup(func() { writeClipboard = orig })

	out, err := run(t, "search", "--config", cfgPath, "--copy", "rust")

	require.NoError(t, err)
	assert.Equal(t, "https://doc.rust-lang.org/book/", copied)
	assert.Contains(t, out, "Copied https://doc.rust-lang.org/book/")
}

func TestSearchCmd_CopyFailureIsAWarning(t *testing.T) {
	cfgPath := testEnv(t)
	orig := writeClipboard
	writeClipboard = func(string) error { return errors.New("no clipboard utility") }
	t.Cleanup(func() { writeClipboard = orig })

	out, err := run(t, "search", "--config", cfgPath, "--copy", "rust")

	require.NoError(t, err)
	assert.Contains(t, out, "Could not copy to clipboard: no clipboard utility")
}

func TestSearchCmd_Validation(t *testing.T) {
	cfgPath := testEnv(t)

	_, err := run(t, "search", "--config", cfgPath, "  ")
	assert.Equal(t, merrors.ErrCodeQueryEmpty, merrors.GetCode(err))

	_, err = run(t, "search", "--config", cfgPath, "--offset", "-1", "go")
	assert.Equal(t, merrors.ErrCodeInvalidInput, merrors.GetCode(err))

	_, err = run(t, "search")
	assert.Error(t, err)
}

func TestAskCmd_LocalFallbackWithoutKey(t *testing.T) {
	// Given: no LLM key
	cfgPath := testEnv(t)

	// When: asking
	out, err := run(t, "ask", "--config", cfgPath, "--json", "learn", "rust")

	// Then: a local summary of the matches is returned with sources
	require.NoError(t, err)
	var resp service.AskResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "local-fallback", string(resp.Mode))
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "The Rust Programming Language", resp.Sources[0].Title)
}

func TestIndexAndStatusCmd_Local(t *testing.T) {
	// Given: a fresh environment
	cfgPath := testEnv(t)

	// When: indexing and waiting
	out, err := run(t, "index", "--config", cfgPath, "--wait")

	// Then: all bookmarks are indexed and status reports them
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 3 bookmarks")

	out, err = run(t, "status", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
	assert.Contains(t, out, "Indexed:      3 bookmarks")
	assert.Contains(t, out, "(manual)")

	out, err = run(t, "status", "--config", cfgPath, "--json")
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "local", parsed["mode"])
	assert.Equal(t, float64(3), parsed["totalDocs"])
}

func TestIndexCmd_ContentFlag(t *testing.T) {
	root := NewRootCmd()
	indexCmd, _, err := root.Find([]string{"index"})
	require.NoError(t, err)

	flag := indexCmd.Flags().Lookup("content")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestIndexCmd_UnreadableBookmarks(t *testing.T) {
	cfgPath := testEnv(t)
	t.Setenv("MARKRAG_BOOKMARKS", filepath.Join(t.TempDir(), "missing"))

	_, err := run(t, "index", "--config", cfgPath, "--wait")

	require.Error(t, err)
	assert.Equal(t, merrors.ErrCodeBookmarksUnreadable, merrors.GetCode(err))
}

func TestConfigCmd(t *testing.T) {
	cfgPath := testEnv(t)
	t.Setenv("MARKRAG_LLM_API_KEY", "sk-secret")

	// show masks the key and reflects the explicit file
	out, err := run(t, "config", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "provider: static")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "sk-secret")

	// init writes the user config once
	out, err = run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	assert.FileExists(t, config.GetUserConfigPath())

	data, err := os.ReadFile(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "# markrag user configuration")

	out, err = run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	// --defaults writes every resolved value
	defaultsPath := filepath.Join(t.TempDir(), "defaults.yaml")
	_, err = run(t, "config", "init", "--defaults", "--path", defaultsPath)
	require.NoError(t, err)
	cfg, err := config.Load(defaultsPath)
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig().Search, cfg.Search)
}

func TestLogsCmd(t *testing.T) {
	cfgPath := testEnv(t)

	// Running any command writes the log file.
	_, err := run(t, "index", "--config", cfgPath, "--wait")
	require.NoError(t, err)

	out, err := run(t, "logs", "--filter", "metadata_pass")
	require.NoError(t, err)
	assert.Contains(t, out, "metadata_pass")

	_, err = run(t, "logs", "--filter", "[")
	assert.Error(t, err)
}

func TestCommands_UseRunningDaemon(t *testing.T) {
	// Given: a daemon running on a short socket path
	cfgPath := testEnv(t)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.Daemon.SocketPath = filepath.Join(os.TempDir(), "markrag-cmd-"+time.Now().Format("150405.000000")+".sock")
	t.Setenv("MARKRAG_SOCKET", cfg.Daemon.SocketPath)

	d, err := daemon.New(cfg, logging.Discard())
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(context.Background()) }()
	select {
	case <-d.Ready():
	case err := <-errCh:
		t.Fatalf("daemon exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon not ready")
	}

	// When: CLI commands run
	_, err = run(t, "index", "--config", cfgPath, "--wait")
	require.NoError(t, err)
	out, err := run(t, "status", "--config", cfgPath, "--json")
	require.NoError(t, err)

	// Then: they are answered by the daemon
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "daemon", parsed["mode"])
	assert.Equal(t, float64(os.Getpid()), parsed["pid"])

	// When: stop runs
	out, err = run(t, "stop", "--config", cfgPath)

	// Then: the daemon exits
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon stopped")
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestStopCmd_NotRunning(t *testing.T) {
	cfgPath := testEnv(t)

	out, err := run(t, "stop", "--config", cfgPath)

	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}

func TestDoctorCmd(t *testing.T) {
	// Given: a valid environment
	cfgPath := testEnv(t)

	// When: running the checks offline
	out, err := run(t, "doctor", "--config", cfgPath, "--offline")

	// Then: required checks pass and the marker is written
	require.NoError(t, err)
	assert.Contains(t, out, "[PASS] bookmarks_file: 3 bookmarks")
	assert.Contains(t, out, "[WARN] language_model")
	assert.Contains(t, out, "Status: READY_WITH_WARNINGS")
	assert.FileExists(t, filepath.Join(os.Getenv("MARKRAG_HOME"), ".preflight-passed"))

	// When: the bookmarks file disappears
	t.Setenv("MARKRAG_BOOKMARKS", filepath.Join(t.TempDir(), "missing"))
	out, err = run(t, "doctor", "--config", cfgPath, "--offline", "--json")

	// Then: the command fails and the marker is cleared
	require.Error(t, err)
	assert.Contains(t, out, `"name": "bookmarks_file"`)
	assert.NoFileExists(t, filepath.Join(os.Getenv("MARKRAG_HOME"), ".preflight-passed"))
}

func TestStatsCmd(t *testing.T) {
	// Given: no queries yet
	cfgPath := testEnv(t)

	out, err := run(t, "stats", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No queries recorded yet.")

	// When: a local search and an unmatched search run
	_, err = run(t, "search", "--config", cfgPath, "rust book")
	require.NoError(t, err)
	_, err = run(t, "search", "--config", cfgPath, "xyzzy")
	require.NoError(t, err)

	// Then: the counters are flushed on exit and reported
	out, err = run(t, "stats", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, ": 2")
	assert.Contains(t, out, "search: 2")
	assert.Contains(t, out, "rust")
	assert.Contains(t, out, "xyzzy")

	out, err = run(t, "stats", "--config", cfgPath, "--json")
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, float64(2), parsed["total_queries"])

	_, err = run(t, "stats", "--config", cfgPath, "--days", "0")
	assert.Equal(t, merrors.ErrCodeInvalidInput, merrors.GetCode(err))

	out, err = run(t, "stats", "--config", cfgPath, "--since", time.Now().AddDate(0, 0, -3).Format(time.DateOnly))
	require.NoError(t, err)
	assert.Contains(t, out, "search: 2")
}

func TestStatsFrom(t *testing.T) {
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.Local)

	tests := []struct {
		name    string
		days    int
		since   string
		want    string
		wantErr bool
	}{
		{name: "single day", days: 1, want: "2026-10-19"},
		{name: "one week", days: 7, want: "2026-10-13"},
		{name: "iso since", days: 7, since: "2026-10-01", want: "2026-10-01"},
		{name: "written since", days: 7, since: "Oct 5, 2026", want: "2026-10-05"},
		{name: "since wins over bad days", days: 0, since: "10/02/2026", want: "2026-10-02"},
		{name: "zero days", days: 0, wantErr: true},
		{name: "garbage since", days: 7, since: "not a date", wantErr: true},
		{name: "future since", days: 7, since: "2027-01-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := statsFrom(now, tt.days, tt.since)
			if tt.wantErr {
				assert.Equal(t, merrors.ErrCodeInvalidInput, merrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateCmd(t *testing.T) {
	cfgPath := testEnv(t)
	dir := t.TempDir()

	// Given: a query set whose core query the index can answer
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("core:\n  - id: rust\n    query: rust programming\n    expected: [\"doc.rust-lang.org\"]\nnegative:\n  - query: \"???\"\n"), 0o600))

	// When: validating
	out, err := run(t, "validate", "--config", cfgPath, good)

	// Then: it passes and reports the rank
	require.NoError(t, err)
	assert.Contains(t, out, "[core] rust: rust programming at #1")
	assert.Contains(t, out, "core      1/1")

	// Given: a core query expecting a bookmark that does not exist
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("core:\n  - query: rust\n    expected: [\"example.invalid\"]\n"), 0o600))

	// Then: the command fails
	_, err = run(t, "validate", "--config", cfgPath, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 core queries failed")
}
