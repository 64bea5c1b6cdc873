package bookmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

// webkitEpochOffset is the number of seconds between 1601-01-01 and 1970-01-01.
// Chromium stores date_added as microseconds since 1601-01-01 UTC.
const webkitEpochOffset = 11644473600

// ChromeSource reads a Chromium-family "Bookmarks" JSON file.
// The file is re-read on every call to Tree.
type ChromeSource struct {
	Path string
}

// NewChromeSource creates a source for path.
func NewChromeSource(path string) *ChromeSource {
	return &ChromeSource{Path: path}
}

type chromeFile struct {
	Roots map[string]chromeNode `json:"roots"`
}

type chromeNode struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	URL       string       `json:"url"`
	DateAdded string       `json:"date_added"`
	Children  []chromeNode `json:"children"`
}

// chromeRoots lists the top-level folders in the order the browser shows them.
var chromeRoots = []string{"bookmark_bar", "other", "synced"}

// Tree parses the file and returns the root folders.
func (s *ChromeSource) Tree(ctx context.Context) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeBookmarksUnreadable,
			fmt.Sprintf("failed to read bookmarks file %s", s.Path), err).
			WithSuggestion("Set bookmarks.path in the config or MARKRAG_BOOKMARKS")
	}
	return ParseChrome(data)
}

// ParseChrome decodes the contents of a Chromium "Bookmarks" file.
func ParseChrome(data []byte) ([]Node, error) {
	var file chromeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, merrors.New(merrors.ErrCodeBookmarksUnreadable, "invalid bookmarks JSON", err)
	}
	if file.Roots == nil {
		return nil, merrors.New(merrors.ErrCodeBookmarksUnreadable, "bookmarks JSON has no roots", nil)
	}

	var nodes []Node
	for _, key := range chromeRoots {
		root, ok := file.Roots[key]
		if !ok {
			continue
		}
		nodes = append(nodes, root.toNode())
	}
	return nodes, nil
}

func (c chromeNode) toNode() Node {
	n := Node{
		ID:        c.ID,
		Title:     c.Name,
		DateAdded: parseWebkitTime(c.DateAdded),
	}
	if c.Type == "url" {
		n.URL = c.URL
		return n
	}
	for _, child := range c.Children {
		n.Children = append(n.Children, child.toNode())
	}
	return n
}

// parseWebkitTime converts a WebKit timestamp string to a time.
// Empty, zero, or malformed values yield nil.
func parseWebkitTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	micros, err := strconv.ParseInt(s, 10, 64)
	if err != nil || micros <= 0 {
		return nil
	}
	t := time.UnixMicro(micros - webkitEpochOffset*1_000_000).UTC()
	return &t
}

// CandidatePaths returns the default-profile Bookmarks files of the
// Chromium-family browsers for the current platform, most common first.
func CandidatePaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	var bases []string
	switch runtime.GOOS {
	case "darwin":
		support := filepath.Join(home, "Library", "Application Support")
		bases = []string{
			filepath.Join(support, "Google", "Chrome"),
			filepath.Join(support, "Chromium"),
			filepath.Join(support, "BraveSoftware", "Brave-Browser"),
			filepath.Join(support, "Microsoft Edge"),
		}
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		if local == "" {
			local = filepath.Join(home, "AppData", "Local")
		}
		bases = []string{
			filepath.Join(local, "Google", "Chrome", "User Data"),
			filepath.Join(local, "Chromium", "User Data"),
			filepath.Join(local, "BraveSoftware", "Brave-Browser", "User Data"),
			filepath.Join(local, "Microsoft", "Edge", "User Data"),
		}
	default:
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			configDir = filepath.Join(home, ".config")
		}
		bases = []string{
			filepath.Join(configDir, "google-chrome"),
			filepath.Join(configDir, "chromium"),
			filepath.Join(configDir, "BraveSoftware", "Brave-Browser"),
			filepath.Join(configDir, "microsoft-edge"),
		}
	}

	paths := make([]string, len(bases))
	for i, base := range bases {
		paths[i] = filepath.Join(base, "Default", "Bookmarks")
	}
	return paths
}

// DefaultChromePath returns the first existing candidate Bookmarks file.
func DefaultChromePath() (string, error) {
	for _, p := range CandidatePaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", merrors.New(merrors.ErrCodeBookmarksUnreadable, "no browser bookmarks file found", nil).
		WithSuggestion("Set bookmarks.path in the config or MARKRAG_BOOKMARKS")
}

// ResolvePath returns configured if set, otherwise the detected default.
func ResolvePath(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return DefaultChromePath()
}
