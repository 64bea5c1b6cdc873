package preflight

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/markrag/internal/config"
)

// MarkerFile records that the checks passed for a given configuration.
const MarkerFile = ".preflight-passed"

// Fingerprint identifies the settings the checks depend on. Changing the
// bookmarks file, the store location or the embedding provider invalidates
// an earlier pass.
func Fingerprint(cfg *config.Config) string {
	h := sha256.New()
	for _, s := range []string{cfg.Bookmarks.Path, cfg.Store.Path, cfg.Embeddings.Provider, cfg.Embeddings.OllamaHost} {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// NeedsCheck reports whether the checks must run: there is no marker or it
// was written for a different fingerprint.
func NeedsCheck(dataDir, fingerprint string) bool {
	content, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return true
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	return len(lines) < 2 || lines[1] != fingerprint
}

// MarkPassed writes the marker for fingerprint.
func MarkPassed(dataDir, fingerprint string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}

	content := time.Now().Format(time.RFC3339) + "\n" + fingerprint + "\n"
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte(content), 0o644)
}

// ClearMarker removes the marker, forcing a re-check on the next start.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}
