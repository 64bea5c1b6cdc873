// Package daemon runs markrag as a long-lived background process.
//
// The daemon owns the index: it holds the instance lock, runs the
// scheduler and the bookmark watcher, and answers JSON-RPC 2.0 requests on
// a Unix socket. CLI commands and the attach TUI talk to it through Client.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/markrag/internal/config"
	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

// Config holds the paths and timeouts of the daemon.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: ~/.markrag/daemon.sock
	SocketPath string

	// PIDPath is the file that records the daemon's process ID.
	// Default: ~/.markrag/daemon.pid
	PIDPath string

	// LockPath is the flock file that keeps a second daemon from starting.
	// Default: ~/.markrag/daemon.lock
	LockPath string

	// Timeout bounds client dial and regular calls.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod is how long Run waits for indexing to stop.
	// Default: 10s
	ShutdownGracePeriod time.Duration
}

// DefaultConfig returns the daemon config under the markrag data directory.
func DefaultConfig() Config {
	return ConfigFrom(config.NewConfig().Daemon)
}

// ConfigFrom builds a daemon Config from the daemon section of the user config.
func ConfigFrom(dc config.DaemonConfig) Config {
	return Config{
		SocketPath:          dc.SocketPath,
		PIDPath:             dc.PIDPath,
		LockPath:            dc.LockPath,
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	switch {
	case c.SocketPath == "":
		return merrors.ConfigError("daemon socket path cannot be empty", nil)
	case c.PIDPath == "":
		return merrors.ConfigError("daemon PID path cannot be empty", nil)
	case c.LockPath == "":
		return merrors.ConfigError("daemon lock path cannot be empty", nil)
	case c.Timeout <= 0:
		return merrors.ConfigError("daemon timeout must be positive", nil)
	case c.ShutdownGracePeriod <= 0:
		return merrors.ConfigError("daemon shutdown grace period must be positive", nil)
	}
	return nil
}

// EnsureDir creates the directories of the socket, PID and lock files.
func (c Config) EnsureDir() error {
	seen := make(map[string]bool)
	for _, p := range []string{c.SocketPath, c.PIDPath, c.LockPath} {
		dir := filepath.Dir(p)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create daemon directory %s: %w", dir, err)
		}
	}
	return nil
}
