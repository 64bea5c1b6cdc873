package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

// InstanceLock keeps a second daemon from opening the same index. The lock
// is released by the OS if the process dies.
type InstanceLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewInstanceLock creates a lock backed by the file at path.
func NewInstanceLock(path string) *InstanceLock {
	return &InstanceLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking. It fails with
// ERR_203_INSTANCE_LOCKED when another process holds it.
func (l *InstanceLock) Acquire() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return merrors.StorageError("failed to create lock directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return merrors.StorageError(fmt.Sprintf("failed to lock %s", l.path), err)
	}
	if !acquired {
		return merrors.New(merrors.ErrCodeInstanceLocked,
			"another markrag daemon is already running", nil).
			WithDetail("lock", l.path).
			WithSuggestion("Stop it with 'markrag stop' or use its socket")
	}
	l.locked = true
	return nil
}

// Release unlocks. Safe to call on an unlocked InstanceLock.
func (l *InstanceLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Held reports whether this InstanceLock holds the lock.
func (l *InstanceLock) Held() bool {
	return l.locked
}
