package sqliteutil

import (
	"errors"
	"fmt"
	"os"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("sqliteutil: lock is held")

var errWouldBlock = errors.New("would block")

// FileLock is an exclusive advisory lock on a sidecar file.
type FileLock struct {
	f *os.File
}

// LockPath returns the sidecar lock file for the database behind dsn, or ""
// for in-memory databases.
func LockPath(dsn, suffix string) string {
	path := FilePath(dsn)
	if path == "" {
		return ""
	}
	return path + suffix
}

// TryLock acquires the lock on path or fails with ErrLocked.
func TryLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}
	if err := tryLockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errWouldBlock) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &FileLock{f: f}, nil
}

// Unlock releases the lock. The sidecar file is left in place.
func (l *FileLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if closeErr := l.f.Close(); err == nil {
		err = closeErr
	}
	l.f = nil
	return err
}
