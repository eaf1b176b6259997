package git

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/savesync/savesync/internal/vcs"
)

// lockFile is created by git while it rewrites the index. A git process
// that dies mid-operation leaves it behind and every later command fails.
const lockFile = "index.lock"

// LockPath returns the path of the index lock artifact.
func (g *Git) LockPath() string {
	return filepath.Join(g.vcsDir, lockFile)
}

// RemoveStaleLock deletes a leftover index lock.
//
// It reports whether a lock was found and removed. A lock that exists but
// cannot be deleted yields an error wrapping vcs.ErrLockBusy. Callers must
// only invoke this when no git command of their own is running.
func (g *Git) RemoveStaleLock() (bool, error) {
	path := g.LockPath()

	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s: %w", vcs.ErrLockBusy, path, err)
	}

	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("%w: %s: %w", vcs.ErrLockBusy, path, err)
	}

	return true, nil
}
