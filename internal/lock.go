package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	DefaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 100 * time.Millisecond
)

// LockPath is the lock file guarding the artifacts rooted at indexPath.
func LockPath(indexPath string) string {
	return indexPath + ".lock"
}

// LockArtifacts takes a cross-process lock on the artifacts of indexPath.
// Writers take it exclusively, readers shared. It gives up with
// ErrArtifactsBusy after timeout.
func LockArtifacts(ctx context.Context, indexPath string, exclusive bool, timeout time.Duration) (func(), error) {
	path := LockPath(indexPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	l := flock.New(path)
	deadline := time.Now().Add(timeout)

	for {
		var (
			locked bool
			err    error
		)
		if exclusive {
			locked, err = l.TryLock()
		} else {
			locked, err = l.TryRLock()
		}
		if err != nil {
			return nil, fmt.Errorf("acquire artifact lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w (lock: %s)", ErrArtifactsBusy, path)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}
