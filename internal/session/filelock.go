package session

import (
	"fmt"
	"os"
	"time"
)

const (
	lockRetries    = 50
	lockRetryDelay = 100 * time.Millisecond
	staleLockAge   = 30 * time.Second
)

// fileLock is an exclusive advisory lock held as a sibling "<path>.lock" file.
type fileLock struct {
	file *os.File
	path string
}

// acquireFileLock creates path+".lock" exclusively, retrying while another process holds it.
// Locks older than staleLockAge are considered abandoned and removed.
func acquireFileLock(path string) (*fileLock, error) {
	lockPath := path + ".lock"

	for range lockRetries {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d", os.Getpid())
			return &fileLock{file: f, path: lockPath}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire file lock: %w", err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
				return nil, fmt.Errorf("failed to remove stale lock file %s: %w", lockPath, remErr)
			}
			continue
		}

		time.Sleep(lockRetryDelay)
	}

	return nil, fmt.Errorf("timeout waiting for file lock after %v", time.Duration(lockRetries)*lockRetryDelay)
}

func (l *fileLock) release() error {
	if l.file != nil {
		l.file.Close()
	}
	return os.Remove(l.path)
}
