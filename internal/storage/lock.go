// Package storage provides the durable layer of the engine: the advisory
// cross-process file lock, the authoritative task queue store (tasks.json),
// and the one-way synchronizer that projects the active task into the
// derived current-task.json file.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const (
	// lockMaxAttempts bounds how many times Acquire polls for the lock
	// before giving up with ErrLockContention.
	lockMaxAttempts = 10

	// lockInitialBackoff is the delay after the first failed attempt; it
	// doubles per attempt up to lockMaxBackoff.
	lockInitialBackoff = 100 * time.Millisecond
	lockMaxBackoff     = 1000 * time.Millisecond
)

// ErrLockContention is returned when the lock could not be acquired within
// the bounded retry budget. Callers treat it as fatal for the invocation,
// never as a silent skip.
var ErrLockContention = errors.New("queue lock held by another process")

// FileLock is an advisory, retrying mutual-exclusion lock over a file path.
// Correctness depends on every mutator of the queue respecting the same lock
// path; an advisory lock cannot stop a non-cooperating process from writing
// directly.
type FileLock struct {
	path    string
	backoff func(time.Duration)
}

// NewFileLock creates a lock over path. The containing directory is created
// on Acquire if absent.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, backoff: time.Sleep}
}

// Acquire obtains an exclusive lock, polling with doubling backoff up to the
// attempt budget. It returns a release function that must always be called,
// including on error paths.
func (l *FileLock) Acquire() (release func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return nil, fmt.Errorf("acquiring lock: creating directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: opening lock file: %w", err)
	}

	backoff := lockInitialBackoff
	for attempt := 1; attempt <= lockMaxAttempts; attempt++ {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return func() error {
				defer f.Close()
				return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
			}, nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) && !errors.Is(err, syscall.EAGAIN) {
			f.Close()
			return nil, fmt.Errorf("acquiring lock: %w", err)
		}
		if attempt == lockMaxAttempts {
			break
		}
		l.backoff(backoff)
		backoff *= 2
		if backoff > lockMaxBackoff {
			backoff = lockMaxBackoff
		}
	}

	f.Close()
	return nil, fmt.Errorf("acquiring lock after %d attempts: %w", lockMaxAttempts, ErrLockContention)
}
