package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestFileLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "tasks.json.lock")
	lock := NewFileLock(path)

	release, err := lock.Acquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := release(); err != nil {
		t.Fatalf("releasing: %v", err)
	}

	// Re-acquire after release must succeed immediately.
	release, err = lock.Acquire()
	if err != nil {
		t.Fatalf("re-acquiring after release: %v", err)
	}
	_ = release()
}

func TestFileLockContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json.lock")

	holder := NewFileLock(path)
	release, err := holder.Acquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = release() }()

	// Same path, separate descriptor: flock treats it as a competing holder
	// even within one process.
	var delays []time.Duration
	contender := NewFileLock(path)
	contender.backoff = func(d time.Duration) { delays = append(delays, d) }

	_, err = contender.Acquire()
	if !errors.Is(err, ErrLockContention) {
		t.Fatalf("expected ErrLockContention, got %v", err)
	}

	// 10 attempts means 9 backoff sleeps, doubling from 100ms capped at 1s.
	want := []time.Duration{
		100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond,
		800 * time.Millisecond, 1000 * time.Millisecond, 1000 * time.Millisecond,
		1000 * time.Millisecond, 1000 * time.Millisecond, 1000 * time.Millisecond,
	}
	if len(delays) != len(want) {
		t.Fatalf("got %d backoff sleeps, want %d", len(delays), len(want))
	}
	for i, d := range delays {
		if d != want[i] {
			t.Errorf("backoff %d = %v, want %v", i, d, want[i])
		}
	}
}

func TestFileLockReacquireAfterContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json.lock")

	holder := NewFileLock(path)
	release, err := holder.Acquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	contender := NewFileLock(path)
	contender.backoff = func(time.Duration) {}
	if _, err := contender.Acquire(); !errors.Is(err, ErrLockContention) {
		t.Fatalf("expected ErrLockContention, got %v", err)
	}

	if err := release(); err != nil {
		t.Fatalf("releasing: %v", err)
	}
	rel2, err := contender.Acquire()
	if err != nil {
		t.Fatalf("acquiring after holder released: %v", err)
	}
	_ = rel2()
}
