//go:build darwin || linux

// Package lockx provides an advisory file lock used to keep reconciliation
// runs and ledger rewrites from overlapping, even across processes.
package lockx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("lock is held elsewhere")

// FileLock wraps flock(2) on a single lock file. The zero value is not
// usable; create one with New.
type FileLock struct {
	path string

	mu   sync.Mutex
	fd   int
	held bool
}

func New(path string) *FileLock {
	return &FileLock{path: path, fd: -1}
}

func (l *FileLock) Path() string { return l.path }

// TryLock acquires the lock without blocking. It returns ErrLocked when
// another process (or another FileLock in this process) already holds it.
func (l *FileLock) TryLock() error {
	return l.acquire(unix.LOCK_EX | unix.LOCK_NB)
}

// Lock waits until the lock is free and takes it. Locking a FileLock that is
// already held returns ErrLocked instead of deadlocking.
func (l *FileLock) Lock() error {
	return l.acquire(unix.LOCK_EX)
}

func (l *FileLock) acquire(how int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return ErrLocked
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o770); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	fd, err := unix.Open(l.path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o660)
	if err != nil {
		return fmt.Errorf("opening lock file %s: %w", l.path, err)
	}

	for {
		err = unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrLocked
		}
		return fmt.Errorf("flock %s: %w", l.path, err)
	}

	l.fd = fd
	l.held = true
	return nil
}

// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
func (l *FileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false

	fd := l.fd
	l.fd = -1
	if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
		unix.Close(fd)
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return unix.Close(fd)
}
