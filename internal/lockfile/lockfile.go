// Package lockfile keeps a file-backed resource, such as the encrypted
// vault, owned by a single process.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("locked by another process")

// StaleAfter is the age after which a lock is taken over even if its
// process still seems to run.
const StaleAfter = time.Hour

// Lockfile is an exclusive lock next to the resource it protects. The lock
// file holds the owner's PID and the time it was taken.
type Lockfile struct {
	path   string
	file   *os.File
	locked bool
	now    func() time.Time
}

// New returns an unlocked lock at path.
func New(path string) *Lockfile {
	return &Lockfile{path: path, now: time.Now}
}

// For returns the lock guarding resource, stored as resource + ".lock".
func For(resource string) *Lockfile {
	return New(resource + ".lock")
}

// TryAcquire takes the lock once. A lock left by a dead process or older
// than StaleAfter is removed first.
func (l *Lockfile) TryAcquire() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	file, err := l.create()
	if errors.Is(err, os.ErrExist) {
		stale, reason := l.stale()
		if !stale {
			return fmt.Errorf("%w: %s", ErrLocked, reason)
		}
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale lock (%s): %w", reason, err)
		}
		file, err = l.create()
	}
	if err != nil {
		return fmt.Errorf("create lock: %w", err)
	}

	l.file = file
	l.locked = true

	content := fmt.Sprintf("%d\n%s\n", os.Getpid(), l.now().Format(time.RFC3339))
	if _, err := file.WriteString(content); err != nil {
		l.Release()
		return fmt.Errorf("write lock: %w", err)
	}
	if err := file.Sync(); err != nil {
		l.Release()
		return fmt.Errorf("sync lock: %w", err)
	}
	return nil
}

func (l *Lockfile) create() (*os.File, error) {
	return os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
}

// stale reports whether the existing lock may be taken over.
func (l *Lockfile) stale() (bool, string) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return true, "unreadable lock"
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return true, "no pid in lock"
	}
	if running, reason := isProcessRunning(pid); !running {
		return true, reason
	}
	if len(lines) >= 2 {
		if taken, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[1])); err == nil && l.now().Sub(taken) > StaleAfter {
			return true, "lock is older than " + StaleAfter.String()
		}
	}
	return false, fmt.Sprintf("held by pid %d", pid)
}

// Release removes the lock. Releasing an unlocked Lockfile is a no-op.
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false

	var errs []error
	if l.file != nil {
		errs = append(errs, l.file.Close())
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove lock: %w", err))
	}
	return errors.Join(errs...)
}

func (l *Lockfile) Locked() bool {
	return l.locked
}

func (l *Lockfile) Path() string {
	return l.path
}
