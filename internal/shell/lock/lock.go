// Package lock provides the mutual-exclusion marker preventing two
// concurrent invocations from running overlapping safe operations against
// the same environment. The marker is a plain file created exclusively; a
// marker left by a dead process is reclaimed with a warning, which is the
// explicit degraded mode for a single-operator tool.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/stackward/stackward/internal/core/domain"
)

// Lock is a held mutual-exclusion marker.
type Lock struct {
	path   string
	logger *slog.Logger
}

// Acquire creates the marker file exclusively. If a marker exists and its
// owner is still alive, ErrOperationInProgress is returned. If the owner is
// dead, the stale marker is reclaimed; reclaimed=true tells the caller a
// previous invocation was interrupted and should be reconciled before
// proceeding.
func Acquire(path string, logger *slog.Logger) (lock *Lock, reclaimed bool, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "lock")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, err
	}

	if err := tryCreate(path); err == nil {
		return &Lock{path: path, logger: logger}, false, nil
	} else if !errors.Is(err, fs.ErrExist) {
		return nil, false, err
	}

	pid, acquiredAt := readMarker(path)
	if pid > 0 && processAlive(pid) {
		return nil, false, fmt.Errorf("%w: held by pid %d since %s",
			domain.ErrOperationInProgress, pid, acquiredAt)
	}

	logger.Warn("reclaiming stale lock from dead process", "pid", pid, "acquired_at", acquiredAt)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	if err := tryCreate(path); err != nil {
		return nil, false, fmt.Errorf("%w: lost race reacquiring lock", domain.ErrOperationInProgress)
	}
	return &Lock{path: path, logger: logger}, true, nil
}

// Release removes the marker.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Path returns the marker location.
func (l *Lock) Path() string {
	return l.path
}

func tryCreate(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	fmt.Fprintf(f, "pid=%d\nacquired_at=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	return f.Close()
}

func readMarker(path string) (pid int, acquiredAt string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "pid="):
			pid, _ = strconv.Atoi(strings.TrimPrefix(line, "pid="))
		case strings.HasPrefix(line, "acquired_at="):
			acquiredAt = strings.TrimPrefix(line, "acquired_at=")
		}
	}
	return pid, acquiredAt
}

// processAlive probes a pid with signal 0.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
