package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackward/stackward/internal/core/domain"
)

// =============================================================================
// Acquire and Release Tests
// =============================================================================

func TestAcquire_FreshLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "op.lock")

	l, reclaimed, err := Acquire(path, nil)

	require.NoError(t, err)
	assert.False(t, reclaimed)
	assert.Equal(t, path, l.Path())
	assert.FileExists(t, path)

	require.NoError(t, l.Release())
	assert.NoFileExists(t, path)
}

func TestAcquire_HeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "op.lock")

	first, _, err := Acquire(path, nil)
	require.NoError(t, err)
	defer first.Release()

	// The marker names this test's own (very alive) pid.
	_, _, err = Acquire(path, nil)

	require.ErrorIs(t, err, domain.ErrOperationInProgress)
	assert.Contains(t, err.Error(), fmt.Sprintf("pid %d", os.Getpid()))
}

func TestAcquire_ReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "op.lock")

	// Fabricate a marker from a process that cannot exist. Pid max on Linux
	// is far below this.
	marker := fmt.Sprintf("pid=%d\nacquired_at=%s\n", 1<<30, time.Now().UTC().Format(time.RFC3339))
	require.NoError(t, os.WriteFile(path, []byte(marker), 0o644))

	l, reclaimed, err := Acquire(path, nil)

	require.NoError(t, err)
	assert.True(t, reclaimed, "caller must learn the previous invocation died")
	require.NoError(t, l.Release())
}

func TestAcquire_GarbageMarkerIsReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "op.lock")
	require.NoError(t, os.WriteFile(path, []byte("not a marker\n"), 0o644))

	l, reclaimed, err := Acquire(path, nil)

	require.NoError(t, err)
	assert.True(t, reclaimed)
	require.NoError(t, l.Release())
}

func TestRelease_IdempotentWhenMarkerGone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "op.lock")
	l, _, err := Acquire(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	assert.NoError(t, l.Release())
}
