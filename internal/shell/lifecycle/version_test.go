package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Version Pin Tests
// =============================================================================

func TestVersionFile_CurrentFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DB_HOST=localhost\nAPP_VERSION=1.2.3\n"), 0o644))

	v := NewVersionFile(path, "APP_VERSION")

	assert.Equal(t, "1.2.3", v.Current())
}

func TestVersionFile_CurrentMissingFileOrKey(t *testing.T) {
	dir := t.TempDir()

	v := NewVersionFile(filepath.Join(dir, "absent.env"), "APP_VERSION")
	assert.Empty(t, v.Current())

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DB_HOST=localhost\n"), 0o644))
	v = NewVersionFile(path, "APP_VERSION")
	assert.Empty(t, v.Current())
}

func TestVersionFile_PinReplacesExistingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DB_HOST=localhost\nAPP_VERSION=1.0.0\nDEBUG=false\n"), 0o644))
	v := NewVersionFile(path, "APP_VERSION")

	require.NoError(t, v.Pin("2.0.0"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "DB_HOST=localhost\nAPP_VERSION=2.0.0\nDEBUG=false\n", string(data))
}

func TestVersionFile_PinAppendsWhenKeyAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DB_HOST=localhost\n"), 0o644))
	v := NewVersionFile(path, "APP_VERSION")

	require.NoError(t, v.Pin("1.0.0"))

	assert.Equal(t, "1.0.0", v.Current())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DB_HOST=localhost\n")
}

func TestVersionFile_PinCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	v := NewVersionFile(path, "APP_VERSION")

	require.NoError(t, v.Pin("1.0.0"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "APP_VERSION=1.0.0\n", string(data))
}

func TestVersionFile_DefaultKey(t *testing.T) {
	v := NewVersionFile("/tmp/whatever", "")
	assert.Equal(t, "/tmp/whatever", v.Path())

	path := filepath.Join(t.TempDir(), ".env")
	v = NewVersionFile(path, "")
	require.NoError(t, v.Pin("3.0.0"))
	assert.Equal(t, "3.0.0", NewVersionFile(path, "APP_VERSION").Current())
}
