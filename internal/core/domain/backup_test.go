package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Backup Type Tests
// =============================================================================

func TestParseBackupType(t *testing.T) {
	for _, valid := range []string{"full", "config", "data", "ssl", "incremental"} {
		parsed, err := ParseBackupType(valid)
		require.NoError(t, err)
		assert.Equal(t, BackupType(valid), parsed)
	}

	_, err := ParseBackupType("everything")
	assert.Error(t, err)
}

func TestBackupType_Covers(t *testing.T) {
	assert.True(t, BackupFull.Covers(BackupConfig))
	assert.True(t, BackupFull.Covers(BackupData))
	assert.True(t, BackupConfig.Covers(BackupConfig))
	assert.False(t, BackupConfig.Covers(BackupData))
	assert.False(t, BackupSSL.Covers(BackupFull))
}

// =============================================================================
// Archive Naming Tests
// =============================================================================

func TestArchiveFileName_RoundTrip(t *testing.T) {
	created := time.Date(2026, 5, 17, 9, 30, 15, 0, time.UTC)
	filename := ArchiveFileName(BackupConfig, "myapp", created)

	assert.Equal(t, "myapp-config-20260517-093015.tar.gz", filename)

	name, typ, parsed, ok := ParseArchiveFileName(filename)
	require.True(t, ok)
	assert.Equal(t, "myapp", name)
	assert.Equal(t, BackupConfig, typ)
	assert.Equal(t, created, parsed)
}

func TestParseArchiveFileName_NameContainingTypeTokens(t *testing.T) {
	// The type is the token directly before the timestamp, so names that
	// themselves contain type words still round-trip.
	created := time.Date(2026, 5, 17, 9, 30, 15, 0, time.UTC)
	cases := []struct {
		name string
		typ  BackupType
	}{
		{"myapp-full", BackupConfig},
		{"full", BackupFull},
		{"data-config-ssl", BackupIncremental},
		{"myapp-full-20990101-123456", BackupData},
	}
	for _, tc := range cases {
		filename := ArchiveFileName(tc.typ, tc.name, created)
		name, typ, parsed, ok := ParseArchiveFileName(filename)
		require.True(t, ok, filename)
		assert.Equal(t, tc.name, name, filename)
		assert.Equal(t, tc.typ, typ, filename)
		assert.Equal(t, created, parsed, filename)
	}
}

func TestArchiveFileName_DefaultName(t *testing.T) {
	created := time.Date(2026, 5, 17, 9, 30, 15, 0, time.UTC)
	filename := ArchiveFileName(BackupFull, "", created)

	assert.Equal(t, "stackward-full-20260517-093015.tar.gz", filename)
}

func TestParseArchiveFileName_RejectsForeignFiles(t *testing.T) {
	for _, filename := range []string{
		"notes.txt",
		"stackward-full.tar.gz",
		"stackward-weekly-20260517-093015.tar.gz",
		"stackward-full-2026-bad.tar.gz",
		".stackward-full-20260517-093015.tar.gz.partial",
	} {
		_, _, _, ok := ParseArchiveFileName(filename)
		assert.False(t, ok, "expected %q to be rejected", filename)
	}
}

func TestSortArchivesNewestFirst(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	archives := []ArchiveSummary{
		{Name: "a", CreatedAt: base},
		{Name: "b", CreatedAt: base.Add(2 * time.Hour)},
		{Name: "c", CreatedAt: base.Add(time.Hour)},
	}

	SortArchivesNewestFirst(archives)

	assert.Equal(t, "b", archives[0].Name)
	assert.Equal(t, "c", archives[1].Name)
	assert.Equal(t, "a", archives[2].Name)
}
