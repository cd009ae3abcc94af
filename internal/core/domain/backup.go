package domain

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// =============================================================================
// Backup Types
// =============================================================================

// BackupType selects which part of the environment an archive covers.
type BackupType string

const (
	BackupFull        BackupType = "full"
	BackupConfig      BackupType = "config"
	BackupData        BackupType = "data"
	BackupSSL         BackupType = "ssl"
	BackupIncremental BackupType = "incremental"
)

// ParseBackupType validates a user-supplied backup type.
func ParseBackupType(s string) (BackupType, error) {
	switch BackupType(s) {
	case BackupFull, BackupConfig, BackupData, BackupSSL, BackupIncremental:
		return BackupType(s), nil
	default:
		return "", fmt.Errorf("unknown backup type %q", s)
	}
}

// Covers reports whether an archive of type t satisfies a restore scope.
// A full archive satisfies any scope; an incremental satisfies the scope of
// its base and is resolved by the engine against the base's coverage.
func (t BackupType) Covers(scope BackupType) bool {
	if t == BackupFull || t == scope {
		return true
	}
	return false
}

// =============================================================================
// Archive Summaries
// =============================================================================

// ArchiveSummary is the listing view of a backup archive. It is derived from
// the archive filename and file metadata; full details live inside the
// archive itself.
type ArchiveSummary struct {
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	Type      BackupType `json:"type"`
	CreatedAt time.Time  `json:"created_at"`
	SizeBytes int64      `json:"size_bytes"`
}

// archiveTimeLayout is embedded in archive filenames.
const archiveTimeLayout = "20060102-150405"

// ArchiveFileName builds the canonical archive filename:
// <name>-<type>-<timestamp>.tar.gz. An empty name defaults to "stackward".
func ArchiveFileName(t BackupType, name string, now time.Time) string {
	if name == "" {
		name = "stackward"
	}
	return fmt.Sprintf("%s-%s-%s.tar.gz", name, t, now.UTC().Format(archiveTimeLayout))
}

var archiveNameRe = regexp.MustCompile(
	`^(.+)-(full|config|data|ssl|incremental)-(\d{8}-\d{6})\.tar\.gz$`)

// ParseArchiveFileName extracts the name, type, and creation time from a
// canonical archive filename. Returns false for files that do not follow the
// convention; those are ignored by listings.
func ParseArchiveFileName(filename string) (name string, t BackupType, created time.Time, ok bool) {
	m := archiveNameRe.FindStringSubmatch(filename)
	if m == nil {
		return "", "", time.Time{}, false
	}
	created, err := time.Parse(archiveTimeLayout, m[3])
	if err != nil {
		return "", "", time.Time{}, false
	}
	return m[1], BackupType(m[2]), created.UTC(), true
}

// SortArchivesNewestFirst orders archive summaries newest first, breaking
// ties by filename.
func SortArchivesNewestFirst(archives []ArchiveSummary) {
	sort.Slice(archives, func(i, j int) bool {
		if !archives[i].CreatedAt.Equal(archives[j].CreatedAt) {
			return archives[i].CreatedAt.After(archives[j].CreatedAt)
		}
		return archives[i].Name > archives[j].Name
	})
}
