package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is a point-in-time copy of a set of filesystem paths, captured
// immutably before a risky operation. Snapshots are internal safety nets,
// distinct from user-facing backup archives.
type Snapshot struct {
	ID            string            `json:"id"`
	OperationName string            `json:"operation_name"`
	CreatedAt     time.Time         `json:"created_at"`
	CapturedPaths []string          `json:"captured_paths"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// SnapshotSummary is the listing view of a snapshot.
type SnapshotSummary struct {
	ID            string    `json:"id"`
	OperationName string    `json:"operation_name"`
	CreatedAt     time.Time `json:"created_at"`
	PathCount     int       `json:"path_count"`
	SizeBytes     int64     `json:"size_bytes"`
}

// snapshotIDLayout keeps IDs lexically sortable by creation time.
const snapshotIDLayout = "20060102T150405Z"

// NewSnapshotID generates a unique snapshot ID from the creation time plus a
// random suffix. IDs sort roughly by age; the suffix guarantees uniqueness
// within one second.
func NewSnapshotID(now time.Time) string {
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("%s-%s", now.UTC().Format(snapshotIDLayout), suffix)
}

// =============================================================================
// Retention (Pure Functions)
// =============================================================================

// SortSummariesNewestFirst orders snapshot summaries newest first, breaking
// creation-time ties by ID.
func SortSummariesNewestFirst(summaries []SnapshotSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID > summaries[j].ID
	})
}

// PruneSelection returns the IDs to delete so that at most maxKeep snapshots
// remain, oldest first. The single most recent snapshot is never selected,
// so maxKeep below 1 behaves as 1.
func PruneSelection(summaries []SnapshotSummary, maxKeep int) []string {
	if maxKeep < 1 {
		maxKeep = 1
	}
	if len(summaries) <= maxKeep {
		return nil
	}

	ordered := make([]SnapshotSummary, len(summaries))
	copy(ordered, summaries)
	SortSummariesNewestFirst(ordered)

	doomed := ordered[maxKeep:]
	ids := make([]string, 0, len(doomed))
	// Oldest first.
	for i := len(doomed) - 1; i >= 0; i-- {
		ids = append(ids, doomed[i].ID)
	}
	return ids
}
