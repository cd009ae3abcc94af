package operation

import (
	"fmt"
	"strings"

	"github.com/stackward/stackward/internal/core/domain"
	"github.com/stackward/stackward/internal/shell/rollback"
)

// Error is the failure of a safe operation. It carries the original error,
// the rollback outcome, and the retained snapshot path so the operator is
// never left guessing what was attempted or where to recover from.
type Error struct {
	Name         string
	Err          error
	SnapshotID   string
	SnapshotPath string
	Unwind       *rollback.Report
	RestoreErr   error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "operation %s failed: %v", e.Name, e.Err)

	if e.Unwind != nil && e.Unwind.Attempted > 0 {
		fmt.Fprintf(&b, "; %s", e.Unwind.String())
	}
	switch {
	case e.SnapshotID == "":
		b.WriteString("; no snapshot was taken")
	case e.RestoreErr != nil:
		fmt.Fprintf(&b, "; snapshot restore FAILED (%v), manual recovery required from %s", e.RestoreErr, e.SnapshotPath)
	default:
		fmt.Fprintf(&b, "; state restored from snapshot %s (retained at %s)", e.SnapshotID, e.SnapshotPath)
	}
	return b.String()
}

// Unwrap exposes the original operation error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is additionally matches ErrRollbackPartial when compensations failed, so
// callers can detect the hard-stop condition without digging into the
// report.
func (e *Error) Is(target error) bool {
	if target == domain.ErrRollbackPartial {
		return e.Unwind != nil && len(e.Unwind.Failed) > 0
	}
	return false
}

// RollbackClean reports whether both rollback layers completed: every
// compensation succeeded and the snapshot restore (if any) did not fail.
func (e *Error) RollbackClean() bool {
	if e.RestoreErr != nil {
		return false
	}
	return e.Unwind == nil || len(e.Unwind.Failed) == 0
}
