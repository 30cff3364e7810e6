package organizer

import (
	"fmt"
	"strings"

	"pawplan/internal/model"
)

// RecordFailure pairs one expanded record with the error its write hit.
type RecordFailure struct {
	Record model.EventRecord
	Err    error
}

// PartialBatchError reports that some of a recurrence batch's independent
// writes failed. Records that were created stay created and stay in the
// snapshot; there is no rollback or compensation.
type PartialBatchError struct {
	Failures []RecordFailure
}

func (e *PartialBatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d occurrence write(s) failed:", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, " [%s %s: %v]", f.Record.Date, f.Record.Title, f.Err)
	}
	return b.String()
}

// MutationError reports a backend-rejected update or delete. The optimistic
// local change is not reverted; the snapshot converges with the backend on
// the next feed event or fetch.
type MutationError struct {
	Collection string
	ID         string
	Err        error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("mutation on %s/%s rejected: %v", e.Collection, e.ID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
