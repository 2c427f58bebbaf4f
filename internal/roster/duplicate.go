package roster

import (
	"context"
	"fmt"

	"github.com/kimshangyup/neulbom/internal/model"
)

// DuplicateChecker is the read-only slice of the store the duplicate pass
// needs. Satisfied by db.Repository.
type DuplicateChecker interface {
	StudentExistsInClass(ctx context.Context, studentName, schoolName, className string, instructorID int64) (bool, error)
}

// FlagDuplicates marks rows whose student name collides with an earlier
// row in the same (school, class) pair, or with a student already
// persisted in that class. Flagged rows are not removed; exclusion is the
// operator's call at the confirmation step. The store is queried at most
// once per (school, class, name): repeats are flagged off the in-batch
// set before any lookup.
func FlagDuplicates(ctx context.Context, rows []model.RosterRow, instructorID int64, store DuplicateChecker) ([]model.RosterRow, error) {
	type classKey struct{ school, class, name string }
	seen := make(map[classKey]bool, len(rows))

	flagged := make([]model.RosterRow, len(rows))
	for i, row := range rows {
		key := classKey{row.SchoolName, row.ClassName, row.StudentName}

		if seen[key] {
			row.IsDuplicate = true
			row.DuplicateWarning = fmt.Sprintf(
				"%s appears more than once for %s %s in this file",
				row.StudentName, row.SchoolName, row.ClassName)
			flagged[i] = row
			continue
		}
		seen[key] = true

		exists, err := store.StudentExistsInClass(ctx, row.StudentName, row.SchoolName, row.ClassName, instructorID)
		if err != nil {
			return nil, fmt.Errorf("duplicate check failed: %w", err)
		}
		if exists {
			row.IsDuplicate = true
			row.DuplicateWarning = fmt.Sprintf(
				"%s is already registered in %s %s",
				row.StudentName, row.SchoolName, row.ClassName)
		}
		flagged[i] = row
	}
	return flagged, nil
}
