package importer

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

// Action is the decision taken for a candidate row.
type Action string

const (
	ActionInsert        Action = "INSERT"
	ActionUpdate        Action = "UPDATE"
	ActionSkipDuplicate Action = "SKIP_DUPLICATE"
)

// Resolution is the outcome of resolving a natural key.
type Resolution struct {
	Action   Action
	Existing *models.Student
	// FirstSeen points at the earlier row for SKIP_DUPLICATE.
	FirstSeen string
}

// Resolver decides between insert, update and duplicate skip for a national id.
type Resolver struct {
	students StudentStore
}

// NewResolver constructs a Resolver over the student store.
func NewResolver(students StudentStore) *Resolver {
	return &Resolver{students: students}
}

// Resolve checks the run's seen set first, then the store. The key is recorded as
// seen whenever resolution succeeds, so later occurrences are always duplicates.
func (r *Resolver) Resolve(ctx context.Context, nationalID string, state *RunState, at rowRef) (Resolution, error) {
	if first, dup := state.markSeen(nationalID, at); dup {
		return Resolution{Action: ActionSkipDuplicate, FirstSeen: first.String()}, nil
	}
	existing, err := r.students.FindByNationalID(ctx, nationalID)
	if err != nil && !isNotFound(err) {
		state.forget(nationalID)
		return Resolution{}, fmt.Errorf("look up student %s: %w", nationalID, err)
	}
	if existing != nil && err == nil {
		return Resolution{Action: ActionUpdate, Existing: existing}, nil
	}
	return Resolution{Action: ActionInsert}, nil
}

// MergeStudent overlays the non-empty fields of incoming onto existing and
// recomputes the age group when the birth date changes.
func MergeStudent(existing, incoming *models.Student, ageGroup func(dob string) string) *models.Student {
	merged := *existing
	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIf(&merged.LastName, incoming.LastName)
	setIf(&merged.FirstName, incoming.FirstName)
	setIf(&merged.BirthPlace, incoming.BirthPlace)
	setIf(&merged.Level, incoming.Level)
	setIf(&merged.Section, incoming.Section)
	setIf(&merged.AcademicYear, incoming.AcademicYear)
	setIf(&merged.Notes, incoming.Notes)
	if incoming.Gender != "" {
		merged.Gender = incoming.Gender
	}
	if incoming.Status != "" {
		merged.Status = incoming.Status
	}
	if incoming.LevelID != nil {
		merged.LevelID = incoming.LevelID
	}
	if incoming.SectionID != nil {
		merged.SectionID = incoming.SectionID
	}
	if incoming.DateOfBirth != "" && incoming.DateOfBirth != merged.DateOfBirth {
		merged.DateOfBirth = incoming.DateOfBirth
	}
	if ageGroup != nil {
		merged.AgeGroup = ageGroup(merged.DateOfBirth)
	}
	return &merged
}
