// Package importer reconciles spreadsheet rosters into the student store.
//
// A run reads one or more workbooks laid out with a fixed metadata block (C5..G7)
// followed by a table of rows, discovers the levels and sections they reference,
// creates those entities once, then inserts, updates or skips every student row by
// national id. Mobility variants additionally upsert one MobilityRecord per student,
// type and academic year. Everything a run learns is kept in a RunState owned by the
// Coordinator; nothing is shared between runs.
package importer

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

var (
	// ErrUnresolvedLevel is returned when a section references a level that was not
	// resolved earlier in the same run.
	ErrUnresolvedLevel = errors.New("level not resolved in this run")
	// ErrStoreUnavailable marks store failures that make continuing pointless.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUnknownVariant is returned when no variant is registered under a name.
	ErrUnknownVariant = errors.New("unknown import variant")
)

// StudentStore persists students keyed by national id.
type StudentStore interface {
	FindByNationalID(ctx context.Context, nationalID string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
}

// LevelStore persists levels keyed by case-normalised name.
type LevelStore interface {
	FindByName(ctx context.Context, name string) (*models.Level, error)
	Create(ctx context.Context, level *models.Level) error
}

// SectionStore persists sections keyed by (name, level id).
type SectionStore interface {
	FindByNameAndLevel(ctx context.Context, name, levelID string) (*models.Section, error)
	Create(ctx context.Context, section *models.Section) error
}

// MobilityStore persists mobility records keyed by (student, type, academic year).
type MobilityStore interface {
	FindByStudentTypeYear(ctx context.Context, studentID string, mobilityType models.MobilityType, academicYear string) (*models.MobilityRecord, error)
	Create(ctx context.Context, record *models.MobilityRecord) error
	Update(ctx context.Context, record *models.MobilityRecord) error
}

// Stores groups the persistence contracts the engine needs. Mobility may be nil for
// runs that only use the roster variant.
type Stores struct {
	Students StudentStore
	Levels   LevelStore
	Sections SectionStore
	Mobility MobilityStore
	// Health is optional; when set it is consulted before any write happens.
	Health interface {
		Ping(ctx context.Context) error
	}
}

// isNotFound treats sql.ErrNoRows as the store's "absent" answer.
func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isFatal(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
