package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

const mobilityColumns = `id, student_id, type, event_date, reason, institution, score, metadata, created_at, updated_at`

// MobilityRepository persists transfer, dropout, dismissal, reintegration and council records.
type MobilityRepository struct {
	db *sqlx.DB
}

// NewMobilityRepository constructs a MobilityRepository.
func NewMobilityRepository(db *sqlx.DB) *MobilityRepository {
	return &MobilityRepository{db: db}
}

// FindByStudentTypeYear returns the single record for (student, type, academic year).
func (r *MobilityRepository) FindByStudentTypeYear(ctx context.Context, studentID string, mobilityType models.MobilityType, academicYear string) (*models.MobilityRecord, error) {
	query := "SELECT " + mobilityColumns + ` FROM mobility_records
        WHERE student_id = $1 AND type = $2 AND metadata->>'academic_year' = $3`
	var record models.MobilityRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, mobilityType, academicYear); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByStudent returns a student's records, latest first.
func (r *MobilityRepository) ListByStudent(ctx context.Context, studentID string) ([]models.MobilityRecord, error) {
	query := "SELECT " + mobilityColumns + " FROM mobility_records WHERE student_id = $1 ORDER BY created_at DESC"
	var records []models.MobilityRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list mobility records: %w", err)
	}
	return records, nil
}

// Create inserts a mobility record.
func (r *MobilityRepository) Create(ctx context.Context, record *models.MobilityRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO mobility_records (id, student_id, type, event_date, reason, institution, score, metadata, created_at, updated_at)
        VALUES (:id, :student_id, :type, :event_date, :reason, :institution, :score, :metadata, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create mobility record: %w", err)
	}
	return nil
}

// Update rewrites a mobility record in place.
func (r *MobilityRepository) Update(ctx context.Context, record *models.MobilityRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE mobility_records SET event_date = :event_date, reason = :reason, institution = :institution,
        score = :score, metadata = :metadata, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("update mobility record: %w", err)
	}
	return nil
}
