package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

// SectionRepository persists class sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs a SectionRepository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByNameAndLevel looks a section up by case-insensitive name within one level.
func (r *SectionRepository) FindByNameAndLevel(ctx context.Context, name, levelID string) (*models.Section, error) {
	const query = `SELECT id, name, level_id, code, created_at, updated_at FROM sections WHERE lower(name) = lower($1) AND level_id = $2`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, name, levelID); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindByID returns the section joined with its level name.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	const query = `SELECT s.id, s.name, s.level_id, s.code, s.created_at, s.updated_at, l.name AS level_name
        FROM sections s JOIN levels l ON l.id = s.level_id WHERE s.id = $1`
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a section.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	section.CreatedAt = now
	section.UpdatedAt = now
	const query = `INSERT INTO sections (id, name, level_id, code, created_at, updated_at)
        VALUES (:id, :name, :level_id, :code, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}
