package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

// LevelRepository persists grade levels.
type LevelRepository struct {
	db *sqlx.DB
}

// NewLevelRepository constructs a LevelRepository.
func NewLevelRepository(db *sqlx.DB) *LevelRepository {
	return &LevelRepository{db: db}
}

// FindByName looks a level up by case-insensitive name.
func (r *LevelRepository) FindByName(ctx context.Context, name string) (*models.Level, error) {
	const query = `SELECT id, name, code, created_at, updated_at FROM levels WHERE lower(name) = lower($1)`
	var level models.Level
	if err := r.db.GetContext(ctx, &level, query, name); err != nil {
		return nil, err
	}
	return &level, nil
}

// List returns every level ordered by name.
func (r *LevelRepository) List(ctx context.Context) ([]models.Level, error) {
	const query = `SELECT id, name, code, created_at, updated_at FROM levels ORDER BY name`
	var levels []models.Level
	if err := r.db.SelectContext(ctx, &levels, query); err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	return levels, nil
}

// Create inserts a level.
func (r *LevelRepository) Create(ctx context.Context, level *models.Level) error {
	if level.ID == "" {
		level.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	level.CreatedAt = now
	level.UpdatedAt = now
	const query = `INSERT INTO levels (id, name, code, created_at, updated_at) VALUES (:id, :name, :code, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, level); err != nil {
		return fmt.Errorf("create level: %w", err)
	}
	return nil
}
