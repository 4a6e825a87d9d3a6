package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Schema is the idempotent DDL for the roster tables, applied in order by database.EnsureSchema.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS levels (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS levels_name_key ON levels (lower(name))`,
	`CREATE TABLE IF NOT EXISTS sections (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		level_id UUID NOT NULL REFERENCES levels(id),
		code TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS sections_name_level_key ON sections (lower(name), level_id)`,
	`CREATE TABLE IF NOT EXISTS students (
		id UUID PRIMARY KEY,
		national_id TEXT NOT NULL UNIQUE,
		last_name TEXT NOT NULL,
		first_name TEXT NOT NULL,
		gender TEXT NOT NULL,
		date_of_birth TEXT NOT NULL DEFAULT '',
		birth_place TEXT NOT NULL DEFAULT '',
		age_group TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL DEFAULT '',
		section TEXT NOT NULL DEFAULT '',
		level_id UUID NULL REFERENCES levels(id),
		section_id UUID NULL REFERENCES sections(id),
		academic_year TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS students_section_idx ON students (section_id)`,
	`CREATE TABLE IF NOT EXISTS mobility_records (
		id UUID PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(national_id),
		type TEXT NOT NULL,
		event_date TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		institution TEXT NOT NULL DEFAULT '',
		score NUMERIC(5,2) NULL,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS mobility_student_type_year_key ON mobility_records (student_id, type, (metadata->>'academic_year'))`,
}

// HealthRepository reports database reachability.
type HealthRepository struct {
	db *sqlx.DB
}

// NewHealthRepository constructs a HealthRepository.
func NewHealthRepository(db *sqlx.DB) *HealthRepository {
	return &HealthRepository{db: db}
}

// Ping checks the connection pool can reach the database.
func (r *HealthRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
