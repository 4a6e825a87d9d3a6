package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

const studentColumns = `id, national_id, last_name, first_name, gender, date_of_birth, birth_place, age_group,
        level, section, level_id, section_id, academic_year, status, notes, created_at, updated_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByNationalID fetches a student by natural key. It returns sql.ErrNoRows when absent.
func (r *StudentRepository) FindByNationalID(ctx context.Context, nationalID string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE national_id = $1"
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, nationalID); err != nil {
		return nil, err
	}
	return &student, nil
}

// List returns students matching the provided filters ordered by name.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.SectionID != "" {
		args = append(args, filter.SectionID)
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", len(args)))
	}
	if filter.LevelID != "" {
		args = append(args, filter.LevelID)
		conditions = append(conditions, fmt.Sprintf("level_id = $%d", len(args)))
	}
	if filter.AcademicYear != "" {
		args = append(args, filter.AcademicYear)
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM students %s ORDER BY last_name, first_name LIMIT %d OFFSET %d", studentColumns, where, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, national_id, last_name, first_name, gender, date_of_birth, birth_place, age_group,
        level, section, level_id, section_id, academic_year, status, notes, created_at, updated_at)
        VALUES (:id, :national_id, :last_name, :first_name, :gender, :date_of_birth, :birth_place, :age_group,
        :level, :section, :level_id, :section_id, :academic_year, :status, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update overwrites an existing student identified by national id.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET last_name = :last_name, first_name = :first_name, gender = :gender,
        date_of_birth = :date_of_birth, birth_place = :birth_place, age_group = :age_group, level = :level,
        section = :section, level_id = :level_id, section_id = :section_id, academic_year = :academic_year,
        status = :status, notes = :notes, updated_at = :updated_at WHERE national_id = :national_id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}
