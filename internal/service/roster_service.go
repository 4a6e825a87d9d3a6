package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/pkg/cache"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/export"
)

type rosterStudentReader interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

type rosterSectionReader interface {
	FindByID(ctx context.Context, id string) (*models.SectionDetail, error)
}

type levelLister interface {
	List(ctx context.Context) ([]models.Level, error)
}

type mobilityHistory interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.MobilityRecord, error)
}

type rosterCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// Export formats supported for class lists.
const (
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

const exportPageSize = 500

// RosterPage is one page of a section's class list.
type RosterPage struct {
	Section    models.SectionDetail `json:"section"`
	Students   []models.Student     `json:"students"`
	Pagination models.Pagination    `json:"pagination"`
}

// RosterFile is a rendered class list.
type RosterFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RosterServiceConfig configures class list rendering.
type RosterServiceConfig struct {
	Title    string
	CacheTTL time.Duration
}

// RosterService lists and exports the students of a section.
type RosterService struct {
	students  rosterStudentReader
	sections  rosterSectionReader
	levels    levelLister
	mobility  mobilityHistory
	cache     rosterCache
	renderers map[string]datasetRenderer
	logger    *zap.Logger
	cfg       RosterServiceConfig
}

// RosterStores groups the read models the roster service queries.
type RosterStores struct {
	Students rosterStudentReader
	Sections rosterSectionReader
	Levels   levelLister
	Mobility mobilityHistory
}

// NewRosterService constructs the service with the default CSV, PDF and XLSX renderers.
func NewRosterService(stores RosterStores, cache rosterCache, logger *zap.Logger, cfg RosterServiceConfig) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Title == "" {
		cfg.Title = "Class list"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &RosterService{
		students: stores.Students,
		sections: stores.Sections,
		levels:   stores.Levels,
		mobility: stores.Mobility,
		cache:    cache,
		renderers: map[string]datasetRenderer{
			FormatCSV:  export.NewCSVExporter(),
			FormatPDF:  export.NewPDFExporter(),
			FormatXLSX: export.NewXLSXExporter(),
		},
		logger: logger,
		cfg:    cfg,
	}
}

// List returns one page of the section's students.
func (s *RosterService) List(ctx context.Context, sectionID, academicYear string, page, size int) (*RosterPage, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > exportPageSize {
		size = 50
	}
	key := cache.RosterKey(sectionID, academicYear, page, size)
	var cached RosterPage
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	section, err := s.section(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	students, total, err := s.students.List(ctx, models.StudentFilter{
		SectionID:    section.ID,
		AcademicYear: academicYear,
		Page:         page,
		PageSize:     size,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	result := &RosterPage{
		Section:    *section,
		Students:   students,
		Pagination: models.Pagination{Page: page, PageSize: size, TotalCount: total},
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, result, s.cfg.CacheTTL)
	}
	return result, nil
}

// Levels lists known levels by name.
func (s *RosterService) Levels(ctx context.Context) ([]models.Level, error) {
	if s.levels == nil {
		return []models.Level{}, nil
	}
	levels, err := s.levels.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list levels")
	}
	if levels == nil {
		levels = []models.Level{}
	}
	return levels, nil
}

// Mobility returns the mobility history of a student, newest first.
func (s *RosterService) Mobility(ctx context.Context, nationalID string) ([]models.MobilityRecord, error) {
	nationalID = strings.ToUpper(strings.Join(strings.Fields(nationalID), ""))
	if nationalID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "national id is required")
	}
	if s.mobility == nil {
		return []models.MobilityRecord{}, nil
	}
	records, err := s.mobility.ListByStudent(ctx, nationalID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mobility history")
	}
	if records == nil {
		records = []models.MobilityRecord{}
	}
	return records, nil
}

// Export renders the full class list of a section in the requested format.
func (s *RosterService) Export(ctx context.Context, sectionID, format, academicYear string) (*RosterFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	section, err := s.section(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	var students []models.Student
	for page := 1; ; page++ {
		batch, total, err := s.students.List(ctx, models.StudentFilter{
			SectionID:    section.ID,
			AcademicYear: academicYear,
			Page:         page,
			PageSize:     exportPageSize,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
		}
		students = append(students, batch...)
		if len(batch) < exportPageSize || len(students) >= total {
			break
		}
	}

	data, err := renderer.Render(s.dataset(section, students, academicYear))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render class list")
	}
	s.logger.Info("class list exported",
		zap.String("section_id", section.ID),
		zap.String("format", format),
		zap.Int("students", len(students)),
	)
	return &RosterFile{
		Filename:    rosterFilename(section, format),
		ContentType: contentTypes[format],
		Data:        data,
	}, nil
}

var contentTypes = map[string]string{
	FormatCSV:  "text/csv; charset=utf-8",
	FormatPDF:  "application/pdf",
	FormatXLSX: XLSXContentType,
}

var rosterHeaders = []string{"#", "National ID", "Last name", "First name", "Gender", "Date of birth", "Place of birth", "Status"}

func (s *RosterService) dataset(section *models.SectionDetail, students []models.Student, academicYear string) export.Dataset {
	subtitle := []string{fmt.Sprintf("%s / %s", section.LevelName, section.Name)}
	if academicYear != "" {
		subtitle = append(subtitle, academicYear)
	}
	rows := make([]map[string]string, len(students))
	for i, st := range students {
		rows[i] = map[string]string{
			"#":              fmt.Sprint(i + 1),
			"National ID":    st.NationalID,
			"Last name":      st.LastName,
			"First name":     st.FirstName,
			"Gender":         string(st.Gender),
			"Date of birth":  st.DateOfBirth,
			"Place of birth": st.BirthPlace,
			"Status":         string(st.Status),
		}
	}
	return export.Dataset{Title: s.cfg.Title, Subtitle: subtitle, Headers: rosterHeaders, Rows: rows}
}

func (s *RosterService) section(ctx context.Context, id string) (*models.SectionDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "section id is required")
	}
	section, err := s.sections.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

func rosterFilename(section *models.SectionDetail, format string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		case r == ' ' || r == '_':
			return '_'
		default:
			return -1
		}
	}, section.Code)
	if name == "" {
		name = section.ID
	}
	return fmt.Sprintf("class_list_%s.%s", name, format)
}
