package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

type rosterStudentStub struct {
	students []models.Student
	calls    []models.StudentFilter
}

func (s *rosterStudentStub) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	s.calls = append(s.calls, filter)
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(s.students) {
		return nil, len(s.students), nil
	}
	end := start + filter.PageSize
	if end > len(s.students) {
		end = len(s.students)
	}
	return s.students[start:end], len(s.students), nil
}

type rosterSectionStub struct {
	sections map[string]*models.SectionDetail
	err      error
}

func (s *rosterSectionStub) FindByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	section, ok := s.sections[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return section, nil
}

type rosterCacheStub struct {
	pages map[string]RosterPage
	sets  int
}

func (c *rosterCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	page, ok := c.pages[key]
	if !ok {
		return false, nil
	}
	*dest.(*RosterPage) = page
	return true, nil
}

func (c *rosterCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.pages[key] = *value.(*RosterPage)
	c.sets++
	return nil
}

func newRosterFixture(n int) (*RosterService, *rosterStudentStub, *rosterCacheStub) {
	students := &rosterStudentStub{}
	for i := 0; i < n; i++ {
		students.students = append(students.students, models.Student{
			NationalID: fmt.Sprintf("J%04d", i),
			LastName:   fmt.Sprintf("Last%04d", i),
			FirstName:  "Nadia",
			Gender:     models.GenderFemale,
			Status:     models.StudentStatusEnrolled,
		})
	}
	sections := &rosterSectionStub{sections: map[string]*models.SectionDetail{
		"sec-1": {Section: models.Section{ID: "sec-1", Name: "Sciences 1", Code: "TC-SCIENCES 1"}, LevelName: "Tronc Commun"},
	}}
	c := &rosterCacheStub{pages: map[string]RosterPage{}}
	svc := NewRosterService(RosterStores{Students: students, Sections: sections}, c, nil, RosterServiceConfig{Title: "Liste des élèves"})
	return svc, students, c
}

func TestRosterServiceListCachesPages(t *testing.T) {
	svc, students, c := newRosterFixture(3)
	ctx := context.Background()

	page, err := svc.List(ctx, "sec-1", "2025/2026", 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Students, 3)
	assert.Equal(t, 3, page.Pagination.TotalCount)
	assert.Equal(t, "Tronc Commun", page.Section.LevelName)
	require.Len(t, students.calls, 1)
	assert.Equal(t, "2025/2026", students.calls[0].AcademicYear)
	assert.Equal(t, 1, c.sets)

	_, err = svc.List(ctx, "sec-1", "2025/2026", 1, 50)
	require.NoError(t, err)
	assert.Len(t, students.calls, 1)
}

func TestRosterServiceUnknownSection(t *testing.T) {
	svc, _, _ := newRosterFixture(0)
	_, err := svc.List(context.Background(), "missing", "", 1, 10)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Export(context.Background(), " ", "csv", "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRosterServiceExportCSVWalksAllPages(t *testing.T) {
	svc, students, _ := newRosterFixture(exportPageSize + 20)

	file, err := svc.Export(context.Background(), "sec-1", "CSV", "2025/2026")
	require.NoError(t, err)
	assert.Equal(t, "class_list_TC-SCIENCES_1.csv", file.Filename)
	assert.True(t, strings.HasPrefix(file.ContentType, "text/csv"))
	assert.Len(t, students.calls, 2)

	lines := strings.Split(strings.TrimSpace(string(bytes.TrimPrefix(file.Data, []byte{0xEF, 0xBB, 0xBF}))), "\n")
	require.Len(t, lines, exportPageSize+21)
	assert.True(t, strings.HasPrefix(lines[0], "#,National ID,Last name"))
	assert.True(t, strings.HasPrefix(lines[1], "1,J0000,Last0000"))
}

func TestRosterServiceExportPDFAndXLSX(t *testing.T) {
	svc, _, _ := newRosterFixture(5)

	file, err := svc.Export(context.Background(), "sec-1", "pdf", "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))

	file, err = svc.Export(context.Background(), "sec-1", "xlsx", "")
	require.NoError(t, err)
	assert.Equal(t, XLSXContentType, file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("PK")))

	_, err = svc.Export(context.Background(), "sec-1", "docx", "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

type levelListStub struct{ levels []models.Level }

func (l levelListStub) List(ctx context.Context) ([]models.Level, error) { return l.levels, nil }

type mobilityHistoryStub struct{ asked string }

func (m *mobilityHistoryStub) ListByStudent(ctx context.Context, studentID string) ([]models.MobilityRecord, error) {
	m.asked = studentID
	return []models.MobilityRecord{{StudentID: studentID, Type: models.MobilityDropout}}, nil
}

func TestRosterServiceLevelsAndMobility(t *testing.T) {
	history := &mobilityHistoryStub{}
	svc := NewRosterService(RosterStores{
		Students: &rosterStudentStub{},
		Sections: &rosterSectionStub{},
		Levels:   levelListStub{levels: []models.Level{{ID: "l-1", Name: "Tronc Commun"}}},
		Mobility: history,
	}, nil, nil, RosterServiceConfig{})
	ctx := context.Background()

	levels, err := svc.Levels(ctx)
	require.NoError(t, err)
	require.Len(t, levels, 1)

	records, err := svc.Mobility(ctx, " j130 045 ")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "J130045", history.asked)

	_, err = svc.Mobility(ctx, "  ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
