package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/pkg/spreadsheet"
)

type memoryStore struct {
	mu       sync.Mutex
	seq      int
	students map[string]*models.Student
	levels   map[string]*models.Level
	sections map[string]*models.Section
	mobility map[string]*models.MobilityRecord

	studentLookups int
	levelCreates   int
	sectionCreates int
	findErr        map[string]error
	pingErr        error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		students: map[string]*models.Student{},
		levels:   map[string]*models.Level{},
		sections: map[string]*models.Section{},
		mobility: map[string]*models.MobilityRecord{},
		findErr:  map[string]error{},
	}
}

func (m *memoryStore) stores() Stores {
	return Stores{
		Students: studentFake{m},
		Levels:   levelFake{m},
		Sections: sectionFake{m},
		Mobility: mobilityFake{m},
		Health:   m,
	}
}

func (m *memoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memoryStore) Ping(context.Context) error { return m.pingErr }

type studentFake struct{ m *memoryStore }

func (f studentFake) FindByNationalID(_ context.Context, id string) (*models.Student, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.studentLookups++
	if err, ok := f.m.findErr[id]; ok {
		delete(f.m.findErr, id)
		return nil, err
	}
	s, ok := f.m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *s
	return &clone, nil
}

func (f studentFake) Create(_ context.Context, s *models.Student) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	s.ID = f.m.nextID("student")
	clone := *s
	f.m.students[s.NationalID] = &clone
	return nil
}

func (f studentFake) Update(_ context.Context, s *models.Student) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if _, ok := f.m.students[s.NationalID]; !ok {
		return sql.ErrNoRows
	}
	clone := *s
	f.m.students[s.NationalID] = &clone
	return nil
}

type levelFake struct{ m *memoryStore }

func (f levelFake) FindByName(_ context.Context, name string) (*models.Level, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	l, ok := f.m.levels[strings.ToLower(name)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return l, nil
}

func (f levelFake) Create(_ context.Context, l *models.Level) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.levelCreates++
	l.ID = f.m.nextID("level")
	f.m.levels[strings.ToLower(l.Name)] = l
	return nil
}

type sectionFake struct{ m *memoryStore }

func (f sectionFake) FindByNameAndLevel(_ context.Context, name, levelID string) (*models.Section, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	s, ok := f.m.sections[strings.ToLower(name)+"|"+levelID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (f sectionFake) Create(_ context.Context, s *models.Section) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.sectionCreates++
	s.ID = f.m.nextID("section")
	f.m.sections[strings.ToLower(s.Name)+"|"+s.LevelID] = s
	return nil
}

type mobilityFake struct{ m *memoryStore }

func mobilityKey(studentID string, t models.MobilityType, year string) string {
	return studentID + "|" + string(t) + "|" + year
}

func (f mobilityFake) FindByStudentTypeYear(_ context.Context, studentID string, t models.MobilityType, year string) (*models.MobilityRecord, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	r, ok := f.m.mobility[mobilityKey(studentID, t, year)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *r
	return &clone, nil
}

func (f mobilityFake) Create(_ context.Context, r *models.MobilityRecord) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	r.ID = f.m.nextID("mobility")
	clone := *r
	f.m.mobility[mobilityKey(r.StudentID, r.Type, r.Metadata.AcademicYear)] = &clone
	return nil
}

func (f mobilityFake) Update(_ context.Context, r *models.MobilityRecord) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	clone := *r
	f.m.mobility[mobilityKey(r.StudentID, r.Type, r.Metadata.AcademicYear)] = &clone
	return nil
}

// rosterRows builds a worksheet grid with the standard metadata block and data rows
// starting at row 11. Each data row is given from column B onward.
func rosterRows(levelCode, section, year string, data ...[]string) [][]string {
	rows := make([][]string, DataStartRow-1)
	rows[6] = []string{"", "", levelCode, "", "", "", year}
	rows[7] = []string{"", "", section}
	rows[9] = []string{"", "National ID", "Last name", "First name", "Gender"}
	for _, d := range data {
		rows = append(rows, append([]string{""}, d...))
	}
	return rows
}

func gridSheet(name string, rows [][]string) spreadsheet.Sheet {
	return spreadsheet.NewGridSheet(name, rows)
}
