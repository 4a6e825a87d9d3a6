package importer

import (
	"fmt"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

// rowRef locates a row for log messages.
type rowRef struct {
	File  string
	Sheet string
	Row   int
}

func (r rowRef) String() string {
	return fmt.Sprintf("%s/%s row %d", r.File, r.Sheet, r.Row)
}

type sectionKey struct {
	name    string
	levelID string
}

type discoveredLevel struct {
	Name string
	Code string
}

type discoveredSection struct {
	Name      string
	LevelName string
	LevelCode string
}

// RunState holds everything a single run learns. It is created by the Coordinator
// for each run and handed to the Resolver and Orchestrator; it is never shared
// between runs.
type RunState struct {
	seen     map[string]rowRef
	levels   map[string]*models.Level
	levelIDs map[string]struct{}
	sections map[sectionKey]*models.Section

	discoveredLevels   []discoveredLevel
	levelIndex         map[string]int
	discoveredSections []discoveredSection
	sectionIndex       map[[2]string]struct{}
}

// NewRunState returns empty run-scoped caches.
func NewRunState() *RunState {
	return &RunState{
		seen:         make(map[string]rowRef),
		levels:       make(map[string]*models.Level),
		levelIDs:     make(map[string]struct{}),
		sections:     make(map[sectionKey]*models.Section),
		levelIndex:   make(map[string]int),
		sectionIndex: make(map[[2]string]struct{}),
	}
}

// markSeen records the first location of a national id and reports the earlier
// location when the id was already seen.
func (s *RunState) markSeen(key string, at rowRef) (rowRef, bool) {
	if first, ok := s.seen[key]; ok {
		return first, true
	}
	s.seen[key] = at
	return rowRef{}, false
}

// forget drops a key whose resolution failed so a later row can retry it.
func (s *RunState) forget(key string) {
	delete(s.seen, key)
}

// Seen reports whether key was already encountered in this run.
func (s *RunState) Seen(key string) bool {
	_, ok := s.seen[key]
	return ok
}

func (s *RunState) rememberLevel(level *models.Level) {
	s.levels[normalizeName(level.Name)] = level
	s.levelIDs[level.ID] = struct{}{}
}

// Level returns the level resolved for name in this run.
func (s *RunState) Level(name string) (*models.Level, bool) {
	l, ok := s.levels[normalizeName(name)]
	return l, ok
}

func (s *RunState) levelResolved(id string) bool {
	_, ok := s.levelIDs[id]
	return ok
}

func (s *RunState) rememberSection(section *models.Section) {
	s.sections[sectionKey{name: normalizeName(section.Name), levelID: section.LevelID}] = section
}

// Section returns the section resolved for (name, levelID) in this run.
func (s *RunState) Section(name, levelID string) (*models.Section, bool) {
	sec, ok := s.sections[sectionKey{name: normalizeName(name), levelID: levelID}]
	return sec, ok
}

func (s *RunState) discoverLevel(name, code string) {
	if name == "" {
		return
	}
	key := normalizeName(name)
	if _, ok := s.levelIndex[key]; ok {
		return
	}
	s.levelIndex[key] = len(s.discoveredLevels)
	s.discoveredLevels = append(s.discoveredLevels, discoveredLevel{Name: name, Code: code})
}

func (s *RunState) discoverSection(name, levelName, levelCode string) {
	if name == "" {
		return
	}
	key := [2]string{normalizeName(name), normalizeName(levelName)}
	if _, ok := s.sectionIndex[key]; ok {
		return
	}
	s.sectionIndex[key] = struct{}{}
	s.discoveredSections = append(s.discoveredSections, discoveredSection{Name: name, LevelName: levelName, LevelCode: levelCode})
}
