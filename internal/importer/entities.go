package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

// Orchestrator ensures levels and sections exist before students reference them.
type Orchestrator struct {
	levels   LevelStore
	sections SectionStore
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(levels LevelStore, sections SectionStore) *Orchestrator {
	return &Orchestrator{levels: levels, sections: sections}
}

// GetOrCreateLevel returns the level named name, creating it on first reference.
// Repeated calls within a run return the same level without touching the store.
func (o *Orchestrator) GetOrCreateLevel(ctx context.Context, state *RunState, name, code string) (*models.Level, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("level name is required")
	}
	if level, ok := state.Level(name); ok {
		return level, false, nil
	}
	level, err := o.levels.FindByName(ctx, name)
	if err != nil && !isNotFound(err) {
		return nil, false, fmt.Errorf("find level %q: %w", name, err)
	}
	created := false
	if level == nil || err != nil {
		level = &models.Level{Name: name, Code: strings.ToUpper(strings.TrimSpace(code))}
		if err := o.levels.Create(ctx, level); err != nil {
			return nil, false, fmt.Errorf("create level %q: %w", name, err)
		}
		created = true
	}
	state.rememberLevel(level)
	return level, created, nil
}

// GetOrCreateSection returns the section (name, levelID), creating it on first
// reference. levelID must belong to a level resolved earlier in the same run.
func (o *Orchestrator) GetOrCreateSection(ctx context.Context, state *RunState, name, levelID, code string) (*models.Section, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("section name is required")
	}
	if levelID == "" || !state.levelResolved(levelID) {
		return nil, false, fmt.Errorf("section %q: %w", name, ErrUnresolvedLevel)
	}
	if section, ok := state.Section(name, levelID); ok {
		return section, false, nil
	}
	section, err := o.sections.FindByNameAndLevel(ctx, name, levelID)
	if err != nil && !isNotFound(err) {
		return nil, false, fmt.Errorf("find section %q: %w", name, err)
	}
	created := false
	if section == nil || err != nil {
		section = &models.Section{Name: name, LevelID: levelID, Code: sectionCode(code, name)}
		if err := o.sections.Create(ctx, section); err != nil {
			return nil, false, fmt.Errorf("create section %q: %w", name, err)
		}
		created = true
	}
	state.rememberSection(section)
	return section, created, nil
}

func sectionCode(levelCode, name string) string {
	compact := strings.ToUpper(strings.Join(strings.Fields(name), ""))
	if levelCode == "" {
		return compact
	}
	return strings.ToUpper(strings.TrimSpace(levelCode)) + "-" + compact
}
