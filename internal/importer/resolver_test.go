package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

func TestResolverInsertUpdateDuplicate(t *testing.T) {
	store := newMemoryStore()
	store.students["A2"] = &models.Student{ID: "s-2", NationalID: "A2", LastName: "Bennani"}
	resolver := NewResolver(studentFake{store})
	state := NewRunState()
	ctx := context.Background()

	res, err := resolver.Resolve(ctx, "A1", state, rowRef{File: "f.xlsx", Sheet: "S", Row: 11})
	require.NoError(t, err)
	assert.Equal(t, ActionInsert, res.Action)

	res, err = resolver.Resolve(ctx, "A2", state, rowRef{File: "f.xlsx", Sheet: "S", Row: 12})
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, res.Action)
	require.NotNil(t, res.Existing)
	assert.Equal(t, "s-2", res.Existing.ID)

	res, err = resolver.Resolve(ctx, "A1", state, rowRef{File: "g.xlsx", Sheet: "S", Row: 30})
	require.NoError(t, err)
	assert.Equal(t, ActionSkipDuplicate, res.Action)
	assert.Equal(t, "f.xlsx/S row 11", res.FirstSeen)
	assert.Equal(t, 2, store.studentLookups)
}

func TestResolverForgetsKeyOnLookupFailure(t *testing.T) {
	store := newMemoryStore()
	store.findErr["A1"] = errors.New("timeout")
	resolver := NewResolver(studentFake{store})
	state := NewRunState()

	_, err := resolver.Resolve(context.Background(), "A1", state, rowRef{Row: 11})
	require.Error(t, err)
	assert.False(t, state.Seen("A1"))

	res, err := resolver.Resolve(context.Background(), "A1", state, rowRef{Row: 12})
	require.NoError(t, err)
	assert.Equal(t, ActionInsert, res.Action)
}

func TestMergeStudentKeepsStoredValuesForBlankCells(t *testing.T) {
	levelID := "level-1"
	existing := &models.Student{
		ID: "s-1", NationalID: "A1", LastName: "Alaoui", FirstName: "Sara",
		Gender: models.GenderFemale, DateOfBirth: "2010-03-15", BirthPlace: "Rabat",
		Status: models.StudentStatusEnrolled, LevelID: &levelID,
	}
	incoming := &models.Student{NationalID: "A1", FirstName: "Sarah", DateOfBirth: "2012-01-01"}
	today := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	merged := MergeStudent(existing, incoming, func(dob string) string { return AgeGroup(dob, today) })
	assert.Equal(t, "s-1", merged.ID)
	assert.Equal(t, "Alaoui", merged.LastName)
	assert.Equal(t, "Sarah", merged.FirstName)
	assert.Equal(t, "Rabat", merged.BirthPlace)
	assert.Equal(t, models.GenderFemale, merged.Gender)
	assert.Equal(t, models.StudentStatusEnrolled, merged.Status)
	assert.Equal(t, "2012-01-01", merged.DateOfBirth)
	assert.Equal(t, AgeGroup12to14, merged.AgeGroup)
	assert.Equal(t, &levelID, merged.LevelID)
	assert.Equal(t, "Sara", existing.FirstName)
}

func TestOrchestratorLevelsAreIdempotent(t *testing.T) {
	store := newMemoryStore()
	orch := NewOrchestrator(levelFake{store}, sectionFake{store})
	state := NewRunState()
	ctx := context.Background()

	first, created, err := orch.GetOrCreateLevel(ctx, state, "Tronc Commun", "tc")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "TC", first.Code)

	again, created, err := orch.GetOrCreateLevel(ctx, state, " tronc  commun ", "TC")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, store.levelCreates)

	fresh := NewRunState()
	found, created, err := orch.GetOrCreateLevel(ctx, fresh, "Tronc Commun", "TC")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, 1, store.levelCreates)

	_, _, err = orch.GetOrCreateLevel(ctx, state, "  ", "")
	assert.Error(t, err)
}

func TestOrchestratorSectionNeedsResolvedLevel(t *testing.T) {
	store := newMemoryStore()
	orch := NewOrchestrator(levelFake{store}, sectionFake{store})
	state := NewRunState()
	ctx := context.Background()

	_, _, err := orch.GetOrCreateSection(ctx, state, "Sciences", "level-99", "TC")
	assert.True(t, errors.Is(err, ErrUnresolvedLevel))

	level, _, err := orch.GetOrCreateLevel(ctx, state, "Tronc Commun", "TC")
	require.NoError(t, err)

	section, created, err := orch.GetOrCreateSection(ctx, state, "Sciences Maths", level.ID, "TC")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "TC-SCIENCESMATHS", section.Code)
	assert.Equal(t, level.ID, section.LevelID)

	again, created, err := orch.GetOrCreateSection(ctx, state, "sciences maths", level.ID, "TC")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, section.ID, again.ID)
	assert.Equal(t, 1, store.sectionCreates)
}

func TestProgressReporterCoalescesAndNeverRegresses(t *testing.T) {
	var got []models.ImportProgress
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	p := newProgressReporter(func(ev models.ImportProgress) { got = append(got, ev) }, 2, clock)

	counts := &models.ImportCounts{Total: 4}
	p.stage("start", counts)
	for i := 1; i <= 4; i++ {
		now = now.Add(time.Second)
		counts.Processed = i
		p.row(counts)
	}
	p.finish(false, "done", counts)

	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].Percent)
	assert.Equal(t, 50, got[1].Percent)
	require.NotNil(t, got[1].Remaining)
	assert.Equal(t, 2*time.Second, *got[1].Remaining)
	assert.Equal(t, 2, got[1].Detail.Processed)
	assert.Equal(t, 100, got[2].Percent)
	assert.Equal(t, models.ImportJobSuccess, got[2].Status)

	counts.Processed = 99
	assert.Equal(t, 4, got[2].Detail.Processed)
}

func TestProgressReporterNilCallback(t *testing.T) {
	p := newProgressReporter(nil, 0, time.Now)
	p.stage("x", nil)
	p.row(&models.ImportCounts{Total: 1, Processed: 1})
	p.finish(true, "failed", nil)
}
