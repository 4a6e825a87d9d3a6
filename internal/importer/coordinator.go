package importer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/pkg/spreadsheet"
)

// Source is one uploaded file.
type Source struct {
	Name string
	Data []byte
}

// RunRequest describes one import run.
type RunRequest struct {
	Variant Variant
	Sources []Source
	// AcademicYear is used for sheets whose G7 cell is empty.
	AcademicYear string
	// DryRun stops after discovery and performs no writes.
	DryRun     bool
	OnProgress ProgressFunc
}

// Observer receives run telemetry. Implementations must be cheap.
type Observer interface {
	ObserveImportRow(variant, outcome string)
	ObserveImportRun(variant string, state models.ImportState, duration time.Duration)
}

// YieldFunc hands control back to the host between row batches. Returning an error
// (typically ctx.Err()) stops the run.
type YieldFunc func(ctx context.Context) error

func defaultYield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLevelCatalog replaces the level code lookup table.
func WithLevelCatalog(catalog LevelCatalog) Option {
	return func(c *Coordinator) {
		if catalog != nil {
			c.levels = catalog
		}
	}
}

// WithClock overrides time.Now, used for age groups and timing.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBatching sets how many rows are processed between yields and between progress notifications.
func WithBatching(yieldEvery, progressEvery int) Option {
	return func(c *Coordinator) {
		if yieldEvery > 0 {
			c.yieldEvery = yieldEvery
		}
		if progressEvery > 0 {
			c.progressEvery = progressEvery
		}
	}
}

// WithYield replaces the cooperative yield hook.
func WithYield(fn YieldFunc) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.yield = fn
		}
	}
}

// WithObserver attaches run telemetry.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// Coordinator drives import runs. It is stateless between runs and safe to reuse,
// but runs against the same store must not overlap.
type Coordinator struct {
	stores        Stores
	resolver      *Resolver
	entities      *Orchestrator
	levels        LevelCatalog
	logger        *zap.Logger
	now           func() time.Time
	yield         YieldFunc
	yieldEvery    int
	progressEvery int
	observer      Observer
}

// NewCoordinator constructs a Coordinator over the given stores.
func NewCoordinator(stores Stores, opts ...Option) *Coordinator {
	c := &Coordinator{
		stores:        stores,
		resolver:      NewResolver(stores.Students),
		entities:      NewOrchestrator(stores.Levels, stores.Sections),
		levels:        DefaultLevelCatalog,
		logger:        zap.NewNop(),
		now:           time.Now,
		yield:         defaultYield,
		yieldEvery:    50,
		progressEvery: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type loadedSheet struct {
	file  string
	sheet spreadsheet.Sheet
	meta  Metadata
}

func (ls loadedSheet) section(row RawRow) string {
	if ls.meta.Section != "" {
		return ls.meta.Section
	}
	return row.Get(FieldSection)
}

type run struct {
	*Coordinator
	req        RunRequest
	state      *RunState
	result     *models.ImportResult
	log        *auditLog
	progress   *progressReporter
	sheets     []loadedSheet
	sinceYield int
}

// Run executes one import and returns its result. Row and file level problems are
// recorded in the result; only unrecoverable failures end the run in FAILED.
func (c *Coordinator) Run(ctx context.Context, req RunRequest) (result *models.ImportResult) {
	r := &run{
		Coordinator: c,
		req:         req,
		state:       NewRunState(),
		result: &models.ImportResult{
			Variant:          req.Variant.Name,
			State:            models.ImportStateIdle,
			DryRun:           req.DryRun,
			Log:              []models.LogEntry{},
			ValidationErrors: []models.ValidationError{},
			StartedAt:        c.now().UTC(),
		},
		progress: newProgressReporter(req.OnProgress, c.progressEvery, c.now),
	}
	r.log = &auditLog{result: r.result, logger: c.logger.With(zap.String("variant", req.Variant.Name))}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("import panicked", zap.String("variant", req.Variant.Name), zap.Any("panic", p))
			r.fail(errUnexpected)
		}
		r.finish()
		result = r.result
	}()

	if err := r.execute(ctx); err != nil {
		r.fail(err)
	}
	return r.result
}

var errUnexpected = errors.New("unexpected internal error")

func (r *run) execute(ctx context.Context) error {
	if err := r.req.Variant.Validate(); err != nil {
		return err
	}
	if r.req.Variant.Kind == KindMobility && r.stores.Mobility == nil {
		return fmt.Errorf("variant %s needs a mobility store", r.req.Variant.Name)
	}

	r.transition(models.ImportStateDiscovering)
	r.progress.stage("Reading files", &r.result.Counts)
	if err := r.discover(ctx); err != nil {
		return err
	}
	if r.req.DryRun {
		r.log.infof("dry run: %d candidate rows, %d levels, %d sections; nothing was written",
			r.result.Counts.Total, len(r.result.Levels), len(r.result.Sections))
		r.transition(models.ImportStateDone)
		return nil
	}

	r.transition(models.ImportStateCreatingEntities)
	r.progress.stage("Creating levels and sections", &r.result.Counts)
	if err := r.createEntities(ctx); err != nil {
		return err
	}

	r.transition(models.ImportStateProcessingRows)
	r.progress.stage(fmt.Sprintf("Processing %d rows", r.result.Counts.Total), &r.result.Counts)
	if err := r.processRows(ctx); err != nil {
		return err
	}

	r.transition(models.ImportStateDone)
	return nil
}

func (r *run) transition(to models.ImportState) {
	r.logger.Debug("import state", zap.String("from", string(r.result.State)), zap.String("to", string(to)))
	r.result.State = to
}

func (r *run) fail(err error) {
	if r.result.State == models.ImportStateFailed {
		return
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.log.errorf("import cancelled after %d of %d rows: %v", r.result.Counts.Processed, r.result.Counts.Total, err)
	default:
		r.log.errorf("import failed: %v", err)
	}
	r.transition(models.ImportStateFailed)
}

func (r *run) finish() {
	r.result.FinishedAt = r.now().UTC()
	c := r.result.Counts
	summary := fmt.Sprintf("%d created, %d updated, %d duplicates, %d errors", c.Created, c.Updated, c.Duplicates, c.Errors)
	if r.req.Variant.Kind == KindMobility {
		summary += fmt.Sprintf("; %d %s records created, %d updated", c.MobilityCreated, r.req.Variant.MobilityType, c.MobilityUpdated)
	}
	if r.result.DryRun && !r.result.Failed() {
		summary = fmt.Sprintf("Preview ready: %d rows", c.Total)
	}
	r.progress.finish(r.result.Failed(), summary, &r.result.Counts)
	if r.observer != nil {
		r.observer.ObserveImportRun(r.req.Variant.Name, r.result.State, r.result.FinishedAt.Sub(r.result.StartedAt))
	}
	r.logger.Info("import finished",
		zap.String("variant", r.req.Variant.Name),
		zap.String("state", string(r.result.State)),
		zap.Int("created", c.Created),
		zap.Int("updated", c.Updated),
		zap.Int("duplicates", c.Duplicates),
		zap.Int("errors", c.Errors),
	)
}

// discover opens every file and counts candidate rows without writing anything.
// Structural row errors are reported here, once.
func (r *run) discover(ctx context.Context) error {
	if len(r.req.Sources) == 0 {
		return fmt.Errorf("no files to import")
	}
	opened := 0
	for _, src := range r.req.Sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		wb, err := spreadsheet.Open(src.Name, src.Data)
		if err != nil {
			r.result.Counts.Errors++
			r.log.errorf("%s: file skipped, it cannot be read as a spreadsheet: %v", src.Name, err)
			continue
		}
		opened++
		for _, sheet := range wb.Sheets {
			r.discoverSheet(src.Name, sheet)
		}
	}
	if opened == 0 {
		return fmt.Errorf("none of the %d file(s) could be read", len(r.req.Sources))
	}

	for _, l := range r.state.discoveredLevels {
		r.result.Levels = append(r.result.Levels, l.Name)
	}
	for _, s := range r.state.discoveredSections {
		r.result.Sections = append(r.result.Sections, models.DiscoveredSection{Name: s.Name, Level: s.LevelName})
	}
	r.log.infof("found %d candidate rows in %d sheet(s), %d level(s), %d section(s)",
		r.result.Counts.Total, len(r.sheets), len(r.result.Levels), len(r.result.Sections))
	return nil
}

func (r *run) discoverSheet(file string, sheet spreadsheet.Sheet) {
	v := r.req.Variant
	meta := ReadMetadata(sheet, v.Metadata, r.levels)
	if meta.AcademicYear == "" {
		meta.AcademicYear = NormalizeAcademicYear(r.req.AcademicYear)
	}
	ls := loadedSheet{file: file, sheet: sheet, meta: meta}

	scanner, err := NewScanner(sheet, v.StartRow, v.Columns)
	if err != nil {
		r.log.errorf("%s/%s: %v", file, sheet.Name(), err)
		return
	}
	candidates := 0
	for scanner.Next() {
		row := scanner.Row()
		if row.Err != nil {
			verr := *row.Err
			verr.File, verr.Sheet = file, sheet.Name()
			r.result.ValidationErrors = append(r.result.ValidationErrors, verr)
			r.result.Counts.Errors++
			r.log.errorf("%s/%s row %d: %s", file, sheet.Name(), verr.Row, verr.Message)
			r.observe("invalid")
			continue
		}
		candidates++
		if meta.Level == "" {
			continue
		}
		r.state.discoverLevel(meta.Level, meta.LevelCode)
		r.state.discoverSection(ls.section(row), meta.Level, meta.LevelCode)
	}
	if candidates == 0 {
		return
	}
	if meta.Level == "" {
		r.log.warnf("%s/%s: no level code in %s, students will not be linked to a level", file, sheet.Name(), v.Metadata.LevelCode)
	}
	if meta.AcademicYear != "" && !ValidAcademicYear(meta.AcademicYear) {
		r.log.warnf("%s/%s: academic year %q is not in YYYY/YYYY form", file, sheet.Name(), meta.AcademicYear)
	}
	r.sheets = append(r.sheets, ls)
	r.result.Counts.Total += candidates
}

// createEntities resolves every discovered level, then every discovered section.
func (r *run) createEntities(ctx context.Context) error {
	if r.stores.Health != nil {
		if err := r.stores.Health.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	for _, l := range r.state.discoveredLevels {
		level, created, err := r.entities.GetOrCreateLevel(ctx, r.state, l.Name, l.Code)
		if err != nil {
			if isFatal(err) {
				return err
			}
			r.result.Counts.Errors++
			r.log.errorf("level %q: %v", l.Name, err)
			continue
		}
		if created {
			r.log.infof("level %q created", level.Name)
		}
	}
	for _, s := range r.state.discoveredSections {
		levelID := ""
		if level, ok := r.state.Level(s.LevelName); ok {
			levelID = level.ID
		}
		section, created, err := r.entities.GetOrCreateSection(ctx, r.state, s.Name, levelID, s.LevelCode)
		if err != nil {
			if isFatal(err) {
				return err
			}
			r.result.Counts.Errors++
			r.log.errorf("section %q of level %q skipped: %v", s.Name, s.LevelName, err)
			continue
		}
		if created {
			r.log.infof("section %q created under level %q", section.Name, s.LevelName)
		}
	}
	return nil
}

// processRows re-scans every sheet and reconciles each candidate row.
func (r *run) processRows(ctx context.Context) error {
	v := r.req.Variant
	for _, ls := range r.sheets {
		scanner, err := NewScanner(ls.sheet, v.StartRow, v.Columns)
		if err != nil {
			return err
		}
		for scanner.Next() {
			row := scanner.Row()
			if row.Err != nil {
				continue
			}
			outcome, err := r.processRow(ctx, ls, row)
			r.result.Counts.Processed++
			if err != nil {
				if isFatal(err) {
					return err
				}
				r.result.Counts.Errors++
				r.log.errorf("%s/%s row %d: %v", ls.file, ls.sheet.Name(), row.Number, err)
				outcome = "error"
			}
			r.observe(outcome)
			r.progress.row(&r.result.Counts)
			if err := r.maybeYield(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) maybeYield(ctx context.Context) error {
	r.sinceYield++
	if r.sinceYield < r.yieldEvery {
		return nil
	}
	r.sinceYield = 0
	return r.yield(ctx)
}

func (r *run) observe(outcome string) {
	if r.observer != nil && outcome != "" {
		r.observer.ObserveImportRow(r.req.Variant.Name, outcome)
	}
}

func (r *run) processRow(ctx context.Context, ls loadedSheet, row RawRow) (outcome string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unexpected failure: %v", p)
		}
	}()

	at := rowRef{File: ls.file, Sheet: ls.sheet.Name(), Row: row.Number}
	nationalID := NormalizeNationalID(row.Get(FieldNationalID))
	v := r.req.Variant
	if v.Kind == KindMobility && ls.meta.AcademicYear == "" {
		return "", fmt.Errorf("academic year missing, %s record not saved", v.MobilityType)
	}

	res, err := r.resolver.Resolve(ctx, nationalID, r.state, at)
	if err != nil {
		return "", err
	}
	if res.Action == ActionSkipDuplicate {
		r.result.Counts.Duplicates++
		r.log.warnf("%s: duplicate national id %s skipped, first seen at %s", at, nationalID, res.FirstSeen)
		return "duplicate", nil
	}

	incoming := r.buildStudent(ls, row, nationalID, at)
	if v.Kind == KindMobility {
		// The status follows the mobility record and is applied once it is stored.
		incoming.Status = ""
	}
	var student *models.Student
	switch res.Action {
	case ActionInsert:
		if incoming.Gender == "" {
			incoming.Gender = NormalizeGender("")
		}
		if incoming.Status == "" {
			incoming.Status = models.StudentStatusEnrolled
		}
		if err := r.stores.Students.Create(ctx, incoming); err != nil {
			return "", fmt.Errorf("create student %s: %w", nationalID, err)
		}
		student, outcome = incoming, "created"
	case ActionUpdate:
		merged := MergeStudent(res.Existing, incoming, r.ageGroup)
		if err := r.stores.Students.Update(ctx, merged); err != nil {
			return "", fmt.Errorf("update student %s: %w", nationalID, err)
		}
		student, outcome = merged, "updated"
	}

	if v.Kind == KindMobility {
		if err := r.upsertMobility(ctx, ls, row, student, at); err != nil {
			return "", err
		}
		if v.StatusOnImport != "" && student.Status != v.StatusOnImport {
			student.Status = v.StatusOnImport
			if err := r.stores.Students.Update(ctx, student); err != nil {
				return "", fmt.Errorf("set status of student %s: %w", nationalID, err)
			}
		}
	}
	if outcome == "created" {
		r.result.Counts.Created++
	} else {
		r.result.Counts.Updated++
	}
	return outcome, nil
}

func (r *run) ageGroup(dob string) string {
	return AgeGroup(dob, r.now())
}

func (r *run) buildStudent(ls loadedSheet, row RawRow, nationalID string, at rowRef) *models.Student {
	student := &models.Student{
		NationalID:   nationalID,
		LastName:     row.Get(FieldLastName),
		FirstName:    row.Get(FieldFirstName),
		BirthPlace:   row.Get(FieldBirthPlace),
		Level:        ls.meta.Level,
		Section:      ls.section(row),
		AcademicYear: ls.meta.AcademicYear,
		Status:       r.req.Variant.StatusOnImport,
	}

	if raw := row.Get(FieldGender); raw != "" {
		gender, ok := ParseGender(raw)
		if !ok {
			r.log.warnf("%s: unrecognised gender %q, recorded as %s", at, raw, gender)
		}
		student.Gender = gender
	}

	if raw := row.Get(FieldDateOfBirth); raw != "" {
		student.DateOfBirth = NormalizeDate(raw)
		if student.DateOfBirth == "" {
			r.log.warnf("%s: unreadable birth date %q ignored", at, raw)
		}
	}
	student.AgeGroup = r.ageGroup(student.DateOfBirth)

	if level, ok := r.state.Level(ls.meta.Level); ok {
		id := level.ID
		student.LevelID = &id
		if section, ok := r.state.Section(student.Section, level.ID); ok {
			sid := section.ID
			student.SectionID = &sid
		}
	}
	return student
}

func (r *run) upsertMobility(ctx context.Context, ls loadedSheet, row RawRow, student *models.Student, at rowRef) error {
	v := r.req.Variant
	year := ls.meta.AcademicYear

	record := &models.MobilityRecord{
		StudentID:   student.NationalID,
		Type:        v.MobilityType,
		Reason:      firstNonEmpty(row.Get(FieldReason), row.Get(FieldDecision)),
		Institution: row.Get(FieldInstitution),
		Metadata: models.MobilityMetadata{
			AcademicYear: year,
			Gender:       student.Gender,
			Level:        student.Level,
			Section:      student.Section,
			FullName:     student.FullName(),
			SourceFile:   ls.file,
		},
	}
	if raw := row.Get(FieldEventDate); raw != "" {
		record.EventDate = NormalizeDate(raw)
		if record.EventDate == "" {
			r.log.warnf("%s: unreadable date %q ignored", at, raw)
		}
	}
	if raw := row.Get(FieldScore); raw != "" {
		record.Score = NormalizeScore(raw)
		if !record.Score.Valid {
			r.log.warnf("%s: unreadable score %q recorded as no score", at, raw)
		}
	}

	existing, err := r.stores.Mobility.FindByStudentTypeYear(ctx, student.NationalID, v.MobilityType, year)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("look up %s record: %w", v.MobilityType, err)
	}
	if existing != nil && err == nil {
		merged := mergeMobility(existing, record)
		if err := r.stores.Mobility.Update(ctx, merged); err != nil {
			return fmt.Errorf("update %s record: %w", v.MobilityType, err)
		}
		r.result.Counts.MobilityUpdated++
		return nil
	}
	if err := r.stores.Mobility.Create(ctx, record); err != nil {
		return fmt.Errorf("create %s record: %w", v.MobilityType, err)
	}
	r.result.Counts.MobilityCreated++
	return nil
}

func mergeMobility(existing, incoming *models.MobilityRecord) *models.MobilityRecord {
	merged := *existing
	if incoming.EventDate != "" {
		merged.EventDate = incoming.EventDate
	}
	if incoming.Reason != "" {
		merged.Reason = incoming.Reason
	}
	if incoming.Institution != "" {
		merged.Institution = incoming.Institution
	}
	if incoming.Score.Valid {
		merged.Score = incoming.Score
	}
	merged.Metadata = incoming.Metadata
	return &merged
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
