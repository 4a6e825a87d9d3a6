package service

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/importer"
	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/pkg/cache"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/jobs"
)

type runnerStub struct {
	mu       sync.Mutex
	requests []importer.RunRequest
	results  []*models.ImportResult
	events   [][]models.ImportProgress
}

func (r *runnerStub) Run(ctx context.Context, req importer.RunRequest) *models.ImportResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if req.OnProgress != nil {
		events := []models.ImportProgress{{Percent: 40, Status: models.ImportJobLoading, Message: "Processing rows"}}
		if len(r.events) > 0 {
			events, r.events = r.events[0], r.events[1:]
		}
		for _, e := range events {
			req.OnProgress(e)
		}
	}
	if len(r.results) == 0 {
		return &models.ImportResult{Variant: req.Variant.Name, State: models.ImportStateDone, DryRun: req.DryRun}
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type uploadStoreStub struct {
	files   map[string][]byte
	deleted []string
}

func newUploadStoreStub() *uploadStoreStub {
	return &uploadStoreStub{files: map[string][]byte{}}
}

func (u *uploadStoreStub) Save(name string, data []byte) (string, error) {
	u.files[name] = data
	return name, nil
}

func (u *uploadStoreStub) Read(name string) ([]byte, error) {
	data, ok := u.files[name]
	if !ok {
		return nil, errors.New("missing upload")
	}
	return data, nil
}

func (u *uploadStoreStub) DeleteDir(dir string) error {
	for name := range u.files {
		if strings.HasPrefix(name, dir+"/") {
			delete(u.files, name)
		}
	}
	u.deleted = append(u.deleted, dir)
	return nil
}

type snapshotCacheStub struct {
	entries     map[string]models.ImportJob
	invalidated []string
	history     []models.ImportProgress
}

func (c *snapshotCacheStub) Invalidate(ctx context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	return nil
}

func (c *snapshotCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	job, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	*dest.(*models.ImportJob) = job
	return true, nil
}

func (c *snapshotCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	job := value.(models.ImportJob)
	c.entries[key] = job
	c.history = append(c.history, job.Progress)
	return nil
}

type activeCounter struct{ n, peak int }

func (a *activeCounter) TrackActiveImport(delta int) {
	a.n += delta
	if a.n > a.peak {
		a.peak = a.n
	}
}

type importFixture struct {
	svc     *ImportService
	runner  *runnerStub
	queue   *dispatcherStub
	uploads *uploadStoreStub
	cache   *snapshotCacheStub
	active  *activeCounter
	now     time.Time
}

func newImportFixture(t *testing.T) *importFixture {
	t.Helper()
	f := &importFixture{
		runner:  &runnerStub{},
		queue:   &dispatcherStub{},
		uploads: newUploadStoreStub(),
		cache:   &snapshotCacheStub{entries: map[string]models.ImportJob{}},
		active:  &activeCounter{},
		now:     time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewImportService(f.runner, f.uploads, f.cache, f.active, zap.NewNop(), ImportServiceConfig{
		MaxFiles:            2,
		MaxUploadBytes:      64,
		DefaultAcademicYear: "2025-2026",
		ResultTTL:           time.Hour,
	})
	f.svc.now = func() time.Time { return f.now }
	f.svc.AttachQueue(f.queue)
	return f
}

func rosterUpload(names ...string) []importer.Source {
	out := make([]importer.Source, len(names))
	for i, n := range names {
		out[i] = importer.Source{Name: n, Data: []byte("PK-" + n)}
	}
	return out
}

func appErrorCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected app error, got %v", err)
	return appErr.Code
}

func TestImportServiceSubmitValidation(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, ImportRequest{Variant: "grades", Files: rosterUpload("a.xlsx")})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrorCode(t, err))

	_, err = f.svc.Submit(ctx, ImportRequest{Variant: "roster"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrorCode(t, err))

	_, err = f.svc.Submit(ctx, ImportRequest{Variant: "roster", Files: rosterUpload("a.xlsx", "b.xlsx", "c.xlsx")})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrorCode(t, err))

	_, err = f.svc.Submit(ctx, ImportRequest{Variant: "roster", Files: rosterUpload("a.csv")})
	assert.Equal(t, appErrors.ErrUnsupportedFile.Code, appErrorCode(t, err))

	big := []importer.Source{{Name: "a.xlsx", Data: make([]byte, 65)}}
	_, err = f.svc.Submit(ctx, ImportRequest{Variant: "roster", Files: big})
	assert.Equal(t, appErrors.ErrTooLarge.Code, appErrorCode(t, err))

	_, err = f.svc.Submit(ctx, ImportRequest{Variant: "roster", Files: rosterUpload("a.xlsx"), AcademicYear: "2025/2030"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrorCode(t, err))

	assert.Empty(t, f.queue.jobs)
	assert.Empty(t, f.uploads.files)
}

func TestImportServiceSubmitAndProcess(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	job, err := f.svc.Submit(ctx, ImportRequest{Variant: "Roster", Files: rosterUpload("a.xlsx", "b.xls"), RequestedBy: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "roster", job.Variant)
	assert.Equal(t, []string{"a.xlsx", "b.xls"}, job.Files)
	assert.Equal(t, models.ImportJobIdle, job.Progress.Status)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, ImportJobType, f.queue.jobs[0].Type)
	assert.Len(t, f.uploads.files, 2)
	assert.Contains(t, f.cache.entries, cache.ImportJobKey(job.ID))
	assert.Equal(t, []string{job.ID}, f.svc.ActiveJobs())

	f.runner.results = []*models.ImportResult{{
		Variant: "roster",
		State:   models.ImportStateDone,
		Counts:  models.ImportCounts{Total: 3, Processed: 3, Created: 3},
	}}
	require.NoError(t, f.svc.Process(ctx, f.queue.jobs[0]))

	require.Len(t, f.runner.requests, 1)
	req := f.runner.requests[0]
	assert.Equal(t, "2025/2026", req.AcademicYear)
	assert.False(t, req.DryRun)
	require.Len(t, req.Sources, 2)
	assert.Equal(t, "a.xlsx", req.Sources[0].Name)
	assert.Equal(t, []byte("PK-a.xlsx"), req.Sources[0].Data)

	got, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, 3, got.Result.Counts.Created)
	assert.Equal(t, 40, got.Progress.Percent)
	assert.Empty(t, f.uploads.files)
	assert.Equal(t, []string{job.ID}, f.uploads.deleted)
	assert.Equal(t, []string{cache.RosterPattern}, f.cache.invalidated)
	assert.Equal(t, 1, f.active.peak)
	assert.Equal(t, 0, f.active.n)
	assert.Empty(t, f.svc.ActiveJobs())
}

func TestImportServiceRetriesOnlyWhenNothingWasWritten(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()
	job, err := f.svc.Submit(ctx, ImportRequest{Variant: "roster", Files: rosterUpload("a.xlsx")})
	require.NoError(t, err)

	f.runner.results = []*models.ImportResult{
		{State: models.ImportStateFailed, Counts: models.ImportCounts{Total: 5}},
		{State: models.ImportStateFailed, Counts: models.ImportCounts{Total: 5, Processed: 2}},
	}
	err = f.svc.Process(ctx, f.queue.jobs[0])
	assert.Error(t, err)
	assert.False(t, jobs.IsPermanent(err))
	assert.Len(t, f.uploads.files, 1)

	require.NoError(t, f.svc.Process(ctx, f.queue.jobs[0]))
	got, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.Failed())
	assert.Empty(t, f.uploads.files)
}

func TestImportServiceProgressNeverRegressesAcrossRetry(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()
	job, err := f.svc.Submit(ctx, ImportRequest{Variant: "roster", Files: rosterUpload("a.xlsx")})
	require.NoError(t, err)

	f.runner.events = [][]models.ImportProgress{
		{
			{Percent: 5, Status: models.ImportJobLoading, Message: "Reading files"},
			{Percent: 20, Status: models.ImportJobLoading, Message: "Creating levels"},
			{Percent: 100, Status: models.ImportJobError, Message: "database unavailable"},
		},
		{
			{Percent: 0, Status: models.ImportJobLoading, Message: "Reading files"},
			{Percent: 60, Status: models.ImportJobLoading, Message: "Processing rows"},
			{Percent: 100, Status: models.ImportJobSuccess, Message: "Import finished"},
		},
	}
	f.runner.results = []*models.ImportResult{
		{State: models.ImportStateFailed, Counts: models.ImportCounts{Total: 5}},
		{State: models.ImportStateDone, Counts: models.ImportCounts{Total: 5, Processed: 5, Created: 5}},
	}

	require.Error(t, f.svc.Process(ctx, f.queue.jobs[0]))
	got, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Progress.Percent)
	assert.Equal(t, models.ImportJobLoading, got.Progress.Status)
	assert.Equal(t, "Retrying import (attempt 2)", got.Progress.Message)

	retry := f.queue.jobs[0]
	retry.Attempt = 1
	require.NoError(t, f.svc.Process(ctx, retry))
	got, err = f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress.Percent)
	assert.Equal(t, models.ImportJobSuccess, got.Progress.Status)

	last := 0
	for i, p := range f.cache.history {
		assert.GreaterOrEqual(t, p.Percent, last, "snapshot %d (%s) went backwards", i, p.Message)
		last = p.Percent
		assert.NotEqual(t, models.ImportJobError, p.Status, "snapshot %d", i)
	}
}

func TestImportServiceProcessUnknownJobIsPermanent(t *testing.T) {
	f := newImportFixture(t)
	err := f.svc.Process(context.Background(), jobs.Job{ID: "missing"})
	assert.True(t, jobs.IsPermanent(err))
}

func TestImportServiceQueueFull(t *testing.T) {
	f := newImportFixture(t)
	f.queue.err = jobs.ErrQueueFull

	_, err := f.svc.Submit(context.Background(), ImportRequest{Variant: "roster", Files: rosterUpload("a.xlsx")})
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrorCode(t, err))
	assert.Empty(t, f.uploads.files)
}

func TestImportServiceMarkExhausted(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()
	job, err := f.svc.Submit(ctx, ImportRequest{Variant: "dropout", Files: rosterUpload("a.xlsx")})
	require.NoError(t, err)

	f.svc.MarkExhausted(f.queue.jobs[0], errors.New("database down"))
	got, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportJobError, got.Progress.Status)
	assert.Equal(t, 100, got.Progress.Percent)
	assert.Contains(t, got.Progress.Message, "database down")
	assert.Empty(t, f.uploads.files)
}

func TestImportServiceGetFallsBackToCacheAndPrunes(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	f.cache.entries[cache.ImportJobKey("remote")] = models.ImportJob{ID: "remote", Variant: "roster"}
	got, err := f.svc.Get(ctx, "remote")
	require.NoError(t, err)
	assert.Equal(t, "remote", got.ID)

	_, err = f.svc.Get(ctx, "nope")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrorCode(t, err))

	job, err := f.svc.Submit(ctx, ImportRequest{Variant: "roster", Files: rosterUpload("a.xlsx")})
	require.NoError(t, err)
	require.NoError(t, f.svc.Process(ctx, f.queue.jobs[0]))

	assert.Equal(t, 0, f.svc.PruneExpired())
	f.now = f.now.Add(2 * time.Hour)
	assert.Equal(t, 1, f.svc.PruneExpired())

	delete(f.cache.entries, cache.ImportJobKey(job.ID))
	_, err = f.svc.Get(ctx, job.ID)
	assert.Error(t, err)
}

func TestImportServicePreviewIsDryRun(t *testing.T) {
	f := newImportFixture(t)
	res, err := f.svc.Preview(context.Background(), ImportRequest{Variant: "roster", Files: rosterUpload("a.xlsx")})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	require.Len(t, f.runner.requests, 1)
	assert.True(t, f.runner.requests[0].DryRun)
	assert.Empty(t, f.queue.jobs)
	assert.Empty(t, f.uploads.files)
}

func TestImportServiceStagesUnderJobDirectory(t *testing.T) {
	f := newImportFixture(t)
	job, err := f.svc.Submit(context.Background(), ImportRequest{Variant: "roster", Files: rosterUpload("../../evil.xlsx")})
	require.NoError(t, err)
	for name := range f.uploads.files {
		assert.Equal(t, job.ID, path.Dir(name))
		assert.Equal(t, "00-evil.xlsx", path.Base(name))
	}
}

func TestImportServiceVariants(t *testing.T) {
	f := newImportFixture(t)
	variants := f.svc.Variants()
	assert.Len(t, variants, len(importer.VariantNames()))
}
