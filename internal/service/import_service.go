package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/importer"
	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/pkg/cache"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/jobs"
	"github.com/noah-isme/sma-roster-sync/pkg/spreadsheet"
)

// ImportJobType tags queued import jobs.
const ImportJobType = "roster_import"

type importRunner interface {
	Run(ctx context.Context, req importer.RunRequest) *models.ImportResult
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type uploadStore interface {
	Save(filename string, data []byte) (string, error)
	Read(filename string) ([]byte, error)
	DeleteDir(dir string) error
}

type jobSnapshotCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type activeImportTracker interface {
	TrackActiveImport(delta int)
}

// ImportServiceConfig bounds uploads and controls how long finished jobs stay visible.
type ImportServiceConfig struct {
	MaxFiles            int
	MaxUploadBytes      int64
	DefaultAcademicYear string
	ResultTTL           time.Duration
}

// ImportRequest is a validated-on-entry import submission.
type ImportRequest struct {
	Variant      string
	Files        []importer.Source
	AcademicYear string
	RequestedBy  string
	RequestID    string
}

type trackedImport struct {
	job          models.ImportJob
	variant      importer.Variant
	academicYear string
	uploads      []string
	expiresAt    time.Time
}

// ImportService accepts uploads, runs previews synchronously and full imports on the
// background queue, and exposes job progress for polling.
type ImportService struct {
	runner  importRunner
	uploads uploadStore
	cache   jobSnapshotCache
	active  activeImportTracker
	logger  *zap.Logger
	cfg     ImportServiceConfig
	now     func() time.Time

	mu    sync.RWMutex
	queue jobDispatcher
	jobs  map[string]*trackedImport
}

// NewImportService constructs the service. The queue is attached afterwards because its
// handler is the service's own Process method.
func NewImportService(runner importRunner, uploads uploadStore, cache jobSnapshotCache, active activeImportTracker, logger *zap.Logger, cfg ImportServiceConfig) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 20
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	return &ImportService{
		runner:  runner,
		uploads: uploads,
		cache:   cache,
		active:  active,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
		jobs:    make(map[string]*trackedImport),
	}
}

// AttachQueue sets the dispatcher used by Submit.
func (s *ImportService) AttachQueue(queue jobDispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = queue
}

// Variants lists the supported layouts.
func (s *ImportService) Variants() []importer.Variant {
	names := importer.VariantNames()
	out := make([]importer.Variant, 0, len(names))
	for _, name := range names {
		v, err := importer.LookupVariant(name)
		if err == nil {
			out = append(out, v)
		}
	}
	return out
}

// Preview runs discovery only and returns the candidate totals without writing.
func (s *ImportService) Preview(ctx context.Context, req ImportRequest) (*models.ImportResult, error) {
	variant, year, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	result := s.runner.Run(ctx, importer.RunRequest{
		Variant:      variant,
		Sources:      req.Files,
		AcademicYear: year,
		DryRun:       true,
	})
	return result, nil
}

// Submit stages the uploaded files and queues a full import.
func (s *ImportService) Submit(ctx context.Context, req ImportRequest) (*models.ImportJob, error) {
	variant, year, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	queue := s.queue
	s.mu.RUnlock()
	if queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "import queue is not running")
	}

	now := s.now().UTC()
	tracked := &trackedImport{
		job: models.ImportJob{
			ID:          uuid.NewString(),
			Variant:     variant.Name,
			RequestedBy: req.RequestedBy,
			RequestID:   req.RequestID,
			Progress:    models.ImportProgress{Status: models.ImportJobIdle, Message: "Queued"},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		variant:      variant,
		academicYear: year,
	}
	for i, f := range req.Files {
		name := path.Join(tracked.job.ID, fmt.Sprintf("%02d-%s", i, filepath.Base(f.Name)))
		stored, err := s.uploads.Save(name, f.Data)
		if err != nil {
			s.discardUploads(tracked.job.ID)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage upload")
		}
		tracked.uploads = append(tracked.uploads, stored)
		tracked.job.Files = append(tracked.job.Files, f.Name)
	}

	s.mu.Lock()
	s.jobs[tracked.job.ID] = tracked
	s.mu.Unlock()
	s.publish(ctx, tracked.job)

	if err := queue.Enqueue(jobs.Job{ID: tracked.job.ID, Type: ImportJobType}); err != nil {
		s.finishWithError(tracked.job.ID, "could not queue the import")
		s.discardUploads(tracked.job.ID)
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "too many imports in progress, retry later")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue import")
	}
	s.logger.Info("import queued",
		zap.String("job_id", tracked.job.ID),
		zap.String("request_id", req.RequestID),
		zap.String("variant", variant.Name),
		zap.Int("files", len(req.Files)),
	)
	job := tracked.job
	return &job, nil
}

// Get returns the latest snapshot of a job, falling back to the shared cache for jobs
// accepted by another instance.
func (s *ImportService) Get(ctx context.Context, id string) (*models.ImportJob, error) {
	s.mu.RLock()
	tracked, ok := s.jobs[id]
	var job models.ImportJob
	if ok {
		job = tracked.job
	}
	s.mu.RUnlock()
	if ok {
		return &job, nil
	}

	if s.cache != nil {
		hit, err := s.cache.Get(ctx, cache.ImportJobKey(id), &job)
		if err == nil && hit {
			return &job, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "import job not found")
}

// Process is the queue handler. It returns an error only when a retry could succeed.
func (s *ImportService) Process(ctx context.Context, job jobs.Job) error {
	s.mu.RLock()
	tracked, ok := s.jobs[job.ID]
	var (
		variant   importer.Variant
		year      string
		requestID string
		uploads   []string
		files     []string
	)
	if ok {
		variant, year, requestID = tracked.variant, tracked.academicYear, tracked.job.RequestID
		uploads = append(uploads, tracked.uploads...)
		files = append(files, tracked.job.Files...)
	}
	s.mu.RUnlock()
	if !ok {
		return jobs.Permanent(fmt.Errorf("import job %s is unknown", job.ID))
	}

	sources := make([]importer.Source, 0, len(uploads))
	for i, name := range uploads {
		data, err := s.uploads.Read(name)
		if err != nil {
			s.finishWithError(job.ID, "uploaded files are no longer available")
			return jobs.Permanent(err)
		}
		sources = append(sources, importer.Source{Name: files[i], Data: data})
	}

	if s.active != nil {
		s.active.TrackActiveImport(1)
		defer s.active.TrackActiveImport(-1)
	}
	// The terminal event is held back until the attempt is known not to be retried.
	var final *models.ImportProgress
	result := s.runner.Run(ctx, importer.RunRequest{
		Variant:      variant,
		Sources:      sources,
		AcademicYear: year,
		OnProgress: func(p models.ImportProgress) {
			if p.Status == models.ImportJobSuccess || p.Status == models.ImportJobError {
				final = &p
				return
			}
			s.updateProgress(ctx, job.ID, p)
		},
	})

	if result.Failed() && result.Counts.Total > 0 && result.Counts.Processed == 0 && ctx.Err() == nil {
		s.logger.Warn("import failed before writing, will retry",
			zap.String("job_id", job.ID),
			zap.String("request_id", requestID),
			zap.Int("attempt", job.Attempt+1),
		)
		s.updateProgress(ctx, job.ID, models.ImportProgress{
			Status:  models.ImportJobLoading,
			Message: fmt.Sprintf("Retrying import (attempt %d)", job.Attempt+2),
		})
		return fmt.Errorf("import %s failed before processing rows", job.ID)
	}

	if final != nil {
		s.updateProgress(ctx, job.ID, *final)
	}
	s.complete(ctx, job.ID, result)
	s.discardUploads(job.ID)
	s.logger.Info("import finished",
		zap.String("job_id", job.ID),
		zap.String("request_id", requestID),
		zap.String("state", string(result.State)),
		zap.Int("created", result.Counts.Created),
		zap.Int("updated", result.Counts.Updated),
	)
	if s.cache != nil && result.Counts.Created+result.Counts.Updated > 0 {
		_ = s.cache.Invalidate(ctx, cache.RosterPattern)
	}
	return nil
}

// MarkExhausted is the queue's give-up hook.
func (s *ImportService) MarkExhausted(job jobs.Job, err error) {
	s.logger.Error("import abandoned", zap.String("job_id", job.ID), zap.Error(err))
	s.finishWithError(job.ID, "import failed: "+err.Error())
	s.discardUploads(job.ID)
}

// PruneExpired forgets finished jobs whose result TTL has passed and returns how many were dropped.
func (s *ImportService) PruneExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, tracked := range s.jobs {
		if !tracked.expiresAt.IsZero() && now.After(tracked.expiresAt) {
			delete(s.jobs, id)
			dropped++
		}
	}
	return dropped
}

// ActiveJobs returns ids of jobs that have not finished, oldest first.
func (s *ImportService) ActiveJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0)
	for id, tracked := range s.jobs {
		if tracked.expiresAt.IsZero() {
			entries = append(entries, entry{id: id, at: tracked.job.CreatedAt})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}

func (s *ImportService) validate(req ImportRequest) (importer.Variant, string, error) {
	variant, err := importer.LookupVariant(req.Variant)
	if err != nil {
		return importer.Variant{}, "", appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown import variant %q", req.Variant))
	}
	if len(req.Files) == 0 {
		return importer.Variant{}, "", appErrors.Clone(appErrors.ErrValidation, "at least one spreadsheet is required")
	}
	if len(req.Files) > s.cfg.MaxFiles {
		return importer.Variant{}, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d files can be imported at once", s.cfg.MaxFiles))
	}
	var total int64
	for _, f := range req.Files {
		if !spreadsheet.IsSpreadsheetName(f.Name) {
			return importer.Variant{}, "", appErrors.Clone(appErrors.ErrUnsupportedFile, fmt.Sprintf("%s is not an .xlsx or .xls file", f.Name))
		}
		total += int64(len(f.Data))
	}
	if total > s.cfg.MaxUploadBytes {
		return importer.Variant{}, "", appErrors.Clone(appErrors.ErrTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes))
	}

	year := req.AcademicYear
	if year == "" {
		year = s.cfg.DefaultAcademicYear
	}
	year = importer.NormalizeAcademicYear(year)
	if year != "" && !importer.ValidAcademicYear(year) {
		return importer.Variant{}, "", appErrors.Clone(appErrors.ErrValidation, "academic year must look like 2025/2026")
	}
	return variant, year, nil
}

func (s *ImportService) updateProgress(ctx context.Context, id string, p models.ImportProgress) {
	s.mu.Lock()
	tracked, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	// Percent never moves backwards while the job is in flight, retries included.
	inFlight := p.Status == models.ImportJobIdle || p.Status == models.ImportJobLoading
	if inFlight && p.Percent < tracked.job.Progress.Percent {
		p.Percent = tracked.job.Progress.Percent
	}
	tracked.job.Progress = p
	tracked.job.UpdatedAt = s.now().UTC()
	job := tracked.job
	s.mu.Unlock()
	s.publish(ctx, job)
}

func (s *ImportService) complete(ctx context.Context, id string, result *models.ImportResult) {
	s.mu.Lock()
	tracked, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	now := s.now().UTC()
	tracked.job.Result = result
	tracked.job.UpdatedAt = now
	tracked.expiresAt = now.Add(s.cfg.ResultTTL)
	job := tracked.job
	s.mu.Unlock()
	s.publish(ctx, job)
}

func (s *ImportService) finishWithError(id, message string) {
	s.mu.Lock()
	tracked, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	now := s.now().UTC()
	zero := time.Duration(0)
	tracked.job.Progress = models.ImportProgress{Percent: 100, Status: models.ImportJobError, Message: message, Remaining: &zero}
	tracked.job.UpdatedAt = now
	tracked.expiresAt = now.Add(s.cfg.ResultTTL)
	job := tracked.job
	s.mu.Unlock()
	s.publish(context.Background(), job)
}

func (s *ImportService) publish(ctx context.Context, job models.ImportJob) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cache.ImportJobKey(job.ID), job, s.cfg.ResultTTL); err != nil {
		s.logger.Debug("import snapshot not cached", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *ImportService) discardUploads(id string) {
	if err := s.uploads.DeleteDir(id); err != nil {
		s.logger.Warn("failed to delete staged uploads", zap.String("job_id", id), zap.Error(err))
	}
}
