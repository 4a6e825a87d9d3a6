package models

import "time"

// ImportState is a stage of the import run state machine.
type ImportState string

const (
	ImportStateIdle             ImportState = "IDLE"
	ImportStateDiscovering      ImportState = "DISCOVERING"
	ImportStateCreatingEntities ImportState = "CREATING_ENTITIES"
	ImportStateProcessingRows   ImportState = "PROCESSING_ROWS"
	ImportStateDone             ImportState = "DONE"
	ImportStateFailed           ImportState = "FAILED"
)

// LogLevel classifies audit log lines.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogEntry is one human-readable audit line.
type LogEntry struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// ValidationError describes a structural problem in a single row.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Sheet   string `json:"sheet,omitempty"`
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// ImportCounts aggregates row outcomes.
type ImportCounts struct {
	Total      int `json:"total"`
	Processed  int `json:"processed"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`

	// Mobility counters only move for mobility variants.
	MobilityCreated int `json:"mobility_created"`
	MobilityUpdated int `json:"mobility_updated"`
}

// DiscoveredSection pairs a section name with the level it belongs to.
type DiscoveredSection struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

// ImportResult is the outcome of one import run. It is surfaced to the caller and
// never written to the store.
type ImportResult struct {
	Variant          string              `json:"variant"`
	State            ImportState         `json:"state"`
	DryRun           bool                `json:"dry_run"`
	Counts           ImportCounts        `json:"counts"`
	Levels           []string            `json:"levels,omitempty"`
	Sections         []DiscoveredSection `json:"sections,omitempty"`
	Log              []LogEntry          `json:"log"`
	ValidationErrors []ValidationError   `json:"validation_errors"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       time.Time           `json:"finished_at"`
}

// Failed reports whether the run ended in the FAILED state.
func (r *ImportResult) Failed() bool {
	return r != nil && r.State == ImportStateFailed
}

// ImportJobStatus mirrors the progress status tags shown to the UI.
type ImportJobStatus string

const (
	ImportJobIdle    ImportJobStatus = "idle"
	ImportJobLoading ImportJobStatus = "loading"
	ImportJobSuccess ImportJobStatus = "success"
	ImportJobError   ImportJobStatus = "error"
)

// ImportProgress is one progress notification.
type ImportProgress struct {
	Percent   int             `json:"progress"`
	Status    ImportJobStatus `json:"status"`
	Message   string          `json:"message"`
	Remaining *time.Duration  `json:"remaining,omitempty"`
	Detail    *ImportCounts   `json:"detail,omitempty"`
}

// ImportJob is the transient snapshot of an asynchronous import.
type ImportJob struct {
	ID          string         `json:"id"`
	Variant     string         `json:"variant"`
	RequestedBy string         `json:"requested_by,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Files       []string       `json:"files"`
	Progress    ImportProgress `json:"progress"`
	Result      *ImportResult  `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
