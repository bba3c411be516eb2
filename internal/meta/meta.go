// Package meta persists the control-plane records of the ingestion
// workflow: staged uploads awaiting confirmation, datasets backed by
// dynamically created tables, and the import jobs that load them.
//
// The repository speaks plain database/sql so it runs unchanged against
// Postgres (via the pgx stdlib driver) and SQLite; statements are written
// with ? placeholders and rebound per driver.
package meta

import (
	"errors"
	"time"

	"dataloft/internal/schema"
	"dataloft/internal/tabular"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("meta: not found")

	// ErrConflict is returned when a status transition is not allowed from
	// the record's current state, including duplicate import submissions.
	ErrConflict = errors.New("meta: conflicting state")

	// ErrExpired is returned when a staged upload is past its TTL.
	ErrExpired = errors.New("meta: staged upload expired")
)

// Staged upload statuses.
const (
	UploadUploaded   = "uploaded"
	UploadValidated  = "validated"
	UploadConfirmed  = "confirmed"
	UploadProcessing = "processing"
	UploadFailed     = "failed"
	UploadExpired    = "expired"
)

// Dataset statuses.
const (
	DatasetImporting = "importing"
	DatasetActive    = "active"
	DatasetFailed    = "failed"
	DatasetArchived  = "archived"
)

// Import job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// StagedUpload is a file sitting in the staging area waiting for the user
// to confirm or discard it. It expires after a TTL.
type StagedUpload struct {
	ID               string
	UserID           string
	OriginalFilename string
	StoredPath       string
	SizeBytes        int64
	Kind             tabular.Kind
	Status           string
	Preview          *tabular.Preview
	Findings         []string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	ConfirmedAt      *time.Time
}

// Dataset is a confirmed upload bound to a physical table. UploadID keeps
// the link to the staged source; it stays resolvable while the dataset is
// failed so the import can be re-run, and dangles once a successful import
// cleans the staging area up.
type Dataset struct {
	ID               string
	UserID           string
	UploadID         string
	DisplayName      string
	OriginalFilename string
	TableName        string
	SelectedColumns  []string
	ColumnMapping    map[string]string
	ColumnTypes      map[string]schema.ColumnType
	RowCount         int64
	ImportedRows     int64
	Status           string
	ErrorDetail      string
	JobID            string
	CreatedAt        time.Time
	ImportedAt       *time.Time
}

// HeaderClassification is the stored verdict for one (dataset, role) pair.
// The set for a dataset is replaced wholesale on revalidation, never
// patched per role.
type HeaderClassification struct {
	DatasetID string
	Role      string
	Column    string
	Score     int
	MatchedOn string
	Method    string
	Found     bool
	Required  bool
	Threshold int
	CreatedAt time.Time
}

// ImportJob tracks one asynchronous load, keyed by a correlation id the
// progress endpoint polls.
type ImportJob struct {
	ID            string
	UserID        string
	DatasetID     string
	CorrelationID string
	TaskName      string
	Status        string
	CurrentStep   int
	TotalSteps    int
	Message       string
	RetryCount    int
	ErrorDetail   string
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
}
