// Package upload implements the staging workflow: a file is staged,
// previewed, and validated; on confirmation its schema is inferred, the
// dataset table is created, and an asynchronous import is enqueued.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"dataloft/internal/inference"
	"dataloft/internal/ingest"
	"dataloft/internal/jobs"
	"dataloft/internal/meta"
	"dataloft/internal/metrics"
	"dataloft/internal/sanitize"
	"dataloft/internal/schema"
	"dataloft/internal/store"
	"dataloft/internal/tabular"
)

// MaxFileSize is the staging size cap.
const MaxFileSize = 50 << 20

// StagedTTL is how long an unconfirmed upload stays claimable.
const StagedTTL = time.Hour

var (
	// ErrUnsupportedType is returned for file extensions the loader cannot
	// read.
	ErrUnsupportedType = errors.New("upload: unsupported file type")

	// ErrTooLarge is returned when a staged file exceeds MaxFileSize.
	ErrTooLarge = errors.New("upload: file too large")
)

func (e *sizeLimitError) Unwrap() error { return ErrTooLarge }

// Metadata is the slice of the metadata repository the service uses.
type Metadata interface {
	CreateStagedUpload(ctx context.Context, u *meta.StagedUpload) error
	GetStagedUpload(ctx context.Context, id, userID string) (*meta.StagedUpload, error)
	TransitionUpload(ctx context.Context, id string, from []string, to string) error
	DeleteStagedUpload(ctx context.Context, id, userID string) error
	ExpireStale(ctx context.Context, now time.Time) ([]string, error)

	CreateDataset(ctx context.Context, d *meta.Dataset) error
	GetDataset(ctx context.Context, id, userID string) (*meta.Dataset, error)
	MarkDatasetImporting(ctx context.Context, id, jobID string) error
	DeleteDataset(ctx context.Context, id, userID string) error

	CreateImportJob(ctx context.Context, j *meta.ImportJob) error
	GetImportJob(ctx context.Context, correlationID string) (*meta.ImportJob, error)
	ActiveJobForDataset(ctx context.Context, datasetID string) (*meta.ImportJob, error)

	ReplaceHeaderClassifications(ctx context.Context, datasetID string, recs []meta.HeaderClassification) error
	GetHeaderClassifications(ctx context.Context, datasetID string) ([]meta.HeaderClassification, error)
}

// Runner executes an import request under a correlation id. Satisfied by
// *ingest.Pipeline.
type Runner interface {
	Run(ctx context.Context, correlationID string, req ingest.Request) error
}

// Logger is the minimal logging seam. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Service drives the staged-upload lifecycle and the dataset operations
// layered on it.
type Service struct {
	Meta      Metadata
	Files     FileStore
	Tables    store.Store
	Jobs      jobs.Submitter
	Runner    Runner
	Inference *inference.Engine
	Sanitizer *sanitize.Sanitizer
	Logger    Logger
	Metrics   metrics.Backend

	// Now defaults to time.Now; injected in tests.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Stage saves an incoming file, builds its preview, and records the staged
// upload with a TTL. Structural findings are stored, not enforced: the user
// sees them before confirming.
func (s *Service) Stage(ctx context.Context, userID, filename string, r io.Reader) (*meta.StagedUpload, error) {
	kind, ok := tabular.DetectKind(filename)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
	}

	path, size, err := s.Files.Save(filename, r, MaxFileSize)
	if err != nil {
		return nil, err
	}

	t, err := tabular.Load(path, kind)
	if err != nil {
		_ = s.Files.Remove(path)
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	preview := tabular.BuildPreview(t)
	findings := tabular.ValidateStructure(t)

	now := s.now()
	u := &meta.StagedUpload{
		ID:               uuid.NewString(),
		UserID:           userID,
		OriginalFilename: filename,
		StoredPath:       path,
		SizeBytes:        size,
		Kind:             kind,
		Status:           meta.UploadValidated,
		Preview:          &preview,
		Findings:         findings,
		CreatedAt:        now,
		ExpiresAt:        now.Add(StagedTTL),
	}
	if err := s.Meta.CreateStagedUpload(ctx, u); err != nil {
		_ = s.Files.Remove(path)
		return nil, err
	}

	s.metrics().IncCounter(metrics.UploadsTotal, 1, map[string]string{"status": "staged"})
	s.logf("upload=%s user=%s file=%q size=%d kind=%s staged findings=%d",
		u.ID, userID, filename, size, kind, len(findings))
	return u, nil
}

// ConfirmRequest carries the user's choices for turning a staged upload
// into a dataset.
type ConfirmRequest struct {
	DisplayName     string
	SelectedColumns []string
}

// ConfirmResult reports the created dataset and the correlation id the
// caller polls progress with.
type ConfirmResult struct {
	Dataset       *meta.Dataset
	CorrelationID string
}

// Confirm infers the schema, creates the physical table, records the
// dataset, and enqueues the import. Double confirmation of the same upload
// reports meta.ErrConflict.
func (s *Service) Confirm(ctx context.Context, userID, uploadID string, req ConfirmRequest) (*ConfirmResult, error) {
	up, err := s.Meta.GetStagedUpload(ctx, uploadID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.Meta.TransitionUpload(ctx, uploadID,
		[]string{meta.UploadUploaded, meta.UploadValidated}, meta.UploadConfirmed); err != nil {
		return nil, err
	}

	t, err := tabular.Load(up.StoredPath, up.Kind)
	if err != nil {
		s.abandonUpload(ctx, uploadID)
		return nil, fmt.Errorf("reload staged file: %w", err)
	}

	selected := req.SelectedColumns
	if len(selected) == 0 {
		selected = namedColumns(t.Columns)
	}
	sel := t.Select(selected)
	if len(sel.Columns) == 0 {
		s.abandonUpload(ctx, uploadID)
		return nil, fmt.Errorf("no usable columns selected")
	}

	types := make(map[string]schema.ColumnType, len(sel.Columns))
	for _, c := range sel.Columns {
		types[c] = s.Inference.Detect(sel.ColumnValues(c), c)
	}
	mapping := s.Sanitizer.NewMapping(sel.Columns)

	plan := schema.Plan{Columns: make([]schema.Column, len(sel.Columns))}
	for i, c := range sel.Columns {
		plan.Columns[i] = schema.Column{Name: mapping[c], Type: types[c]}
	}

	now := s.now()
	tableName := sanitize.TableName(userID, up.OriginalFilename, now)
	if !store.ValidateName(tableName) {
		s.abandonUpload(ctx, uploadID)
		return nil, fmt.Errorf("generated table name %q is invalid", tableName)
	}

	if err := s.Tables.Create(ctx, tableName, plan); err != nil {
		s.abandonUpload(ctx, uploadID)
		return nil, fmt.Errorf("create table: %w", err)
	}
	s.metrics().IncCounter(metrics.TablesTotal, 1, map[string]string{"op": "created"})

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = up.OriginalFilename
	}

	correlationID := uuid.NewString()
	ds := &meta.Dataset{
		ID:               uuid.NewString(),
		UserID:           userID,
		UploadID:         uploadID,
		DisplayName:      displayName,
		OriginalFilename: up.OriginalFilename,
		TableName:        tableName,
		SelectedColumns:  sel.Columns,
		ColumnMapping:    mapping,
		ColumnTypes:      types,
		RowCount:         int64(len(sel.Rows)),
		Status:           meta.DatasetImporting,
		JobID:            correlationID,
		CreatedAt:        now,
	}
	if err := s.Meta.CreateDataset(ctx, ds); err != nil {
		_ = s.Tables.Drop(ctx, tableName)
		s.abandonUpload(ctx, uploadID)
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	job := &meta.ImportJob{
		ID:            uuid.NewString(),
		UserID:        userID,
		DatasetID:     ds.ID,
		CorrelationID: correlationID,
		TaskName:      "import_dataset",
		Status:        meta.JobPending,
		CreatedAt:     now,
	}
	if err := s.Meta.CreateImportJob(ctx, job); err != nil {
		_ = s.Tables.Drop(ctx, tableName)
		_ = s.Meta.DeleteDataset(ctx, ds.ID, userID)
		s.abandonUpload(ctx, uploadID)
		return nil, fmt.Errorf("create import job: %w", err)
	}

	ingestReq := ingest.Request{
		DatasetID:       ds.ID,
		UserID:          userID,
		UploadID:        uploadID,
		Path:            up.StoredPath,
		Kind:            up.Kind,
		TableName:       tableName,
		SelectedColumns: sel.Columns,
		Mapping:         mapping,
		Types:           types,
	}
	if _, err := s.Jobs.Enqueue(ctx, "import_dataset", func(taskCtx context.Context, _ string) error {
		return s.Runner.Run(taskCtx, correlationID, ingestReq)
	}); err != nil {
		_ = s.Tables.Drop(ctx, tableName)
		_ = s.Meta.DeleteDataset(ctx, ds.ID, userID)
		s.abandonUpload(ctx, uploadID)
		return nil, fmt.Errorf("enqueue import: %w", err)
	}

	if err := s.Meta.TransitionUpload(ctx, uploadID,
		[]string{meta.UploadConfirmed}, meta.UploadProcessing); err != nil {
		s.logf("upload=%s transition to processing failed: %v", uploadID, err)
	}

	s.metrics().IncCounter(metrics.UploadsTotal, 1, map[string]string{"status": "confirmed"})
	s.logf("upload=%s dataset=%s table=%s confirmed columns=%d rows=%d correlation_id=%s",
		uploadID, ds.ID, tableName, len(sel.Columns), len(sel.Rows), correlationID)
	return &ConfirmResult{Dataset: ds, CorrelationID: correlationID}, nil
}

// abandonUpload flips a half-confirmed upload to failed so it cannot be
// confirmed again and the expiry sweep eventually reclaims the file.
func (s *Service) abandonUpload(ctx context.Context, uploadID string) {
	if err := s.Meta.TransitionUpload(ctx, uploadID,
		[]string{meta.UploadConfirmed}, meta.UploadFailed); err != nil {
		s.logf("upload=%s transition to failed: %v", uploadID, err)
	}
}

// RetryImport re-runs the load of a failed dataset against its existing
// table. Only failed datasets qualify; the staged source file must still
// be present. Rows landed by the previous partial run are not removed, so
// a retry after partial success can duplicate them.
func (s *Service) RetryImport(ctx context.Context, userID, datasetID string) (*ConfirmResult, error) {
	ds, err := s.Meta.GetDataset(ctx, datasetID, userID)
	if err != nil {
		return nil, err
	}
	// Status is checked before the staged source is resolved: an active
	// dataset's upload link dangles after cleanup, and the caller should
	// see the conflict, not a missing-source error.
	if ds.Status != meta.DatasetFailed {
		return nil, fmt.Errorf("%w: only failed datasets can be retried", meta.ErrConflict)
	}
	if _, err := s.Meta.ActiveJobForDataset(ctx, datasetID); err == nil {
		return nil, fmt.Errorf("%w: import in progress", meta.ErrConflict)
	} else if !errors.Is(err, meta.ErrNotFound) {
		return nil, err
	}

	up, err := s.Meta.GetStagedUpload(ctx, ds.UploadID, userID)
	if err != nil {
		return nil, fmt.Errorf("staged source unavailable: %w", err)
	}

	correlationID := uuid.NewString()
	if err := s.Meta.MarkDatasetImporting(ctx, datasetID, correlationID); err != nil {
		return nil, err
	}
	ds.Status = meta.DatasetImporting
	ds.JobID = correlationID
	ds.ErrorDetail = ""

	job := &meta.ImportJob{
		ID:            uuid.NewString(),
		UserID:        userID,
		DatasetID:     datasetID,
		CorrelationID: correlationID,
		TaskName:      "import_dataset",
		Status:        meta.JobPending,
		RetryCount:    1,
		CreatedAt:     s.now(),
	}
	if err := s.Meta.CreateImportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}

	ingestReq := ingest.Request{
		DatasetID:       datasetID,
		UserID:          userID,
		UploadID:        ds.UploadID,
		Path:            up.StoredPath,
		Kind:            up.Kind,
		TableName:       ds.TableName,
		SelectedColumns: ds.SelectedColumns,
		Mapping:         ds.ColumnMapping,
		Types:           ds.ColumnTypes,
	}
	if _, err := s.Jobs.Enqueue(ctx, "import_dataset", func(taskCtx context.Context, _ string) error {
		return s.Runner.Run(taskCtx, correlationID, ingestReq)
	}); err != nil {
		return nil, fmt.Errorf("enqueue import: %w", err)
	}

	s.logf("dataset=%s table=%s retry enqueued correlation_id=%s", datasetID, ds.TableName, correlationID)
	return &ConfirmResult{Dataset: ds, CorrelationID: correlationID}, nil
}

// Discard deletes a staged upload and its file. Idempotent; expired
// records may still be discarded.
func (s *Service) Discard(ctx context.Context, userID, uploadID string) error {
	up, err := s.Meta.GetStagedUpload(ctx, uploadID, userID)
	if err != nil && !errors.Is(err, meta.ErrExpired) {
		return err
	}
	if up != nil && up.StoredPath != "" {
		if rmErr := s.Files.Remove(up.StoredPath); rmErr != nil {
			s.logf("upload=%s remove staged file: %v", uploadID, rmErr)
		}
	}
	return s.Meta.DeleteStagedUpload(ctx, uploadID, userID)
}

// CleanupExpired expires stale staged uploads and removes their files.
// Meant to run on a ticker.
func (s *Service) CleanupExpired(ctx context.Context) error {
	paths, err := s.Meta.ExpireStale(ctx, s.now())
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := s.Files.Remove(p); err != nil {
			s.logf("expire sweep remove %s: %v", p, err)
		}
	}
	if len(paths) > 0 {
		s.logf("expire sweep reclaimed=%d", len(paths))
	}
	return nil
}

// DeleteDataset drops the physical table first and only then removes the
// metadata row, so a failure can never orphan a table.
func (s *Service) DeleteDataset(ctx context.Context, userID, datasetID string) error {
	ds, err := s.Meta.GetDataset(ctx, datasetID, userID)
	if err != nil {
		return err
	}
	if _, err := s.Meta.ActiveJobForDataset(ctx, datasetID); err == nil {
		return fmt.Errorf("%w: import in progress", meta.ErrConflict)
	} else if !errors.Is(err, meta.ErrNotFound) {
		return err
	}

	if err := s.Tables.Drop(ctx, ds.TableName); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	s.metrics().IncCounter(metrics.TablesTotal, 1, map[string]string{"op": "dropped"})

	if err := s.Meta.DeleteDataset(ctx, datasetID, userID); err != nil {
		return err
	}
	s.logf("dataset=%s table=%s deleted", datasetID, ds.TableName)
	return nil
}

// namedColumns filters out blank headers so a stray trailing delimiter
// cannot produce an unnamed dataset column.
func namedColumns(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) metrics() metrics.Backend {
	if s.Metrics != nil {
		return s.Metrics
	}
	return metrics.Nop{}
}

func (s *Service) logf(format string, v ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, v...)
	}
}
