// Package ingest runs the chunked load of a confirmed upload into its
// dataset table.
//
// The pipeline is deliberately forgiving: a failed chunk is logged,
// counted, and skipped, and the import finishes with whatever landed.
// Only a run that inserts nothing at all marks the dataset failed.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"dataloft/internal/inference"
	"dataloft/internal/meta"
	"dataloft/internal/metrics"
	"dataloft/internal/schema"
	"dataloft/internal/store"
	"dataloft/internal/tabular"
)

// BatchSize is how many rows go into one insert statement.
const BatchSize = 100

// maxStoredErrors caps how many chunk errors are kept for the dataset's
// error detail. The full stream still goes to the log.
const maxStoredErrors = 20

// Request carries everything the pipeline needs to load one dataset.
type Request struct {
	DatasetID       string
	UserID          string
	UploadID        string
	Path            string
	Kind            tabular.Kind
	TableName       string
	SelectedColumns []string
	Mapping         map[string]string
	Types           map[string]schema.ColumnType
}

// Metadata is the slice of the metadata repository the pipeline uses.
type Metadata interface {
	StartJob(ctx context.Context, correlationID string) error
	UpdateJobProgress(ctx context.Context, correlationID string, current, total int, message string) error
	FinishJob(ctx context.Context, correlationID, status, errorDetail string) error
	SetDatasetRowCount(ctx context.Context, id string, rowCount int64) error
	UpdateDatasetProgress(ctx context.Context, id string, importedRows int64) error
	FinalizeDataset(ctx context.Context, id, status string, importedRows int64, errorDetail string) error
	DeleteStagedUpload(ctx context.Context, id, userID string) error
}

// FileRemover removes a staged file after a successful load.
type FileRemover interface {
	Remove(path string) error
}

// Loader reads a staged file into a table. Swapped out in tests.
type Loader func(path string, kind tabular.Kind) (*tabular.Table, error)

// Logger is the minimal logging seam. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Pipeline executes import requests.
type Pipeline struct {
	Meta    Metadata
	Tables  store.Store
	Files   FileRemover
	Logger  Logger
	Metrics metrics.Backend

	// Load defaults to tabular.Load.
	Load Loader

	mu        sync.Mutex
	cancelled map[string]bool
}

// Cancel requests a cooperative stop of the run identified by the
// correlation id. The pipeline honors it at the next chunk boundary.
func (p *Pipeline) Cancel(correlationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled == nil {
		p.cancelled = make(map[string]bool)
	}
	p.cancelled[correlationID] = true
}

func (p *Pipeline) isCancelled(correlationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled[correlationID]
}

func (p *Pipeline) clearCancel(correlationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancelled, correlationID)
}

// Run loads one dataset. Returned errors describe infrastructure failures;
// data-level problems are absorbed into the dataset's import summary.
func (p *Pipeline) Run(ctx context.Context, correlationID string, req Request) error {
	start := time.Now()
	defer p.clearCancel(correlationID)

	if err := p.Meta.StartJob(ctx, correlationID); err != nil {
		return fmt.Errorf("start job: %w", err)
	}

	t, err := p.load(req)
	if err != nil {
		p.fail(ctx, correlationID, req, 0, fmt.Sprintf("load file: %v", err))
		return fmt.Errorf("load file: %w", err)
	}

	t = t.Select(req.SelectedColumns)
	t.DropEmptyRows()
	total := len(t.Rows)

	if err := p.Meta.SetDatasetRowCount(ctx, req.DatasetID, int64(total)); err != nil {
		p.logf("dataset=%s set row count failed: %v", req.DatasetID, err)
	}
	if total == 0 {
		p.fail(ctx, correlationID, req, 0, "file contains no data rows")
		return nil
	}

	chunks := (total + BatchSize - 1) / BatchSize
	sink := p.metrics()

	var (
		inserted  int64
		chunkErrs []string
	)
	for i := 0; i < chunks; i++ {
		if p.isCancelled(correlationID) || ctx.Err() != nil {
			p.cancel(ctx, correlationID, req, inserted)
			return nil
		}

		lo := i * BatchSize
		hi := lo + BatchSize
		if hi > total {
			hi = total
		}

		batch := p.typedRows(t, lo, hi, req.Types)
		n, errs := p.Tables.InsertBatch(ctx, req.TableName, batch, req.Mapping)
		inserted += int64(n)

		if len(errs) > 0 {
			sink.IncCounter(metrics.BatchesTotal, 1, map[string]string{"outcome": "failed"})
			for _, e := range errs {
				p.logf("dataset=%s chunk=%d/%d error: %s", req.DatasetID, i+1, chunks, e)
				if len(chunkErrs) < maxStoredErrors {
					chunkErrs = append(chunkErrs, fmt.Sprintf("chunk %d: %s", i+1, e))
				}
			}
		} else {
			sink.IncCounter(metrics.BatchesTotal, 1, map[string]string{"outcome": "ok"})
		}

		// Step counters are row positions, not chunk indexes: one update
		// per chunk, with current at the last row the chunk covered.
		msg := "Imported " + strconv.FormatInt(inserted, 10) + " of " + strconv.Itoa(total) + " rows"
		if err := p.Meta.UpdateJobProgress(ctx, correlationID, hi, total, msg); err != nil {
			p.logf("job=%s progress update failed: %v", correlationID, err)
		}
		if err := p.Meta.UpdateDatasetProgress(ctx, req.DatasetID, inserted); err != nil {
			p.logf("dataset=%s progress update failed: %v", req.DatasetID, err)
		}
	}

	sink.IncCounter(metrics.RowsTotal, float64(inserted), map[string]string{"outcome": "imported"})
	if failed := int64(total) - inserted; failed > 0 {
		sink.IncCounter(metrics.RowsTotal, float64(failed), map[string]string{"outcome": "failed"})
	}

	if inserted == 0 {
		p.fail(ctx, correlationID, req, 0, joinErrors(chunkErrs))
		return nil
	}

	detail := ""
	if len(chunkErrs) > 0 {
		detail = joinErrors(chunkErrs)
	}
	if err := p.Meta.FinalizeDataset(ctx, req.DatasetID, meta.DatasetActive, inserted, detail); err != nil {
		p.logf("dataset=%s finalize failed: %v", req.DatasetID, err)
	}
	if err := p.Meta.FinishJob(ctx, correlationID, meta.JobCompleted, detail); err != nil {
		p.logf("job=%s finish failed: %v", correlationID, err)
	}
	p.cleanupStaged(ctx, req)

	sink.ObserveHistogram(metrics.ImportDurationSeconds,
		time.Since(start).Seconds(), map[string]string{"status": "completed"})
	p.logf("dataset=%s table=%s ok rows=%d/%d chunks=%d duration=%s",
		req.DatasetID, req.TableName, inserted, total, chunks, time.Since(start).Round(time.Millisecond))
	return nil
}

func (p *Pipeline) load(req Request) (*tabular.Table, error) {
	loader := p.Load
	if loader == nil {
		loader = tabular.Load
	}
	return loader(req.Path, req.Kind)
}

// typedRows converts the raw string cells of rows [lo, hi) into values of
// the column's inferred type, keyed by original column name.
func (p *Pipeline) typedRows(t *tabular.Table, lo, hi int, types map[string]schema.ColumnType) []map[string]any {
	out := make([]map[string]any, 0, hi-lo)
	for i := lo; i < hi; i++ {
		row := make(map[string]any, len(t.Columns))
		for j, col := range t.Columns {
			row[col] = convertCell(t.Rows[i][j], types[col])
		}
		out = append(out, row)
	}
	return out
}

// convertCell coerces one raw cell to its column type. Unconvertible
// values become NULL rather than failing the chunk; the width of the
// inferred type already tolerated a malformed minority.
func convertCell(raw string, typ schema.ColumnType) any {
	if isNullLike(raw) {
		return nil
	}
	switch typ.Kind {
	case schema.KindInteger:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int64(f)) {
			return int64(f)
		}
		return nil
	case schema.KindDecimal:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return nil
	case schema.KindBoolean:
		if b, ok := inference.ParseBool(raw); ok {
			return b
		}
		return nil
	case schema.KindTimestamp, schema.KindDate:
		if t, ok := inference.ParseTime(raw); ok {
			return t
		}
		return nil
	default:
		return raw
	}
}

var nullLike = map[string]struct{}{
	"": {}, "null": {}, "none": {}, "nan": {}, "n/a": {}, "na": {},
}

func isNullLike(v string) bool {
	_, ok := nullLike[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

func (p *Pipeline) fail(ctx context.Context, correlationID string, req Request, inserted int64, detail string) {
	if detail == "" {
		detail = "import failed"
	}
	if err := p.Meta.FinalizeDataset(ctx, req.DatasetID, meta.DatasetFailed, inserted, detail); err != nil {
		p.logf("dataset=%s finalize failed: %v", req.DatasetID, err)
	}
	if err := p.Meta.FinishJob(ctx, correlationID, meta.JobFailed, detail); err != nil {
		p.logf("job=%s finish failed: %v", correlationID, err)
	}
	p.metrics().ObserveHistogram(metrics.ImportDurationSeconds, 0, map[string]string{"status": "failed"})
	p.logf("dataset=%s table=%s failed: %s", req.DatasetID, req.TableName, detail)
}

func (p *Pipeline) cancel(ctx context.Context, correlationID string, req Request, inserted int64) {
	const detail = "import cancelled"
	if err := p.Meta.FinalizeDataset(ctx, req.DatasetID, meta.DatasetFailed, inserted, detail); err != nil {
		p.logf("dataset=%s finalize failed: %v", req.DatasetID, err)
	}
	if err := p.Meta.FinishJob(ctx, correlationID, meta.JobCancelled, detail); err != nil {
		p.logf("job=%s finish failed: %v", correlationID, err)
	}
	p.logf("dataset=%s table=%s cancelled after %d rows", req.DatasetID, req.TableName, inserted)
}

// cleanupStaged removes the staged file and its record once the data is in
// the table. Failures are logged and swallowed: the import already
// succeeded.
func (p *Pipeline) cleanupStaged(ctx context.Context, req Request) {
	if p.Files != nil && req.Path != "" {
		if err := p.Files.Remove(req.Path); err != nil {
			p.logf("upload=%s remove staged file: %v", req.UploadID, err)
		}
	}
	if req.UploadID != "" {
		if err := p.Meta.DeleteStagedUpload(ctx, req.UploadID, req.UserID); err != nil {
			p.logf("upload=%s delete staged record: %v", req.UploadID, err)
		}
	}
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "no rows imported"
	}
	return strings.Join(errs, "; ")
}

func (p *Pipeline) metrics() metrics.Backend {
	if p.Metrics != nil {
		return p.Metrics
	}
	return metrics.Nop{}
}

func (p *Pipeline) logf(format string, v ...any) {
	if p.Logger != nil {
		p.Logger.Printf(format, v...)
	}
}
