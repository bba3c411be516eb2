package meta

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dataloft/internal/schema"
	"dataloft/internal/tabular"
)

// Driver names the placeholder dialect of the underlying connection.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Repository stores workflow metadata on one SQL database.
type Repository struct {
	db     *sql.DB
	driver Driver
}

// NewRepository wraps an open database handle. The driver determines how
// ? placeholders are rebound before execution.
func NewRepository(db *sql.DB, driver Driver) *Repository {
	return &Repository{db: db, driver: driver}
}

// rebind rewrites ? placeholders into the driver's native form. Statements
// in this package never contain a literal question mark outside of
// placeholder position.
func (r *Repository) rebind(q string) string {
	if r.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *Repository) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, r.rebind(q), args...)
}

func (r *Repository) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, r.rebind(q), args...)
}

// EnsureSchema creates the metadata tables when they do not exist. The DDL
// sticks to types both supported dialects accept.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dataloft_staged_uploads (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			original_filename TEXT NOT NULL,
			stored_path TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			preview_json TEXT,
			findings_json TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			confirmed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS dataloft_datasets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			upload_id TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL,
			original_filename TEXT NOT NULL,
			table_name TEXT NOT NULL UNIQUE,
			selected_columns_json TEXT NOT NULL,
			column_mapping_json TEXT NOT NULL,
			column_types_json TEXT NOT NULL,
			row_count BIGINT NOT NULL DEFAULT 0,
			imported_rows BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_detail TEXT NOT NULL DEFAULT '',
			job_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			imported_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS dataloft_header_classifications (
			dataset_id TEXT NOT NULL,
			role TEXT NOT NULL,
			column_name TEXT NOT NULL DEFAULT '',
			score BIGINT NOT NULL DEFAULT 0,
			matched_on TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			found BOOLEAN NOT NULL DEFAULT FALSE,
			required BOOLEAN NOT NULL DEFAULT FALSE,
			threshold BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (dataset_id, role)
		)`,
		`CREATE TABLE IF NOT EXISTS dataloft_import_jobs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			dataset_id TEXT NOT NULL,
			correlation_id TEXT NOT NULL UNIQUE,
			task_name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step BIGINT NOT NULL DEFAULT 0,
			total_steps BIGINT NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			retry_count BIGINT NOT NULL DEFAULT 0,
			error_detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

/* ---------- staged uploads ---------- */

// CreateStagedUpload inserts a new staged upload record.
func (r *Repository) CreateStagedUpload(ctx context.Context, u *StagedUpload) error {
	var preview, findings sql.NullString
	if u.Preview != nil {
		b, err := json.Marshal(u.Preview)
		if err != nil {
			return fmt.Errorf("marshal preview: %w", err)
		}
		preview = sql.NullString{String: string(b), Valid: true}
	}
	if len(u.Findings) > 0 {
		b, err := json.Marshal(u.Findings)
		if err != nil {
			return fmt.Errorf("marshal findings: %w", err)
		}
		findings = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.exec(ctx, `INSERT INTO dataloft_staged_uploads
		(id, user_id, original_filename, stored_path, size_bytes, kind, status,
		 preview_json, findings_json, created_at, expires_at, confirmed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.UserID, u.OriginalFilename, u.StoredPath, u.SizeBytes,
		string(u.Kind), u.Status, preview, findings,
		u.CreatedAt, u.ExpiresAt, u.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("create staged upload: %w", err)
	}
	return nil
}

// GetStagedUpload fetches a staged upload by id, scoped to its owner.
// Returns ErrExpired for records past their TTL that have not been
// confirmed yet.
func (r *Repository) GetStagedUpload(ctx context.Context, id, userID string) (*StagedUpload, error) {
	row := r.queryRow(ctx, `SELECT id, user_id, original_filename, stored_path,
		size_bytes, kind, status, preview_json, findings_json,
		created_at, expires_at, confirmed_at
		FROM dataloft_staged_uploads WHERE id = ? AND user_id = ?`, id, userID)

	var (
		u        StagedUpload
		kind     string
		preview  sql.NullString
		findings sql.NullString
	)
	err := row.Scan(&u.ID, &u.UserID, &u.OriginalFilename, &u.StoredPath,
		&u.SizeBytes, &kind, &u.Status, &preview, &findings,
		&u.CreatedAt, &u.ExpiresAt, &u.ConfirmedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get staged upload: %w", err)
	}

	u.Kind = tabular.Kind(kind)
	if preview.Valid && preview.String != "" {
		var p tabular.Preview
		if err := json.Unmarshal([]byte(preview.String), &p); err != nil {
			return nil, fmt.Errorf("decode preview: %w", err)
		}
		u.Preview = &p
	}
	if findings.Valid && findings.String != "" {
		if err := json.Unmarshal([]byte(findings.String), &u.Findings); err != nil {
			return nil, fmt.Errorf("decode findings: %w", err)
		}
	}

	if u.Status != UploadConfirmed && u.Status != UploadProcessing && time.Now().After(u.ExpiresAt) {
		return &u, ErrExpired
	}
	return &u, nil
}

// TransitionUpload moves a staged upload from one of the allowed statuses
// to the target status. ErrConflict when the record is in any other state.
func (r *Repository) TransitionUpload(ctx context.Context, id string, from []string, to string) error {
	q := `UPDATE dataloft_staged_uploads SET status = ?` +
		confirmedClause(to) +
		` WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`

	args := make([]any, 0, len(from)+2)
	args = append(args, to, id)
	for _, f := range from {
		args = append(args, f)
	}

	res, err := r.exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("transition upload: %w", err)
	}
	return r.checkTransition(ctx, res, `SELECT COUNT(*) FROM dataloft_staged_uploads WHERE id = ?`, id)
}

// confirmedClause stamps confirmed_at when the transition lands on
// confirmed.
func confirmedClause(to string) string {
	if to == UploadConfirmed {
		return `, confirmed_at = CURRENT_TIMESTAMP`
	}
	return ""
}

// DeleteStagedUpload removes the record. Missing rows are not an error so
// discard is idempotent.
func (r *Repository) DeleteStagedUpload(ctx context.Context, id, userID string) error {
	_, err := r.exec(ctx, `DELETE FROM dataloft_staged_uploads WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete staged upload: %w", err)
	}
	return nil
}

// ExpireStale flips unconfirmed uploads past their TTL to expired and
// returns the stored paths of the files that can now be removed.
func (r *Repository) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT id, stored_path
		FROM dataloft_staged_uploads
		WHERE expires_at < ? AND status IN (?, ?)`),
		now, UploadUploaded, UploadValidated)
	if err != nil {
		return nil, fmt.Errorf("expire stale: %w", err)
	}
	defer rows.Close()

	var ids, paths []string
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("expire stale: %w", err)
		}
		ids = append(ids, id)
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expire stale: %w", err)
	}

	for _, id := range ids {
		if _, err := r.exec(ctx, `UPDATE dataloft_staged_uploads SET status = ? WHERE id = ?`,
			UploadExpired, id); err != nil {
			return nil, fmt.Errorf("expire stale: %w", err)
		}
	}
	return paths, nil
}

/* ---------- datasets ---------- */

// CreateDataset inserts a dataset record in importing state.
func (r *Repository) CreateDataset(ctx context.Context, d *Dataset) error {
	selected, err := json.Marshal(d.SelectedColumns)
	if err != nil {
		return fmt.Errorf("marshal selected columns: %w", err)
	}
	mapping, err := json.Marshal(d.ColumnMapping)
	if err != nil {
		return fmt.Errorf("marshal column mapping: %w", err)
	}
	types, err := json.Marshal(d.ColumnTypes)
	if err != nil {
		return fmt.Errorf("marshal column types: %w", err)
	}

	_, err = r.exec(ctx, `INSERT INTO dataloft_datasets
		(id, user_id, upload_id, display_name, original_filename, table_name,
		 selected_columns_json, column_mapping_json, column_types_json,
		 row_count, imported_rows, status, error_detail, job_id,
		 created_at, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.UploadID, d.DisplayName, d.OriginalFilename, d.TableName,
		string(selected), string(mapping), string(types),
		d.RowCount, d.ImportedRows, d.Status, d.ErrorDetail, d.JobID,
		d.CreatedAt, d.ImportedAt)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	return nil
}

// GetDataset fetches a dataset by id, scoped to its owner.
func (r *Repository) GetDataset(ctx context.Context, id, userID string) (*Dataset, error) {
	row := r.queryRow(ctx, `SELECT id, user_id, upload_id, display_name, original_filename,
		table_name, selected_columns_json, column_mapping_json, column_types_json,
		row_count, imported_rows, status, error_detail, job_id, created_at, imported_at
		FROM dataloft_datasets WHERE id = ? AND user_id = ?`, id, userID)
	return scanDataset(row)
}

func scanDataset(row *sql.Row) (*Dataset, error) {
	var (
		d        Dataset
		selected string
		mapping  string
		types    string
	)
	err := row.Scan(&d.ID, &d.UserID, &d.UploadID, &d.DisplayName, &d.OriginalFilename,
		&d.TableName, &selected, &mapping, &types,
		&d.RowCount, &d.ImportedRows, &d.Status, &d.ErrorDetail, &d.JobID,
		&d.CreatedAt, &d.ImportedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}

	if err := json.Unmarshal([]byte(selected), &d.SelectedColumns); err != nil {
		return nil, fmt.Errorf("decode selected columns: %w", err)
	}
	if err := json.Unmarshal([]byte(mapping), &d.ColumnMapping); err != nil {
		return nil, fmt.Errorf("decode column mapping: %w", err)
	}
	if err := json.Unmarshal([]byte(types), &d.ColumnTypes); err != nil {
		return nil, fmt.Errorf("decode column types: %w", err)
	}
	if d.ColumnTypes == nil {
		d.ColumnTypes = map[string]schema.ColumnType{}
	}
	return &d, nil
}

// SetDatasetRowCount stores the corrected expected row count, established
// once the file has been reloaded and empty rows dropped.
func (r *Repository) SetDatasetRowCount(ctx context.Context, id string, rowCount int64) error {
	_, err := r.exec(ctx, `UPDATE dataloft_datasets SET row_count = ? WHERE id = ?`,
		rowCount, id)
	if err != nil {
		return fmt.Errorf("set dataset row count: %w", err)
	}
	return nil
}

// UpdateDatasetProgress records how many rows have landed so far.
func (r *Repository) UpdateDatasetProgress(ctx context.Context, id string, importedRows int64) error {
	_, err := r.exec(ctx, `UPDATE dataloft_datasets SET imported_rows = ? WHERE id = ?`,
		importedRows, id)
	if err != nil {
		return fmt.Errorf("update dataset progress: %w", err)
	}
	return nil
}

// FinalizeDataset moves an importing dataset to its terminal import state
// and stamps the outcome. Only the importing state may be finalized.
func (r *Repository) FinalizeDataset(ctx context.Context, id, status string, importedRows int64, errorDetail string) error {
	var importedAt *time.Time
	if status == DatasetActive {
		t := time.Now().UTC()
		importedAt = &t
	}
	res, err := r.exec(ctx, `UPDATE dataloft_datasets
		SET status = ?, imported_rows = ?, error_detail = ?, imported_at = ?
		WHERE id = ? AND status = ?`,
		status, importedRows, errorDetail, importedAt, id, DatasetImporting)
	if err != nil {
		return fmt.Errorf("finalize dataset: %w", err)
	}
	return r.checkTransition(ctx, res, `SELECT COUNT(*) FROM dataloft_datasets WHERE id = ?`, id)
}

// MarkDatasetImporting gates re-runs: only failed datasets may go back to
// importing, and an active or already-importing dataset reports a conflict.
func (r *Repository) MarkDatasetImporting(ctx context.Context, id, jobID string) error {
	res, err := r.exec(ctx, `UPDATE dataloft_datasets
		SET status = ?, job_id = ?, error_detail = ''
		WHERE id = ? AND status = ?`,
		DatasetImporting, jobID, id, DatasetFailed)
	if err != nil {
		return fmt.Errorf("mark dataset importing: %w", err)
	}
	return r.checkTransition(ctx, res, `SELECT COUNT(*) FROM dataloft_datasets WHERE id = ?`, id)
}

// DeleteDataset removes the metadata row and its stored header
// classifications. The caller must have dropped the physical table first.
func (r *Repository) DeleteDataset(ctx context.Context, id, userID string) error {
	res, err := r.exec(ctx, `DELETE FROM dataloft_datasets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	if _, err := r.exec(ctx, `DELETE FROM dataloft_header_classifications WHERE dataset_id = ?`, id); err != nil {
		return fmt.Errorf("delete header classifications: %w", err)
	}
	return nil
}

/* ---------- header classifications ---------- */

// ReplaceHeaderClassifications rewrites the stored role verdicts for a
// dataset wholesale: delete plus insert in one transaction, one record per
// role.
func (r *Repository) ReplaceHeaderClassifications(ctx context.Context, datasetID string, recs []HeaderClassification) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace header classifications: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		r.rebind(`DELETE FROM dataloft_header_classifications WHERE dataset_id = ?`), datasetID); err != nil {
		return fmt.Errorf("replace header classifications: %w", err)
	}
	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx, r.rebind(`INSERT INTO dataloft_header_classifications
			(dataset_id, role, column_name, score, matched_on, method,
			 found, required, threshold, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			datasetID, rec.Role, rec.Column, rec.Score, rec.MatchedOn, rec.Method,
			rec.Found, rec.Required, rec.Threshold, rec.CreatedAt); err != nil {
			return fmt.Errorf("replace header classifications: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace header classifications: %w", err)
	}
	return nil
}

// GetHeaderClassifications returns the stored verdicts for a dataset, one
// per role. An empty slice means the dataset has never been validated.
func (r *Repository) GetHeaderClassifications(ctx context.Context, datasetID string) ([]HeaderClassification, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT dataset_id, role, column_name,
		score, matched_on, method, found, required, threshold, created_at
		FROM dataloft_header_classifications
		WHERE dataset_id = ? ORDER BY role`), datasetID)
	if err != nil {
		return nil, fmt.Errorf("get header classifications: %w", err)
	}
	defer rows.Close()

	var out []HeaderClassification
	for rows.Next() {
		var h HeaderClassification
		if err := rows.Scan(&h.DatasetID, &h.Role, &h.Column, &h.Score, &h.MatchedOn,
			&h.Method, &h.Found, &h.Required, &h.Threshold, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("get header classifications: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get header classifications: %w", err)
	}
	return out, nil
}

/* ---------- import jobs ---------- */

// CreateImportJob inserts a pending job.
func (r *Repository) CreateImportJob(ctx context.Context, j *ImportJob) error {
	_, err := r.exec(ctx, `INSERT INTO dataloft_import_jobs
		(id, user_id, dataset_id, correlation_id, task_name, status,
		 current_step, total_steps, message, retry_count, error_detail,
		 created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.UserID, j.DatasetID, j.CorrelationID, j.TaskName, j.Status,
		j.CurrentStep, j.TotalSteps, j.Message, j.RetryCount, j.ErrorDetail,
		j.CreatedAt, j.StartedAt, j.FinishedAt)
	if err != nil {
		return fmt.Errorf("create import job: %w", err)
	}
	return nil
}

// GetImportJob fetches a job by its correlation id.
func (r *Repository) GetImportJob(ctx context.Context, correlationID string) (*ImportJob, error) {
	row := r.queryRow(ctx, `SELECT id, user_id, dataset_id, correlation_id,
		task_name, status, current_step, total_steps, message, retry_count,
		error_detail, created_at, started_at, finished_at
		FROM dataloft_import_jobs WHERE correlation_id = ?`, correlationID)

	var j ImportJob
	err := row.Scan(&j.ID, &j.UserID, &j.DatasetID, &j.CorrelationID,
		&j.TaskName, &j.Status, &j.CurrentStep, &j.TotalSteps, &j.Message,
		&j.RetryCount, &j.ErrorDetail, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return &j, nil
}

// StartJob flips a pending job to running and stamps started_at.
func (r *Repository) StartJob(ctx context.Context, correlationID string) error {
	res, err := r.exec(ctx, `UPDATE dataloft_import_jobs
		SET status = ?, started_at = CURRENT_TIMESTAMP
		WHERE correlation_id = ? AND status = ?`,
		JobRunning, correlationID, JobPending)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	return r.checkTransition(ctx, res,
		`SELECT COUNT(*) FROM dataloft_import_jobs WHERE correlation_id = ?`, correlationID)
}

// UpdateJobProgress records the step counter and the human-readable message.
func (r *Repository) UpdateJobProgress(ctx context.Context, correlationID string, current, total int, message string) error {
	_, err := r.exec(ctx, `UPDATE dataloft_import_jobs
		SET current_step = ?, total_steps = ?, message = ?
		WHERE correlation_id = ?`,
		current, total, message, correlationID)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// FinishJob moves a running (or pending, for immediate failures) job into a
// terminal state.
func (r *Repository) FinishJob(ctx context.Context, correlationID, status, errorDetail string) error {
	res, err := r.exec(ctx, `UPDATE dataloft_import_jobs
		SET status = ?, error_detail = ?, finished_at = CURRENT_TIMESTAMP
		WHERE correlation_id = ? AND status IN (?, ?)`,
		status, errorDetail, correlationID, JobPending, JobRunning)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return r.checkTransition(ctx, res,
		`SELECT COUNT(*) FROM dataloft_import_jobs WHERE correlation_id = ?`, correlationID)
}

// ActiveJobForDataset returns the pending or running job for a dataset, or
// ErrNotFound when the dataset has no live job.
func (r *Repository) ActiveJobForDataset(ctx context.Context, datasetID string) (*ImportJob, error) {
	row := r.queryRow(ctx, `SELECT id, user_id, dataset_id, correlation_id,
		task_name, status, current_step, total_steps, message, retry_count,
		error_detail, created_at, started_at, finished_at
		FROM dataloft_import_jobs
		WHERE dataset_id = ? AND status IN (?, ?)`,
		datasetID, JobPending, JobRunning)

	var j ImportJob
	err := row.Scan(&j.ID, &j.UserID, &j.DatasetID, &j.CorrelationID,
		&j.TaskName, &j.Status, &j.CurrentStep, &j.TotalSteps, &j.Message,
		&j.RetryCount, &j.ErrorDetail, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active job for dataset: %w", err)
	}
	return &j, nil
}

// PruneJobs deletes terminal jobs finished before the cutoff and returns
// how many went away.
func (r *Repository) PruneJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.exec(ctx, `DELETE FROM dataloft_import_jobs
		WHERE status IN (?, ?, ?) AND finished_at < ?`,
		JobCompleted, JobFailed, JobCancelled, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return n, nil
}

/* ---------- helpers ---------- */

// checkTransition distinguishes "no such row" from "row in wrong state"
// after a guarded UPDATE touched nothing.
func (r *Repository) checkTransition(ctx context.Context, res sql.Result, countQuery string, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := r.queryRow(ctx, countQuery, id).Scan(&exists); err != nil {
		return fmt.Errorf("transition check: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
