package meta

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T, driver Driver) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db, driver), mock
}

func TestRebind(t *testing.T) {
	t.Parallel()

	pg := &Repository{driver: DriverPostgres}
	got := pg.rebind("UPDATE t SET a = ?, b = ? WHERE id = ?")
	want := "UPDATE t SET a = $1, b = $2 WHERE id = $3"
	if got != want {
		t.Fatalf("rebind = %q, want %q", got, want)
	}

	lite := &Repository{driver: DriverSQLite}
	q := "SELECT * FROM t WHERE id = ?"
	if got := lite.rebind(q); got != q {
		t.Fatalf("sqlite rebind changed the query: %q", got)
	}
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "?"},
		{3, "?, ?, ?"},
	}
	for _, tc := range cases {
		if got := placeholders(tc.n); got != tc.want {
			t.Fatalf("placeholders(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestConfirmedClause(t *testing.T) {
	t.Parallel()

	if got := confirmedClause(UploadConfirmed); got != ", confirmed_at = CURRENT_TIMESTAMP" {
		t.Fatalf("got %q", got)
	}
	if got := confirmedClause(UploadFailed); got != "" {
		t.Fatalf("non-confirmed transition stamped confirmed_at: %q", got)
	}
}

func TestTransitionUpload_WrongStateIsConflict(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	mock.ExpectExec("UPDATE dataloft_staged_uploads").
		WithArgs(UploadConfirmed, "u1", UploadUploaded, UploadValidated).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM dataloft_staged_uploads").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := repo.TransitionUpload(context.Background(), "u1",
		[]string{UploadUploaded, UploadValidated}, UploadConfirmed)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionUpload_MissingRowIsNotFound(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	mock.ExpectExec("UPDATE dataloft_staged_uploads").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM dataloft_staged_uploads").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := repo.TransitionUpload(context.Background(), "missing",
		[]string{UploadValidated}, UploadConfirmed)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTransitionUpload_Succeeds(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	mock.ExpectExec("UPDATE dataloft_staged_uploads").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.TransitionUpload(context.Background(), "u1",
		[]string{UploadValidated}, UploadProcessing)
	if err != nil {
		t.Fatalf("TransitionUpload: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetStagedUpload_PastTTLReturnsExpired(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	created := time.Now().Add(-2 * time.Hour)
	expires := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "original_filename", "stored_path", "size_bytes",
		"kind", "status", "preview_json", "findings_json",
		"created_at", "expires_at", "confirmed_at",
	}).AddRow("u1", "42", "sales.csv", "/staging/u1.csv", int64(1024),
		"csv", UploadValidated, nil, nil, created, expires, nil)

	mock.ExpectQuery("SELECT (.+) FROM dataloft_staged_uploads").
		WithArgs("u1", "42").
		WillReturnRows(rows)

	u, err := repo.GetStagedUpload(context.Background(), "u1", "42")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
	if u == nil || u.StoredPath != "/staging/u1.csv" {
		t.Fatalf("expired record not returned alongside the error: %+v", u)
	}
}

func TestGetStagedUpload_ConfirmedIgnoresTTL(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	created := time.Now().Add(-3 * time.Hour)
	expires := time.Now().Add(-2 * time.Hour)
	confirmed := time.Now().Add(-90 * time.Minute)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "original_filename", "stored_path", "size_bytes",
		"kind", "status", "preview_json", "findings_json",
		"created_at", "expires_at", "confirmed_at",
	}).AddRow("u1", "42", "sales.csv", "/staging/u1.csv", int64(1024),
		"csv", UploadConfirmed, nil, nil, created, expires, confirmed)

	mock.ExpectQuery("SELECT (.+) FROM dataloft_staged_uploads").
		WillReturnRows(rows)

	if _, err := repo.GetStagedUpload(context.Background(), "u1", "42"); err != nil {
		t.Fatalf("confirmed upload reported as expired: %v", err)
	}
}

func TestGetDataset_DecodesJSONColumns(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "upload_id", "display_name", "original_filename", "table_name",
		"selected_columns_json", "column_mapping_json", "column_types_json",
		"row_count", "imported_rows", "status", "error_detail", "job_id",
		"created_at", "imported_at",
	}).AddRow("d1", "42", "u1", "Sales", "sales.csv", "user_42_sales_20240315_103045",
		`["Order Date","Revenue"]`,
		`{"Order Date":"order_date","Revenue":"revenue"}`,
		`{"order_date":"DATE","revenue":"DECIMAL(15,6)"}`,
		int64(100), int64(100), DatasetActive, "", "corr-1",
		time.Now(), time.Now())

	mock.ExpectQuery("SELECT (.+) FROM dataloft_datasets").
		WithArgs("d1", "42").
		WillReturnRows(rows)

	d, err := repo.GetDataset(context.Background(), "d1", "42")
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if len(d.SelectedColumns) != 2 || d.SelectedColumns[0] != "Order Date" {
		t.Fatalf("selected columns = %v", d.SelectedColumns)
	}
	if d.ColumnMapping["Revenue"] != "revenue" {
		t.Fatalf("mapping = %v", d.ColumnMapping)
	}
	if typ, ok := d.ColumnTypes["revenue"]; !ok || typ.Precision != 15 {
		t.Fatalf("types = %v", d.ColumnTypes)
	}
}

func TestDeleteDataset_MissingRowIsNotFound(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	mock.ExpectExec("DELETE FROM dataloft_datasets").
		WithArgs("missing", "42").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteDataset(context.Background(), "missing", "42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFinalizeDataset_OnlyFromImporting(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	mock.ExpectExec("UPDATE dataloft_datasets").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM dataloft_datasets").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := repo.FinalizeDataset(context.Background(), "d1", DatasetActive, 100, "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestStartJob_PendingToRunning(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	mock.ExpectExec("UPDATE dataloft_import_jobs").
		WithArgs(JobRunning, "corr-1", JobPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.StartJob(context.Background(), "corr-1"); err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFinishJob_TerminalJobConflicts(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	mock.ExpectExec("UPDATE dataloft_import_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM dataloft_import_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := repo.FinishJob(context.Background(), "corr-1", JobCompleted, "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestExpireStale_ReturnsReclaimablePaths(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	now := time.Now()
	mock.ExpectQuery("SELECT id, stored_path").
		WithArgs(now, UploadUploaded, UploadValidated).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stored_path"}).
			AddRow("u1", "/staging/a.csv").
			AddRow("u2", "/staging/b.xlsx"))
	mock.ExpectExec("UPDATE dataloft_staged_uploads SET status").
		WithArgs(UploadExpired, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE dataloft_staged_uploads SET status").
		WithArgs(UploadExpired, "u2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	paths, err := repo.ExpireStale(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/staging/a.csv" || paths[1] != "/staging/b.xlsx" {
		t.Fatalf("paths = %v", paths)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPruneJobs_ReturnsCount(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec("DELETE FROM dataloft_import_jobs").
		WithArgs(JobCompleted, JobFailed, JobCancelled, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.PruneJobs(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PruneJobs: %v", err)
	}
	if n != 7 {
		t.Fatalf("pruned = %d, want 7", n)
	}
}

func TestPruneJobs_RowsAffectedErrorSurfaces(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec("DELETE FROM dataloft_import_jobs").
		WithArgs(JobCompleted, JobFailed, JobCancelled, cutoff).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows affected unsupported")))

	if _, err := repo.PruneJobs(context.Background(), cutoff); err == nil {
		t.Fatalf("expected an error when the driver cannot report rows affected")
	}
}

func TestReplaceHeaderClassifications_WholesaleInOneTx(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	now := time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC)
	recs := []HeaderClassification{
		{DatasetID: "d1", Role: "datetime", Column: "Order Date", Score: 100,
			MatchedOn: "order date", Method: "exact", Found: true, Required: true,
			Threshold: 75, CreatedAt: now},
		{DatasetID: "d1", Role: "revenue_sales", Required: true, Threshold: 75, CreatedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM dataloft_header_classifications").
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("INSERT INTO dataloft_header_classifications").
		WithArgs("d1", "datetime", "Order Date", 100, "order date", "exact", true, true, 75, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO dataloft_header_classifications").
		WithArgs("d1", "revenue_sales", "", 0, "", "", false, true, 75, now).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := repo.ReplaceHeaderClassifications(context.Background(), "d1", recs); err != nil {
		t.Fatalf("ReplaceHeaderClassifications: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetHeaderClassifications_ScansRoleRows(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	now := time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"dataset_id", "role", "column_name", "score",
		"matched_on", "method", "found", "required", "threshold", "created_at"}).
		AddRow("d1", "datetime", "Order Date", 100, "order date", "exact", true, true, 75, now).
		AddRow("d1", "revenue_sales", "", 0, "", "", false, true, 75, now)

	mock.ExpectQuery("SELECT (.+) FROM dataloft_header_classifications").
		WithArgs("d1").
		WillReturnRows(rows)

	recs, err := repo.GetHeaderClassifications(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetHeaderClassifications: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].Role != "datetime" || !recs[0].Found || recs[0].Column != "Order Date" {
		t.Fatalf("first record = %+v", recs[0])
	}
	if recs[1].Found {
		t.Fatalf("missing role scanned as found: %+v", recs[1])
	}
}

func TestDeleteDataset_RemovesStoredClassifications(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t, DriverSQLite)

	mock.ExpectExec("DELETE FROM dataloft_datasets").
		WithArgs("d1", "42").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM dataloft_header_classifications").
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	if err := repo.DeleteDataset(context.Background(), "d1", "42"); err != nil {
		t.Fatalf("DeleteDataset: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
