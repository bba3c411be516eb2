// Package api exposes the ingestion workflow over HTTP. Handlers are thin:
// they translate requests into service calls and service errors into
// status codes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dataloft/internal/classify"
	"dataloft/internal/meta"
	"dataloft/internal/store"
	"dataloft/internal/upload"
)

// userHeader carries the caller identity. Authentication itself lives in
// front of this service.
const userHeader = "X-User-ID"

// Logger is the minimal logging seam. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Server wires the handlers.
type Server struct {
	Uploads    *upload.Service
	Meta       upload.Metadata
	Tables     store.Store
	Classifier *classify.Classifier
	Logger     Logger
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/uploads", func(r chi.Router) {
		r.Post("/", s.handleStage)
		r.Post("/{uploadID}/confirm", s.handleConfirm)
		r.Delete("/{uploadID}", s.handleDiscard)
	})
	r.Route("/datasets", func(r chi.Router) {
		r.Get("/{datasetID}/progress", s.handleProgress)
		r.Get("/{datasetID}/preview", s.handlePreview)
		r.Post("/{datasetID}/validate-headers", s.handleValidateHeaders)
		r.Post("/{datasetID}/retry", s.handleRetry)
		r.Delete("/{datasetID}", s.handleDelete)
	})
	return r
}

func userID(r *http.Request) string {
	if id := r.Header.Get(userHeader); id != "" {
		return id
	}
	return "anonymous"
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer f.Close()

	up, err := s.Uploads.Stage(r.Context(), userID(r), hdr.Filename, f)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"upload_id":         up.ID,
		"original_filename": up.OriginalFilename,
		"size_bytes":        up.SizeBytes,
		"kind":              up.Kind,
		"status":            up.Status,
		"preview":           up.Preview,
		"findings":          up.Findings,
		"expires_at":        up.ExpiresAt,
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName     string   `json:"display_name"`
		SelectedColumns []string `json:"selected_columns"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.Uploads.Confirm(r.Context(), userID(r), chi.URLParam(r, "uploadID"), upload.ConfirmRequest{
		DisplayName:     body.DisplayName,
		SelectedColumns: body.SelectedColumns,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"dataset_id":     res.Dataset.ID,
		"table_name":     res.Dataset.TableName,
		"column_mapping": res.Dataset.ColumnMapping,
		"column_types":   res.Dataset.ColumnTypes,
		"row_count":      res.Dataset.RowCount,
		"status":         res.Dataset.Status,
		"correlation_id": res.CorrelationID,
	})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.Uploads.Discard(r.Context(), userID(r), chi.URLParam(r, "uploadID")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ds, err := s.Meta.GetDataset(ctx, chi.URLParam(r, "datasetID"), userID(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := map[string]any{
		"dataset_id":    ds.ID,
		"status":        ds.Status,
		"row_count":     ds.RowCount,
		"imported_rows": ds.ImportedRows,
		"error_detail":  ds.ErrorDetail,
	}
	if ds.JobID != "" {
		if job, err := s.Meta.GetImportJob(ctx, ds.JobID); err == nil {
			resp["job"] = map[string]any{
				"correlation_id": job.CorrelationID,
				"status":         job.Status,
				"current_step":   job.CurrentStep,
				"total_steps":    job.TotalSteps,
				"message":        job.Message,
			}
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ds, err := s.Meta.GetDataset(ctx, chi.URLParam(r, "datasetID"), userID(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	columns, rows, err := s.Tables.Preview(ctx, ds.TableName, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "preview failed")
		s.logf("dataset=%s preview: %v", ds.ID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"dataset_id": ds.ID,
		"columns":    columns,
		"rows":       rows,
	})
}

// handleValidateHeaders serves the stored per-role verdicts when the
// dataset has them; the first request, and every request with force=true,
// classifies the headers and replaces the stored set wholesale.
func (s *Server) handleValidateHeaders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ds, err := s.Meta.GetDataset(ctx, chi.URLParam(r, "datasetID"), userID(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"

	var report classify.Report
	recomputed := true
	if !force {
		recs, err := s.Meta.GetHeaderClassifications(ctx, ds.ID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if len(recs) > 0 {
			report = s.Classifier.Summarize(storedMatches(recs))
			recomputed = false
		}
	}
	if recomputed {
		report = s.Classifier.Classify(ds.SelectedColumns)
		if err := s.Meta.ReplaceHeaderClassifications(ctx, ds.ID, classificationRecords(ds.ID, report)); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}

	status := http.StatusOK
	if !report.ValidationSuccess {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, map[string]any{
		"dataset_id": ds.ID,
		"recomputed": recomputed,
		"report":     report,
	})
}

// classificationRecords flattens a report into one record per role.
func classificationRecords(datasetID string, rep classify.Report) []meta.HeaderClassification {
	now := time.Now().UTC()
	out := make([]meta.HeaderClassification, 0, len(rep.Matches))
	for _, m := range rep.Matches {
		out = append(out, meta.HeaderClassification{
			DatasetID: datasetID,
			Role:      m.Role,
			Column:    m.Column,
			Score:     m.Score,
			MatchedOn: m.MatchedOn,
			Method:    m.Method,
			Found:     m.Found,
			Required:  m.Required,
			Threshold: m.Threshold,
			CreatedAt: now,
		})
	}
	return out
}

func storedMatches(recs []meta.HeaderClassification) map[string]classify.Match {
	out := make(map[string]classify.Match, len(recs))
	for _, h := range recs {
		out[h.Role] = classify.Match{
			Role:      h.Role,
			Column:    h.Column,
			Score:     h.Score,
			MatchedOn: h.MatchedOn,
			Method:    h.Method,
			Found:     h.Found,
			Required:  h.Required,
			Threshold: h.Threshold,
		}
	}
	return out
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	res, err := s.Uploads.RetryImport(r.Context(), userID(r), chi.URLParam(r, "datasetID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"dataset_id":     res.Dataset.ID,
		"status":         res.Dataset.Status,
		"correlation_id": res.CorrelationID,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.Uploads.DeleteDataset(r.Context(), userID(r), chi.URLParam(r, "datasetID")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* ---------- response helpers ---------- */

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{"data": payload}); err != nil {
		s.logf("write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"status": status, "message": message},
	})
}

// writeServiceError maps domain errors onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, meta.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, meta.ErrExpired):
		s.writeError(w, http.StatusGone, "staged upload has expired")
	case errors.Is(err, meta.ErrConflict):
		s.writeError(w, http.StatusConflict, "operation conflicts with the record's current state")
	case errors.Is(err, upload.ErrTooLarge):
		s.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, upload.ErrUnsupportedType):
		s.writeError(w, http.StatusUnsupportedMediaType, "only .csv, .xlsx and .xls files are supported")
	default:
		s.writeError(w, http.StatusInternalServerError, "internal error")
		s.logf("request failed: %v", err)
	}
}

func (s *Server) logf(format string, v ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, v...)
	}
}
