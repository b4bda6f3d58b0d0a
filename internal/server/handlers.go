package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"

	"docent/constants"
	"docent/internal/common"
	"docent/internal/export"
	"docent/internal/ner"
	processor "docent/internal/pipeline"
	"docent/internal/repository"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context(), 2*time.Second); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "degraded",
			"database": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"database": "up",
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := s.metrics.get()

	writeJSON(w, http.StatusOK, map[string]any{
		"active_requests": active,
		"total_requests":  total,
		"goroutines":      runtime.NumGoroutine(),
		"mem_alloc_mb":    m.Alloc / (1 << 20),
		"mem_sys_mb":      m.Sys / (1 << 20),
	})
}

type extractRequest struct {
	Text     string `json:"text"`
	Mode     string `json:"mode,omitempty"`
	Language string `json:"language,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type extractResponse struct {
	Mode        string                          `json:"mode"`
	Language    string                          `json:"language,omitempty"`
	Entities    map[constants.Category][]string `json:"entities"`
	NeedsReview bool                            `json:"needs_review,omitempty"`
	Error       string                          `json:"error,omitempty"`
}

// handleExtract runs entity extraction over text supplied in the request
// body, without touching storage.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[extractRequest](r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	v := common.NewValidator()
	v.Field("text", req.Text, common.Required)
	if v.HasErrors() {
		writeErr(w, http.StatusBadRequest, "validation_failed", v.ErrorMessage())
		return
	}
	mode, ok := constants.ParseMode(req.Mode)
	if !ok {
		writeErr(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("unknown mode: %q", req.Mode))
		return
	}

	cleaned := ner.Clean(req.Text)
	language := req.Language
	if language == "" {
		language = ner.DetectLanguage(cleaned)
	}

	result, _, needsReview, err := processor.ExtractFromText(
		r.Context(), s.logger, s.extractor, cleaned, mode, language, req.Filename)
	if err != nil {
		// Failure policy: the marker result with empty lists is the payload.
		marker := ner.EmptyResult(err.Error())
		writeJSON(w, http.StatusBadGateway, extractResponse{
			Mode:     string(mode),
			Language: language,
			Entities: marker.Entities,
			Error:    marker.Err,
		})
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{
		Mode:        string(mode),
		Language:    result.Language,
		Entities:    result.Entities,
		NeedsReview: needsReview,
		Error:       result.Err,
	})
}

type ingestRequest struct {
	Path    string `json:"path"`
	Mode    string `json:"mode,omitempty"`
	Process *bool  `json:"process,omitempty"` // default true
}

type ingestItem struct {
	SourcePath   string `json:"source_path"`
	DocumentID   string `json:"document_id,omitempty"`
	JobID        string `json:"job_id,omitempty"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
	Error        string `json:"error,omitempty"`
}

// handleIngest registers a file or directory from the server's filesystem and
// by default runs the pipeline for each new document.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[ingestRequest](r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	v := common.NewValidator()
	v.Field("path", req.Path, common.Required)
	if v.HasErrors() {
		writeErr(w, http.StatusBadRequest, "validation_failed", v.ErrorMessage())
		return
	}
	mode, ok := constants.ParseMode(req.Mode)
	if !ok {
		writeErr(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("unknown mode: %q", req.Mode))
		return
	}
	process := req.Process == nil || *req.Process

	st, err := os.Stat(req.Path)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_path", err.Error())
		return
	}

	ctx := r.Context()
	s.logger.Info("ingest.request",
		"req_id", common.RequestIDFromContext(ctx),
		"path", req.Path, "mode", string(mode), "process", process,
	)
	var items []ingestItem

	if st.IsDir() {
		results, stats, err := s.ingestor.IngestDirectory(ctx, req.Path, true)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "ingest_failed", err.Error())
			return
		}
		for _, res := range results {
			item := ingestItem{
				SourcePath:   res.SourcePath,
				DocumentID:   res.DocumentID,
				Deduplicated: res.Deduplicated,
				Error:        res.Err,
			}
			if process && res.Err == "" {
				item.JobID, item.Error = s.processByID(r, res.DocumentID, mode)
			}
			items = append(items, item)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"stats": stats,
			"items": items,
		})
		return
	}

	res, err := s.ingestor.IngestPath(ctx, req.Path)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "ingest_failed", err.Error())
		return
	}
	item := ingestItem{
		SourcePath:   res.SourcePath,
		DocumentID:   res.DocumentID,
		Deduplicated: res.Deduplicated,
	}
	if process {
		item.JobID, item.Error = s.processByID(r, res.DocumentID, mode)
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) processByID(r *http.Request, documentID string, mode constants.Mode) (jobID, errMsg string) {
	id, err := uuid.Parse(documentID)
	if err != nil {
		return "", err.Error()
	}
	jid, _, err := s.processor.ProcessDocument(r.Context(), id, mode)
	if err != nil {
		return jid.String(), err.Error()
	}
	return jid.String(), ""
}

type documentJSON struct {
	ID          string `json:"id"`
	SourcePath  string `json:"source_path"`
	Filename    string `json:"filename"`
	FileExt     string `json:"file_ext"`
	FileSize    int64  `json:"file_size"`
	ContentHash string `json:"content_hash"`
	UploadedAt  string `json:"uploaded_at"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = n
	}

	docs, err := s.documents.List(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	out := make([]documentJSON, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentJSON{
			ID:          d.ID.String(),
			SourcePath:  d.SourcePath,
			Filename:    d.Filename,
			FileExt:     d.FileExt,
			FileSize:    d.FileSize,
			ContentHash: d.ContentHash,
			UploadedAt:  d.UploadedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) pathDocumentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "validation_failed", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

type resultResponse struct {
	DocumentID string                          `json:"document_id"`
	JobID      string                          `json:"job_id"`
	Language   string                          `json:"language,omitempty"`
	Entities   map[constants.Category][]string `json:"entities"`
	Error      string                          `json:"error,omitempty"`
	CreatedAt  string                          `json:"created_at"`
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathDocumentID(w, r)
	if !ok {
		return
	}

	res, err := s.results.GetLatestByDocument(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "not_found", "no result for document")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "load_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resultResponse{
		DocumentID: res.DocumentID.String(),
		JobID:      res.JobID.String(),
		Language:   res.Result.Language,
		Entities:   res.Result.Entities,
		Error:      res.Result.Err,
		CreatedAt:  res.CreatedAt.UTC().Format(time.RFC3339),
	})
}

type jobJSON struct {
	ID          string `json:"id"`
	Mode        string `json:"mode"`
	Status      string `json:"status"`
	Language    string `json:"language,omitempty"`
	NeedsReview bool   `json:"needs_review"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathDocumentID(w, r)
	if !ok {
		return
	}

	jobs, err := s.jobs.ListByDocument(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	out := make([]jobJSON, 0, len(jobs))
	for _, j := range jobs {
		jj := jobJSON{
			ID:          j.ID.String(),
			Mode:        string(j.Mode),
			Status:      string(j.Status),
			Language:    j.Language,
			NeedsReview: j.NeedsReview,
			Error:       j.Error,
			CreatedAt:   j.CreatedAt.UTC().Format(time.RFC3339),
		}
		if !j.FinishedAt.IsZero() {
			jj.FinishedAt = j.FinishedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, jj)
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathDocumentID(w, r)
	if !ok {
		return
	}
	format, ok := export.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		writeErr(w, http.StatusBadRequest, "validation_failed", "format must be json, csv, or xlsx")
		return
	}

	out, err := s.exporter.ExportDocument(r.Context(), id, format)
	if errors.Is(err, repository.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "not_found", "no result for document")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "export_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "docent-"+id.String()+"."+string(format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
