package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"docent/constants"
	"docent/internal/common"
	"docent/internal/export"
	"docent/internal/ingest"
	"docent/internal/llm"
	processor "docent/internal/pipeline"
	"docent/internal/repository"
)

func newTestServer(t *testing.T, cfg common.ServerConfig, extractor llm.EntityExtractor) *Server {
	t.Helper()
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	require.NoError(t, db.Migrate(ctx))

	docs := repository.NewDocumentRepository(db, nil)
	jobs := repository.NewJobRepository(db, nil)
	results := repository.NewResultRepository(db, nil)

	ingestor := ingest.NewFSIngestor(docs, nil)
	textStage := processor.NewTextStage(docs, jobs, ingest.NewExtractor(ingest.ExtractorConfig{}, nil), nil)
	entityStage := processor.NewEntityStage(nil, jobs, results, docs, extractor)
	proc := processor.NewProcessor(nil, textStage, entityStage)
	exporter := export.NewService(results, docs, nil)

	return New(cfg, nil, db, docs, jobs, results, ingestor, proc, exporter, extractor)
}

func postJSON(t *testing.T, h http.Handler, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, common.ServerConfig{}, nil).Handler()

	rec := get(t, h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMetrics(t *testing.T) {
	h := newTestServer(t, common.ServerConfig{}, nil).Handler()

	rec := postJSON(t, h, "/v1/extract", extractRequest{Text: "x"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 1, body["total_requests"])
	require.EqualValues(t, 0, body["active_requests"])
}

func TestExtractRegex(t *testing.T) {
	h := newTestServer(t, common.ServerConfig{}, nil).Handler()

	rec := postJSON(t, h, "/v1/extract", extractRequest{
		Text: "Call 555-123-4567 before 14:30.",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body extractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "regex", body.Mode)
	require.Equal(t, []string{"555-123-4567"}, body.Entities[constants.Phone])
	require.Equal(t, []string{"14:30"}, body.Entities[constants.Time])
	require.Empty(t, body.Error)
}

func TestExtractUnknownMode(t *testing.T) {
	h := newTestServer(t, common.ServerConfig{}, nil).Handler()

	rec := postJSON(t, h, "/v1/extract", extractRequest{Text: "x", Mode: "magic"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractLLMFailureMarker(t *testing.T) {
	failing := &llm.MockExtractor{
		ExtractFunc: func(ctx context.Context, req llm.ExtractRequest) ([]llm.Extraction, []byte, error) {
			return nil, nil, context.DeadlineExceeded
		},
	}
	h := newTestServer(t, common.ServerConfig{}, failing).Handler()

	rec := postJSON(t, h, "/v1/extract", extractRequest{Text: "some text", Mode: "llm"}, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body extractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Error)
	for cat, list := range body.Entities {
		require.Empty(t, list, "category %s should be empty", cat)
	}
}

func TestInternalAuth(t *testing.T) {
	h := newTestServer(t, common.ServerConfig{InternalAPIKey: "sekrit"}, nil).Handler()

	rec := postJSON(t, h, "/v1/extract", extractRequest{Text: "x"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h, "/v1/extract", extractRequest{Text: "x"},
		map[string]string{"X-Internal-Auth": "sekrit"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, common.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1}, nil).Handler()

	rec := postJSON(t, h, "/v1/extract", extractRequest{Text: "x"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h, "/v1/extract", extractRequest{Text: "x"}, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestIngestAndResultAndExport(t *testing.T) {
	h := newTestServer(t, common.ServerConfig{}, nil).Handler()

	dir := t.TempDir()
	path := filepath.Join(dir, "memo.txt")
	require.NoError(t, os.WriteFile(path, []byte("Meeting with Mrs. Sarah Johnson at 14:30."), 0o600))

	rec := postJSON(t, h, "/v1/documents", ingestRequest{Path: path}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var item ingestItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	require.NotEmpty(t, item.DocumentID)
	require.NotEmpty(t, item.JobID)
	require.Empty(t, item.Error)

	rec = get(t, h, "/v1/documents/"+item.DocumentID+"/result")
	require.Equal(t, http.StatusOK, rec.Code)

	var res resultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, item.DocumentID, res.DocumentID)
	require.Contains(t, res.Entities[constants.Name], "Sarah Johnson")

	rec = get(t, h, "/v1/documents/"+item.DocumentID+"/export?format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, rec.Body.String(), "Sarah Johnson")

	rec = get(t, h, "/v1/documents/"+item.DocumentID+"/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"DONE"`)

	rec = get(t, h, "/v1/documents?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "memo.txt")
}

func TestResultNotFound(t *testing.T) {
	h := newTestServer(t, common.ServerConfig{}, nil).Handler()

	rec := get(t, h, "/v1/documents/6a6f3c3e-8a55-4d0e-9a38-000000000000/result")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/v1/documents/not-a-uuid/result")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
