// Package server exposes the HTTP API: raw-text extraction, document
// ingestion and processing, result retrieval, and export downloads.
package server

import (
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/semaphore"

	"docent/internal/common"
	"docent/internal/export"
	"docent/internal/ingest"
	"docent/internal/llm"
	processor "docent/internal/pipeline"
	"docent/internal/repository"
)

// Server wires the application services behind an http.Handler.
type Server struct {
	cfg    common.ServerConfig
	logger *slog.Logger

	db        *repository.DB
	documents repository.DocumentRepository
	jobs      repository.JobRepository
	results   repository.ResultRepository

	ingestor  *ingest.FSIngestor
	processor *processor.Processor
	exporter  *export.Service
	extractor llm.EntityExtractor // nil when no model provider is configured

	requestSem *semaphore.Weighted
	limiters   sync.Map // client IP -> *rate.Limiter
	metrics    serverMetrics
}

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}

func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}

func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

func New(
	cfg common.ServerConfig,
	logger *slog.Logger,
	db *repository.DB,
	documents repository.DocumentRepository,
	jobs repository.JobRepository,
	results repository.ResultRepository,
	ingestor *ingest.FSIngestor,
	proc *processor.Processor,
	exporter *export.Service,
	extractor llm.EntityExtractor,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	maxConc := cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 8
	}
	return &Server{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		documents:  documents,
		jobs:       jobs,
		results:    results,
		ingestor:   ingestor,
		processor:  proc,
		exporter:   exporter,
		extractor:  extractor,
		requestSem: semaphore.NewWeighted(maxConc),
	}
}

// Handler builds the route table with per-route middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.withInternalAuth(s.handleMetrics))

	mux.HandleFunc("POST /v1/extract",
		s.withInternalAuth(s.withRateLimit(s.withConcurrencyLimit(s.handleExtract))))

	mux.HandleFunc("POST /v1/documents",
		s.withInternalAuth(s.withRateLimit(s.withConcurrencyLimit(s.handleIngest))))

	mux.HandleFunc("GET /v1/documents",
		s.withInternalAuth(s.handleListDocuments))

	mux.HandleFunc("GET /v1/documents/{id}/result",
		s.withInternalAuth(s.handleResult))

	mux.HandleFunc("GET /v1/documents/{id}/jobs",
		s.withInternalAuth(s.handleJobs))

	mux.HandleFunc("GET /v1/documents/{id}/export",
		s.withInternalAuth(s.withRateLimit(s.handleExport)))

	return s.withLogging(s.withRecovery(mux))
}
