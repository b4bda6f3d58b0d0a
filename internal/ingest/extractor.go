// Package ingest brings documents into the system: text extraction from
// PDF/DOCX/TXT, filesystem ingestion with content-hash deduplication, and a
// directory watcher.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"docent/constants"
	"docent/internal/extract"
	"docent/internal/ner"
)

type ExtractorConfig struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdfinfo   string // binary name or absolute path; if empty -> "pdfinfo"
	MaxBytes  int64  // per-file size cap; default 32 MiB
}

// Extractor converts supported files to plain text. It implements
// extract.TextExtractor.
type Extractor struct {
	cfg    ExtractorConfig
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg ExtractorConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdfinfo == "" {
		cfg.Pdfinfo = "pdfinfo"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 32 << 20
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Extract picks a strategy based on file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (extract.TextExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("starting text extraction", "path", path, "ext", ext)

	var res extract.TextExtractionResult
	var err error
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		res, err = e.extractPDF(ctx, path)
	case constants.DOCX:
		res, err = e.extractDOCX(path)
	case constants.TXT:
		res, err = e.extractText(path)
	default:
		e.logger.Error("unsupported extension", "extension", ext)
		return extract.TextExtractionResult{}, fmt.Errorf("unsupported extension: %q", ext)
	}
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}

	res.Language = ner.DetectLanguage(res.Text)
	e.logger.Info("text extraction finished",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"text_len", len(res.Text),
		"language", res.Language,
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
