// Package export renders stored extraction results as JSON, CSV, or XLSX.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"docent/constants"
	"docent/internal/repository"
)

// Format selects the export encoding.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat validates a format string; empty defaults to JSON.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case "":
		return JSON, true
	case JSON, CSV, XLSX:
		return Format(s), true
	default:
		return "", false
	}
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv; charset=utf-8"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json; charset=utf-8"
	}
}

// Service is a tiny façade over repositories that renders export bytes.
type Service struct {
	results   repository.ResultRepository
	documents repository.DocumentRepository
	logger    *slog.Logger
}

func NewService(results repository.ResultRepository, documents repository.DocumentRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{results: results, documents: documents, logger: logger}
}

// ExportDocument renders the latest result for a document in the requested
// format.
func (s *Service) ExportDocument(ctx context.Context, documentID uuid.UUID, format Format) ([]byte, error) {
	start := time.Now()

	res, err := s.results.GetLatestByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	var out []byte
	switch format {
	case JSON:
		out, err = s.renderJSON(doc, res)
	case CSV:
		out, err = s.renderCSV(doc, res)
	case XLSX:
		out, err = s.renderXLSX(doc, res)
	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("export.ok",
		"document_id", documentID.String(),
		"format", string(format),
		"bytes", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

type jsonExport struct {
	DocumentID string                          `json:"document_id"`
	Filename   string                          `json:"filename"`
	Language   string                          `json:"language,omitempty"`
	Entities   map[constants.Category][]string `json:"entities"`
	Error      string                          `json:"error,omitempty"`
	CreatedAt  string                          `json:"created_at"`
}

func (s *Service) renderJSON(doc *repository.Document, res *repository.ExtractionResult) ([]byte, error) {
	return json.MarshalIndent(jsonExport{
		DocumentID: res.DocumentID.String(),
		Filename:   doc.Filename,
		Language:   res.Result.Language,
		Entities:   res.Result.Entities,
		Error:      res.Result.Err,
		CreatedAt:  res.CreatedAt.UTC().Format(time.RFC3339),
	}, "", "  ")
}

// renderCSV writes one row per entity, categories in canonical order. A BOM
// is prepended so Excel opens Arabic text correctly.
func (s *Service) renderCSV(doc *repository.Document, res *repository.ExtractionResult) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{0xEF, 0xBB, 0xBF})
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"document", "category", "entity"}); err != nil {
		return nil, err
	}
	for _, cat := range constants.AllCategories() {
		for _, v := range res.Result.Entities[cat] {
			if err := w.Write([]string{doc.Filename, string(cat), v}); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Service) renderXLSX(doc *repository.Document, res *repository.ExtractionResult) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Entities"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// excelize seeds every workbook with "Sheet1"; drop it so the export
	// carries only the Entities sheet.
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"Document", "Category", "Entity"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for _, cat := range constants.AllCategories() {
		for _, v := range res.Result.Entities[cat] {
			write(1, doc.Filename)
			write(2, string(cat))
			write(3, v)
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 32) // document
	_ = f.SetColWidth(sheet, "B", "B", 18) // category
	_ = f.SetColWidth(sheet, "C", "C", 48) // entity

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
