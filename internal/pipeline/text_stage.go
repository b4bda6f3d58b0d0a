package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"docent/constants"
	"docent/internal/extract"
	"docent/internal/ner"
	"docent/internal/repository"
)

type TextStage struct {
	Documents     repository.DocumentRepository
	Jobs          repository.JobRepository
	TextExtractor extract.TextExtractor
	Logger        *slog.Logger
}

func NewTextStage(docs repository.DocumentRepository, jobs repository.JobRepository, tx extract.TextExtractor, logger *slog.Logger) *TextStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextStage{Documents: docs, Jobs: jobs, TextExtractor: tx, Logger: logger}
}

// Run starts a job for the document, extracts its text, and persists the
// cleaned text. The entity stage is NOT called.
func (p *TextStage) Run(ctx context.Context, documentID uuid.UUID, mode constants.Mode) (uuid.UUID, extract.TextExtractionResult, error) {
	row, err := p.Documents.GetByID(ctx, documentID)
	if err != nil {
		return uuid.Nil, extract.TextExtractionResult{}, fmt.Errorf("get document: %w", err)
	}

	if constants.MapExtToFormat(row.FileExt) == "" {
		return uuid.Nil, extract.TextExtractionResult{}, fmt.Errorf("unsupported format: %s", row.FileExt)
	}

	job, err := p.Jobs.Start(ctx, row.ID, mode)
	if err != nil {
		return uuid.Nil, extract.TextExtractionResult{}, err
	}
	if err := p.Jobs.MarkRunning(ctx, job.ID); err != nil {
		return job.ID, extract.TextExtractionResult{}, err
	}

	res, err := p.TextExtractor.Extract(ctx, row.SourcePath)
	if err != nil {
		_ = p.Jobs.FinishFailure(ctx, job.ID, err.Error())
		return job.ID, res, err
	}

	cleaned := ner.Clean(res.Text)
	if err := p.Jobs.FinishTextSuccess(ctx, job.ID, cleaned, res.Language); err != nil {
		return job.ID, res, err
	}
	return job.ID, res, nil
}
