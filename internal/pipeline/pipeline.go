// Package processor coordinates the two-stage document pipeline:
// text extraction, then entity extraction per the job's mode.
package processor

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"docent/constants"
	"docent/internal/ner"
)

// Processor runs text extraction then entity extraction for a document.
type Processor struct {
	Logger   *slog.Logger
	Text     *TextStage
	Entities *EntityStage
}

func NewProcessor(logger *slog.Logger, text *TextStage, entities *EntityStage) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Text: text, Entities: entities}
}

// ProcessDocument runs both stages for a documentID and returns the job ID
// with the final result.
func (p *Processor) ProcessDocument(ctx context.Context, documentID uuid.UUID, mode constants.Mode) (uuid.UUID, ner.Result, error) {
	jobID, textRes, err := p.Text.Run(ctx, documentID, mode)
	if err != nil {
		p.Logger.Error("processor.text.failed", "document_id", documentID, "err", err)
		return jobID, ner.Result{}, err
	}
	p.Logger.Info("processor.text.ok",
		"document_id", documentID,
		"job_id", jobID,
		"method", textRes.Method,
		"pages", textRes.Pages,
		"language", textRes.Language,
	)

	result, err := p.Entities.Run(ctx, jobID)
	if err != nil {
		p.Logger.Error("processor.entities.failed", "job_id", jobID, "err", err)
		return jobID, result, err
	}
	p.Logger.Info("processor.entities.ok", "job_id", jobID)
	return jobID, result, nil
}
