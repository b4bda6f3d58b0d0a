package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"docent/constants"
	"docent/internal/llm"
	"docent/internal/ner"
	"docent/internal/repository"
)

// EntityStage turns the stored text of a TEXT_OK job into the per-category
// result according to the job's mode.
type EntityStage struct {
	Logger    *slog.Logger
	Jobs      repository.JobRepository
	Results   repository.ResultRepository
	Documents repository.DocumentRepository
	Extractor llm.EntityExtractor // may be nil when only regex mode is used
}

func NewEntityStage(
	logger *slog.Logger,
	jobs repository.JobRepository,
	results repository.ResultRepository,
	docs repository.DocumentRepository,
	extractor llm.EntityExtractor,
) *EntityStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityStage{
		Logger:    logger,
		Jobs:      jobs,
		Results:   results,
		Documents: docs,
		Extractor: extractor,
	}
}

// Run executes the entity stage for an existing TEXT_OK job.
func (p *EntityStage) Run(ctx context.Context, jobID uuid.UUID) (ner.Result, error) {
	job, err := p.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return ner.Result{}, fmt.Errorf("load job: %w", err)
	}
	if job.Status != constants.JobStatusTextOK {
		return ner.Result{}, fmt.Errorf("job not ready for entity stage: status=%s", job.Status)
	}

	doc, err := p.Documents.GetByID(ctx, job.DocumentID)
	if err != nil {
		return ner.Result{}, fmt.Errorf("load document: %w", err)
	}

	p.Logger.Info("entity stage start",
		"job_id", job.ID, "document_id", doc.ID,
		"mode", job.Mode, "text_len", len(job.TextContent),
	)

	result, rawModel, needsReview, runErr := p.extract(ctx, job, doc.Filename)

	if runErr != nil && job.Mode == constants.ModeLLM {
		// Failure policy: persist the explicit error marker with empty lists,
		// then fail the job.
		_ = p.Results.Save(ctx, &repository.ExtractionResult{
			JobID:      job.ID,
			DocumentID: doc.ID,
			Language:   job.Language,
			Result:     ner.EmptyResult(runErr.Error()),
			RawModel:   rawModel,
		})
		_ = p.Jobs.FinishFailure(ctx, job.ID, runErr.Error())
		return ner.EmptyResult(runErr.Error()), runErr
	}

	if err := p.Results.Save(ctx, &repository.ExtractionResult{
		JobID:      job.ID,
		DocumentID: doc.ID,
		Language:   result.Language,
		Result:     result,
		RawModel:   rawModel,
	}); err != nil {
		_ = p.Jobs.FinishFailure(ctx, job.ID, err.Error())
		return result, fmt.Errorf("save result: %w", err)
	}

	if total := countEntities(result); total == 0 {
		needsReview = true
	}
	if err := p.Jobs.FinishSuccess(ctx, job.ID, needsReview); err != nil {
		return result, err
	}

	p.Logger.Info("entity stage finished",
		"job_id", job.ID, "mode", job.Mode,
		"entities", countEntities(result), "needs_review", needsReview,
	)
	return result, nil
}

// extract runs the mode-specific path. The returned error is only fatal for
// ModeLLM; in hybrid mode an LLM failure degrades to the regex result.
func (p *EntityStage) extract(ctx context.Context, job *repository.Job, filename string) (ner.Result, string, bool, error) {
	return ExtractFromText(ctx, p.Logger, p.Extractor, job.TextContent, job.Mode, job.Language, filename)
}

// ExtractFromText runs a single mode over already-cleaned text. It is shared
// between the job pipeline and the raw-text API path. The bool reports hybrid
// degradation (LLM failed, regex result kept).
func ExtractFromText(
	ctx context.Context,
	logger *slog.Logger,
	extractor llm.EntityExtractor,
	text string,
	mode constants.Mode,
	language, filenameHint string,
) (ner.Result, string, bool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	callModel := func() ([]llm.Extraction, []byte, error) {
		if extractor == nil {
			return nil, nil, fmt.Errorf("no entity extractor configured")
		}
		return extractor.ExtractEntities(ctx, llm.ExtractRequest{
			Text:         text,
			Language:     language,
			FilenameHint: filenameHint,
		})
	}

	switch mode {
	case constants.ModeRegex:
		return ner.Extract(text), "", false, nil

	case constants.ModeLLM:
		extractions, raw, err := callModel()
		if err != nil {
			return ner.Result{}, string(raw), false, err
		}
		return llm.Fold(extractions, language), string(raw), false, nil

	case constants.ModeHybrid:
		base := ner.Extract(text)
		extractions, raw, err := callModel()
		if err != nil {
			logger.Warn("hybrid degraded to regex-only", "error", err)
			return base, string(raw), true, nil
		}
		merged := mergeResults(base, llm.Fold(extractions, language))
		return merged, string(raw), false, nil

	default:
		return ner.Result{}, "", false, fmt.Errorf("unknown mode: %q", mode)
	}
}

// mergeResults appends extra's entries after base's, per category, keeping
// first-occurrence order and collapsing exact duplicates.
func mergeResults(base, extra ner.Result) ner.Result {
	out := ner.EmptyResult("")
	out.Language = base.Language
	if out.Language == "" {
		out.Language = extra.Language
	}
	for _, cat := range constants.AllCategories() {
		seen := make(map[string]struct{})
		for _, list := range [][]string{base.Entities[cat], extra.Entities[cat]} {
			for _, v := range list {
				if _, dup := seen[v]; dup {
					continue
				}
				seen[v] = struct{}{}
				out.Entities[cat] = append(out.Entities[cat], v)
			}
		}
	}
	return out
}

func countEntities(r ner.Result) int {
	var n int
	for _, list := range r.Entities {
		n += len(list)
	}
	return n
}
