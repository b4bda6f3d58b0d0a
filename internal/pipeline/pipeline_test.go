package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"docent/constants"
	"docent/internal/extract"
	"docent/internal/llm"
	"docent/internal/repository"
)

type fakeTextExtractor struct {
	text string
	lang string
	err  error
}

func (f *fakeTextExtractor) Extract(ctx context.Context, path string) (extract.TextExtractionResult, error) {
	if f.err != nil {
		return extract.TextExtractionResult{}, f.err
	}
	return extract.TextExtractionResult{
		Text:     f.text,
		Pages:    1,
		Format:   constants.TXT,
		Method:   "plain-text",
		Language: f.lang,
	}, nil
}

type fixture struct {
	db      *repository.DB
	docs    repository.DocumentRepository
	jobs    repository.JobRepository
	results repository.ResultRepository
	docID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	require.NoError(t, db.Migrate(ctx))

	f := &fixture{
		db:      db,
		docs:    repository.NewDocumentRepository(db, nil),
		jobs:    repository.NewJobRepository(db, nil),
		results: repository.NewResultRepository(db, nil),
	}
	doc := &repository.Document{SourcePath: "/in/c.txt", Filename: "c.txt", FileExt: "txt", ContentHash: "h"}
	require.NoError(t, f.docs.Create(ctx, doc))
	f.docID = doc.ID.String()
	return f
}

func (f *fixture) processor(tx extract.TextExtractor, ee llm.EntityExtractor) *Processor {
	text := NewTextStage(f.docs, f.jobs, tx, nil)
	entities := NewEntityStage(nil, f.jobs, f.results, f.docs, ee)
	return NewProcessor(nil, text, entities)
}

func (f *fixture) documentID(t *testing.T) uuid.UUID {
	t.Helper()
	docs, err := f.docs.List(context.Background(), 1)
	require.NoError(t, err)
	return docs[0].ID
}

func TestProcessDocumentRegex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := &fakeTextExtractor{text: "phone: 555-123-4567 in Riyadh at 14:30", lang: "en"}
	p := f.processor(tx, nil)

	jobID, res, err := p.ProcessDocument(ctx, f.documentID(t), constants.ModeRegex)
	require.NoError(t, err)
	require.Equal(t, []string{"555-123-4567"}, res.Entities[constants.Phone])
	require.Equal(t, []string{"14:30"}, res.Entities[constants.Time])

	job, err := f.jobs.GetByID(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusDone, job.Status)
	require.False(t, job.NeedsReview)

	stored, err := f.results.GetByJobID(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, res.Entities[constants.Phone], stored.Result.Entities[constants.Phone])
}

func TestProcessDocumentLLM(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := &fakeTextExtractor{text: "some contract text", lang: "en"}
	mock := &llm.MockExtractor{
		ExtractFunc: func(ctx context.Context, req llm.ExtractRequest) ([]llm.Extraction, []byte, error) {
			require.Equal(t, "some contract text", req.Text)
			require.Equal(t, "c.txt", req.FilenameHint)
			return []llm.Extraction{
				{Category: "name", Text: "Sarah Johnson"},
				{Category: "name", Text: "Sarah Johnson"},
				{Category: "organization", Text: "ABC Corp"},
			}, []byte(`{"extractions":[]}`), nil
		},
	}
	p := f.processor(tx, mock)

	jobID, res, err := p.ProcessDocument(ctx, f.documentID(t), constants.ModeLLM)
	require.NoError(t, err)
	require.Equal(t, []string{"Sarah Johnson"}, res.Entities[constants.Name])
	require.Equal(t, []string{"ABC Corp"}, res.Entities[constants.Organization])

	stored, err := f.results.GetByJobID(ctx, jobID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.RawModel)
}

func TestProcessDocumentLLMFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := &fakeTextExtractor{text: "some contract text", lang: "en"}
	mock := &llm.MockExtractor{
		ExtractFunc: func(ctx context.Context, req llm.ExtractRequest) ([]llm.Extraction, []byte, error) {
			return nil, nil, errors.New("model unavailable")
		},
	}
	p := f.processor(tx, mock)

	jobID, res, err := p.ProcessDocument(ctx, f.documentID(t), constants.ModeLLM)
	require.Error(t, err)
	require.NotEmpty(t, res.Err)
	for cat, list := range res.Entities {
		require.Empty(t, list, "category %s", cat)
	}

	job, jerr := f.jobs.GetByID(ctx, jobID)
	require.NoError(t, jerr)
	require.Equal(t, constants.JobStatusFailed, job.Status)

	stored, rerr := f.results.GetByJobID(ctx, jobID)
	require.NoError(t, rerr)
	require.Contains(t, stored.Result.Err, "model unavailable")
}

func TestProcessDocumentHybridMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := &fakeTextExtractor{text: "Contact phone: 555-123-4567 for details", lang: "en"}
	mock := &llm.MockExtractor{
		ExtractFunc: func(ctx context.Context, req llm.ExtractRequest) ([]llm.Extraction, []byte, error) {
			return []llm.Extraction{
				{Category: "phone", Text: "555-123-4567"}, // duplicate of regex hit
				{Category: "name", Text: "John Smith"},    // regex missed it
			}, []byte(`{}`), nil
		},
	}
	p := f.processor(tx, mock)

	_, res, err := p.ProcessDocument(ctx, f.documentID(t), constants.ModeHybrid)
	require.NoError(t, err)
	require.Equal(t, []string{"555-123-4567"}, res.Entities[constants.Phone])
	require.Equal(t, []string{"John Smith"}, res.Entities[constants.Name])
}

func TestProcessDocumentHybridDegrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := &fakeTextExtractor{text: "Contact phone: 555-123-4567 for details", lang: "en"}
	mock := &llm.MockExtractor{
		ExtractFunc: func(ctx context.Context, req llm.ExtractRequest) ([]llm.Extraction, []byte, error) {
			return nil, nil, errors.New("quota exceeded")
		},
	}
	p := f.processor(tx, mock)

	jobID, res, err := p.ProcessDocument(ctx, f.documentID(t), constants.ModeHybrid)
	require.NoError(t, err)
	require.Empty(t, res.Err)
	require.Equal(t, []string{"555-123-4567"}, res.Entities[constants.Phone])

	job, jerr := f.jobs.GetByID(ctx, jobID)
	require.NoError(t, jerr)
	require.Equal(t, constants.JobStatusDone, job.Status)
	require.True(t, job.NeedsReview)
}

func TestTextStageFailureFailsJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := &fakeTextExtractor{err: errors.New("pdftotext: boom")}
	p := f.processor(tx, nil)

	jobID, _, err := p.ProcessDocument(ctx, f.documentID(t), constants.ModeRegex)
	require.Error(t, err)

	job, jerr := f.jobs.GetByID(ctx, jobID)
	require.NoError(t, jerr)
	require.Equal(t, constants.JobStatusFailed, job.Status)
	require.Contains(t, job.Error, "pdftotext")
}
