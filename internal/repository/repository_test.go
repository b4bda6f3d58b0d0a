package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"docent/constants"
	"docent/internal/ner"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestDocumentUpsertByHash(t *testing.T) {
	db := openTestDB(t)
	repo := NewDocumentRepository(db, nil)
	ctx := context.Background()

	doc := &Document{
		SourcePath:  "/in/contract.pdf",
		Filename:    "contract.pdf",
		FileExt:     "pdf",
		FileSize:    1234,
		ContentHash: "abc123",
	}
	created, dedup, err := repo.UpsertByHash(ctx, doc)
	require.NoError(t, err)
	require.False(t, dedup)
	require.NotEqual(t, uuid.Nil, created.ID)

	again, dedup, err := repo.UpsertByHash(ctx, &Document{
		SourcePath:  "/elsewhere/contract-copy.pdf",
		Filename:    "contract-copy.pdf",
		FileExt:     "pdf",
		FileSize:    1234,
		ContentHash: "abc123",
	})
	require.NoError(t, err)
	require.True(t, dedup)
	require.Equal(t, created.ID, again.ID)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "contract.pdf", got.Filename)
	require.False(t, got.UploadedAt.IsZero())

	_, err = repo.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestJobLifecycle(t *testing.T) {
	db := openTestDB(t)
	docs := NewDocumentRepository(db, nil)
	jobs := NewJobRepository(db, nil)
	ctx := context.Background()

	doc := &Document{SourcePath: "/in/a.txt", Filename: "a.txt", FileExt: "txt", ContentHash: "h1"}
	require.NoError(t, docs.Create(ctx, doc))

	job, err := jobs.Start(ctx, doc.ID, constants.ModeHybrid)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusPending, job.Status)

	require.NoError(t, jobs.MarkRunning(ctx, job.ID))
	require.NoError(t, jobs.FinishTextSuccess(ctx, job.ID, "عقد عمل", "ar"))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusTextOK, got.Status)
	require.Equal(t, "عقد عمل", got.TextContent)
	require.Equal(t, "ar", got.Language)
	require.False(t, got.StartedAt.IsZero())

	require.NoError(t, jobs.FinishSuccess(ctx, job.ID, true))
	got, err = jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusDone, got.Status)
	require.True(t, got.NeedsReview)
	require.False(t, got.FinishedAt.IsZero())

	failed, err := jobs.Start(ctx, doc.ID, constants.ModeRegex)
	require.NoError(t, err)
	require.NoError(t, jobs.FinishFailure(ctx, failed.ID, "no text to process"))
	got, err = jobs.GetByID(ctx, failed.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusFailed, got.Status)
	require.Equal(t, "no text to process", got.Error)

	list, err := jobs.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestResultRoundTrip(t *testing.T) {
	db := openTestDB(t)
	docs := NewDocumentRepository(db, nil)
	jobs := NewJobRepository(db, nil)
	results := NewResultRepository(db, nil)
	ctx := context.Background()

	doc := &Document{SourcePath: "/in/b.txt", Filename: "b.txt", FileExt: "txt", ContentHash: "h2"}
	require.NoError(t, docs.Create(ctx, doc))
	job, err := jobs.Start(ctx, doc.ID, constants.ModeRegex)
	require.NoError(t, err)

	res := ner.EmptyResult("")
	res.Language = "en"
	res.Entities[constants.Name] = []string{"Sarah Johnson"}
	res.Entities[constants.Amount] = []string{"$60,000"}

	require.NoError(t, results.Save(ctx, &ExtractionResult{
		JobID:      job.ID,
		DocumentID: doc.ID,
		Language:   "en",
		Result:     res,
	}))

	got, err := results.GetByJobID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Sarah Johnson"}, got.Result.Entities[constants.Name])
	require.Equal(t, "en", got.Language)

	latest, err := results.GetLatestByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, latest.JobID)

	_, err = results.GetByJobID(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
