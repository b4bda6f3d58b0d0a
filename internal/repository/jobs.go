package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docent/constants"
)

// Job is one extraction run over a document.
type Job struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	Mode        constants.Mode
	Status      constants.JobStatus
	TextContent string
	Language    string
	Error       string
	NeedsReview bool
	CreatedAt   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

type JobRepository interface {
	Start(ctx context.Context, documentID uuid.UUID, mode constants.Mode) (*Job, error)
	MarkRunning(ctx context.Context, jobID uuid.UUID) error
	// FinishTextSuccess records the stage-1 output and moves the job to TEXT_OK.
	FinishTextSuccess(ctx context.Context, jobID uuid.UUID, text, language string) error
	FinishSuccess(ctx context.Context, jobID uuid.UUID, needsReview bool) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*Job, error)
}

type jobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, log: log}
}

const jobCols = `id, document_id, mode, status, text_content, language, error, needs_review, created_at, started_at, finished_at`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var j Job
	var id, docID, mode, status, created, started, finished string
	var needsReview int
	if err := row.Scan(&id, &docID, &mode, &status, &j.TextContent, &j.Language,
		&j.Error, &needsReview, &created, &started, &finished); err != nil {
		return nil, err
	}
	var err error
	if j.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if j.DocumentID, err = uuid.Parse(docID); err != nil {
		return nil, err
	}
	j.Mode = constants.Mode(mode)
	j.Status = constants.JobStatus(status)
	j.NeedsReview = needsReview != 0
	j.CreatedAt = decodeTime(created)
	j.StartedAt = decodeTime(started)
	j.FinishedAt = decodeTime(finished)
	return &j, nil
}

func (r *jobRepo) Start(ctx context.Context, documentID uuid.UUID, mode constants.Mode) (*Job, error) {
	job := &Job{
		ID:         uuid.New(),
		DocumentID: documentID,
		Mode:       mode,
		Status:     constants.JobStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO jobs (id, document_id, mode, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		job.ID.String(), documentID.String(), string(mode), string(job.Status), encodeTime(job.CreatedAt))
	if err != nil {
		r.log.Error("job start failed", "document_id", documentID, "err", err)
		return nil, err
	}
	r.log.Info("job started", "job_id", job.ID, "document_id", documentID, "mode", mode)
	return job, nil
}

func (r *jobRepo) MarkRunning(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`UPDATE jobs SET status = $1, started_at = $2 WHERE id = $3`,
		string(constants.JobStatusRunning), encodeTime(time.Now().UTC()), jobID.String())
	if err != nil {
		r.log.Error("job mark running failed", "job_id", jobID, "err", err)
	}
	return err
}

func (r *jobRepo) FinishTextSuccess(ctx context.Context, jobID uuid.UUID, text, language string) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`UPDATE jobs SET status = $1, text_content = $2, language = $3 WHERE id = $4`,
		string(constants.JobStatusTextOK), text, language, jobID.String())
	if err != nil {
		r.log.Error("job finish(TEXT_OK) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("job text stage finished", "job_id", jobID, "language", language, "text_len", len(text))
	return nil
}

func (r *jobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, needsReview bool) error {
	review := 0
	if needsReview {
		review = 1
	}
	_, err := r.db.SQL.ExecContext(ctx,
		`UPDATE jobs SET status = $1, needs_review = $2, finished_at = $3 WHERE id = $4`,
		string(constants.JobStatusDone), review, encodeTime(time.Now().UTC()), jobID.String())
	if err != nil {
		r.log.Error("job finish(DONE) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("job finished", "job_id", jobID, "needs_review", needsReview)
	return nil
}

func (r *jobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	_, err := r.db.SQL.ExecContext(ctx,
		`UPDATE jobs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		string(constants.JobStatusFailed), message, encodeTime(time.Now().UTC()), jobID.String())
	if err != nil {
		r.log.Error("job finish(FAILED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Warn("job finished (FAILED)", "job_id", jobID, "error", message)
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+jobCols+` FROM jobs WHERE id = $1`, id.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

func (r *jobRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*Job, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+jobCols+` FROM jobs WHERE document_id = $1 ORDER BY created_at DESC`, documentID.String())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.log.Warn("failed to close rows", "error", err)
		}
	}()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
