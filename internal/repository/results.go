package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docent/internal/ner"
)

// ExtractionResult is the stored outcome of a finished job: the per-category
// entity lists plus the raw model output (empty on the regex path).
type ExtractionResult struct {
	JobID      uuid.UUID
	DocumentID uuid.UUID
	Language   string
	Result     ner.Result
	RawModel   string
	CreatedAt  time.Time
}

type ResultRepository interface {
	Save(ctx context.Context, res *ExtractionResult) error
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*ExtractionResult, error)
	GetLatestByDocument(ctx context.Context, documentID uuid.UUID) (*ExtractionResult, error)
}

type resultRepo struct {
	db  *DB
	log *slog.Logger
}

func NewResultRepository(db *DB, log *slog.Logger) ResultRepository {
	if log == nil {
		log = slog.Default()
	}
	return &resultRepo{db: db, log: log}
}

func (r *resultRepo) Save(ctx context.Context, res *ExtractionResult) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	entities, err := json.Marshal(res.Result)
	if err != nil {
		return err
	}
	_, err = r.db.SQL.ExecContext(ctx,
		`INSERT INTO results (job_id, document_id, language, entities, raw_model, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		res.JobID.String(), res.DocumentID.String(), res.Language,
		string(entities), res.RawModel, encodeTime(res.CreatedAt))
	if err != nil {
		r.log.Error("result save failed", "job_id", res.JobID, "err", err)
	}
	return err
}

const resultCols = `job_id, document_id, language, entities, raw_model, created_at`

func scanResult(row interface{ Scan(...any) error }) (*ExtractionResult, error) {
	var res ExtractionResult
	var jobID, docID, entities, created string
	if err := row.Scan(&jobID, &docID, &res.Language, &entities, &res.RawModel, &created); err != nil {
		return nil, err
	}
	var err error
	if res.JobID, err = uuid.Parse(jobID); err != nil {
		return nil, err
	}
	if res.DocumentID, err = uuid.Parse(docID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(entities), &res.Result); err != nil {
		return nil, err
	}
	res.CreatedAt = decodeTime(created)
	return &res, nil
}

func (r *resultRepo) GetByJobID(ctx context.Context, jobID uuid.UUID) (*ExtractionResult, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+resultCols+` FROM results WHERE job_id = $1`, jobID.String())
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

func (r *resultRepo) GetLatestByDocument(ctx context.Context, documentID uuid.UUID) (*ExtractionResult, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+resultCols+` FROM results WHERE document_id = $1 ORDER BY created_at DESC LIMIT 1`,
		documentID.String())
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}
