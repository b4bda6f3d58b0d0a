package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Document is one ingested source file.
type Document struct {
	ID          uuid.UUID
	SourcePath  string
	Filename    string
	FileExt     string
	FileSize    int64
	ContentHash string // hex sha256
	UploadedAt  time.Time
}

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

type DocumentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetByHash(ctx context.Context, hashHex string) (*Document, error)
	Create(ctx context.Context, doc *Document) error
	// UpsertByHash returns the existing row when the content hash is already
	// known; the bool reports deduplication.
	UpsertByHash(ctx context.Context, doc *Document) (*Document, bool, error)
	List(ctx context.Context, limit int) ([]*Document, error)
}

type documentRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepo{db: db, logger: logger}
}

const documentCols = `id, source_path, filename, file_ext, file_size, content_hash, uploaded_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	var id, uploaded string
	if err := row.Scan(&id, &d.SourcePath, &d.Filename, &d.FileExt, &d.FileSize, &d.ContentHash, &uploaded); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	d.ID = parsed
	d.UploadedAt = decodeTime(uploaded)
	return &d, nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+documentCols+` FROM documents WHERE id = $1`, id.String())
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (r *documentRepo) GetByHash(ctx context.Context, hashHex string) (*Document, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+documentCols+` FROM documents WHERE content_hash = $1`, hashHex)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (r *documentRepo) Create(ctx context.Context, doc *Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO documents (`+documentCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID.String(), doc.SourcePath, doc.Filename, doc.FileExt, doc.FileSize,
		doc.ContentHash, encodeTime(doc.UploadedAt))
	if err != nil {
		r.logger.Error("failed to create document",
			"source_path", doc.SourcePath, "filename", doc.Filename, "error", err)
	}
	return err
}

func (r *documentRepo) UpsertByHash(ctx context.Context, doc *Document) (*Document, bool, error) {
	if existing, err := r.GetByHash(ctx, doc.ContentHash); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if err := r.Create(ctx, doc); err != nil {
		return nil, false, err
	}
	return doc, false, nil
}

func (r *documentRepo) List(ctx context.Context, limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+documentCols+` FROM documents ORDER BY uploaded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", "error", err)
		}
	}()

	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
