package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/common"
	"github.com/munifact/munifact/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id      INTEGER NOT NULL,
	filename      TEXT NOT NULL,
	original_size INTEGER NOT NULL,
	status        TEXT NOT NULL,
	uploaded_at   TIMESTAMP NOT NULL,
	completed_at  TIMESTAMP,
	error_message TEXT,
	record_count  INTEGER,
	artifact_ref  TEXT,
	source_path   TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS steps (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id   INTEGER NOT NULL,
	step_name     TEXT NOT NULL,
	status        TEXT NOT NULL,
	started_at    TIMESTAMP,
	completed_at  TIMESTAMP,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_steps_document ON steps(document_id);
`

// SQLiteStore is the durable single-file implementation of Store, backed by
// modernc.org/sqlite (no cgo).
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("sqlite store opened", "path", path)
	return &SQLiteStore{db: db, log: logger}, nil
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *entity.Document) (*entity.Document, error) {
	d := *doc
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (owner_id, filename, original_size, status, uploaded_at, source_path)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.OwnerID, d.Filename, d.OriginalSize, string(d.Status), d.UploadedAt, d.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	d.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("document id: %w", err)
	}
	return &d, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*entity.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, filename, original_size, status, uploaded_at,
		        completed_at, error_message, record_count, artifact_ref, source_path
		 FROM documents WHERE id = ?`, id)
	return scanDocument(row, id)
}

func (s *SQLiteStore) ListDocumentsByOwner(ctx context.Context, ownerID int64) ([]*entity.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, filename, original_size, status, uploaded_at,
		        completed_at, error_message, record_count, artifact_ref, source_path
		 FROM documents WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*entity.Document
	for rows.Next() {
		d, err := scanDocument(rows, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateDocument(ctx context.Context, id int64, upd DocumentUpdate) (*entity.Document, error) {
	sets, args := documentSets(upd, sqlitePlaceholder)
	if len(sets) > 0 {
		args = append(args, id)
		res, err := s.db.ExecContext(ctx,
			`UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return nil, fmt.Errorf("update document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("document %d: %w", id, common.ErrNotFound)
		}
	}
	return s.GetDocument(ctx, id)
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateStep(ctx context.Context, step *entity.Step) (*entity.Step, error) {
	st := *step
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (document_id, step_name, status) VALUES (?, ?, ?)`,
		st.DocumentID, string(st.StepName), string(st.Status))
	if err != nil {
		return nil, fmt.Errorf("insert step: %w", err)
	}
	st.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("step id: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) GetStep(ctx context.Context, id int64) (*entity.Step, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, step_name, status, started_at, completed_at, error_message
		 FROM steps WHERE id = ?`, id)
	return scanStep(row, id)
}

func (s *SQLiteStore) ListStepsByDocument(ctx context.Context, documentID int64) ([]*entity.Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, step_name, status, started_at, completed_at, error_message
		 FROM steps WHERE document_id = ? ORDER BY id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []*entity.Step
	for rows.Next() {
		st, err := scanStep(rows, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateStep(ctx context.Context, id int64, upd StepUpdate) (*entity.Step, error) {
	sets, args := stepSets(upd, sqlitePlaceholder)
	if len(sets) > 0 {
		args = append(args, id)
		res, err := s.db.ExecContext(ctx,
			`UPDATE steps SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return nil, fmt.Errorf("update step: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("step %d: %w", id, common.ErrNotFound)
		}
	}
	return s.GetStep(ctx, id)
}

func (s *SQLiteStore) DeleteStepsByDocument(ctx context.Context, documentID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM steps WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete steps: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner, id int64) (*entity.Document, error) {
	var (
		d       entity.Document
		status  string
		compAt  sql.NullTime
		errMsg  sql.NullString
		count   sql.NullInt64
		artRef  sql.NullString
	)
	err := sc.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.OriginalSize, &status,
		&d.UploadedAt, &compAt, &errMsg, &count, &artRef, &d.SourcePath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	d.Status = constants.DocumentStatus(status)
	if compAt.Valid {
		t := compAt.Time
		d.CompletedAt = &t
	}
	if errMsg.Valid {
		m := errMsg.String
		d.ErrorMessage = &m
	}
	if count.Valid {
		n := int(count.Int64)
		d.RecordCount = &n
	}
	if artRef.Valid {
		r := artRef.String
		d.ArtifactRef = &r
	}
	return &d, nil
}

func scanStep(sc scanner, id int64) (*entity.Step, error) {
	var (
		st      entity.Step
		name    string
		status  string
		started sql.NullTime
		compAt  sql.NullTime
		errMsg  sql.NullString
	)
	err := sc.Scan(&st.ID, &st.DocumentID, &name, &status, &started, &compAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("step %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}
	st.StepName = constants.StepName(name)
	st.Status = constants.StepStatus(status)
	if started.Valid {
		t := started.Time
		st.StartedAt = &t
	}
	if compAt.Valid {
		t := compAt.Time
		st.CompletedAt = &t
	}
	if errMsg.Valid {
		m := errMsg.String
		st.ErrorMessage = &m
	}
	return &st, nil
}

// placeholder builders shared with the postgres implementation.

func sqlitePlaceholder(int) string { return "?" }

func documentSets(upd DocumentUpdate, ph func(int) string) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = "+ph(len(args)+1))
		args = append(args, v)
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.CompletedAt != nil {
		add("completed_at", *upd.CompletedAt)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	if upd.RecordCount != nil {
		add("record_count", *upd.RecordCount)
	}
	if upd.ArtifactRef != nil {
		add("artifact_ref", *upd.ArtifactRef)
	}
	if upd.SourcePath != nil {
		add("source_path", *upd.SourcePath)
	}
	return sets, args
}

func stepSets(upd StepUpdate, ph func(int) string) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = "+ph(len(args)+1))
		args = append(args, v)
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.StartedAt != nil {
		add("started_at", *upd.StartedAt)
	}
	if upd.CompletedAt != nil {
		add("completed_at", *upd.CompletedAt)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	return sets, args
}
