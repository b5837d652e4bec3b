package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/common"
	"github.com/munifact/munifact/internal/entity"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id            BIGSERIAL PRIMARY KEY,
	owner_id      BIGINT NOT NULL,
	filename      TEXT NOT NULL,
	original_size BIGINT NOT NULL,
	status        TEXT NOT NULL,
	uploaded_at   TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ,
	error_message TEXT,
	record_count  INTEGER,
	artifact_ref  TEXT,
	source_path   TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS steps (
	id            BIGSERIAL PRIMARY KEY,
	document_id   BIGINT NOT NULL,
	step_name     TEXT NOT NULL,
	status        TEXT NOT NULL,
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_steps_document ON steps(document_id);
`

// PostgresConfig mirrors the pool knobs we expose through the environment.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// PostgresStore is the shared-database implementation of Store, backed by a
// pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// OpenPostgres connects, applies the schema, and returns the store.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "munifact"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("postgres store opened")
	return &PostgresStore{pool: pool, log: logger}, nil
}

// Ping checks connectivity, used by startup health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *entity.Document) (*entity.Document, error) {
	d := *doc
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO documents (owner_id, filename, original_size, status, uploaded_at, source_path)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		d.OwnerID, d.Filename, d.OriginalSize, string(d.Status), d.UploadedAt, d.SourcePath).Scan(&d.ID)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id int64) (*entity.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, filename, original_size, status, uploaded_at,
		        completed_at, error_message, record_count, artifact_ref, source_path
		 FROM documents WHERE id = $1`, id)
	return pgScanDocument(row, id)
}

func (s *PostgresStore) ListDocumentsByOwner(ctx context.Context, ownerID int64) ([]*entity.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, filename, original_size, status, uploaded_at,
		        completed_at, error_message, record_count, artifact_ref, source_path
		 FROM documents WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*entity.Document
	for rows.Next() {
		d, err := pgScanDocument(rows, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, id int64, upd DocumentUpdate) (*entity.Document, error) {
	sets, args := documentSets(upd, pgPlaceholder)
	if len(sets) > 0 {
		args = append(args, id)
		tag, err := s.pool.Exec(ctx,
			`UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE id = $`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return nil, fmt.Errorf("update document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("document %d: %w", id, common.ErrNotFound)
		}
	}
	return s.GetDocument(ctx, id)
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateStep(ctx context.Context, step *entity.Step) (*entity.Step, error) {
	st := *step
	err := s.pool.QueryRow(ctx,
		`INSERT INTO steps (document_id, step_name, status) VALUES ($1, $2, $3) RETURNING id`,
		st.DocumentID, string(st.StepName), string(st.Status)).Scan(&st.ID)
	if err != nil {
		return nil, fmt.Errorf("insert step: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) GetStep(ctx context.Context, id int64) (*entity.Step, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, document_id, step_name, status, started_at, completed_at, error_message
		 FROM steps WHERE id = $1`, id)
	return pgScanStep(row, id)
}

func (s *PostgresStore) ListStepsByDocument(ctx context.Context, documentID int64) ([]*entity.Step, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, step_name, status, started_at, completed_at, error_message
		 FROM steps WHERE document_id = $1 ORDER BY id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []*entity.Step
	for rows.Next() {
		st, err := pgScanStep(rows, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStep(ctx context.Context, id int64, upd StepUpdate) (*entity.Step, error) {
	sets, args := stepSets(upd, pgPlaceholder)
	if len(sets) > 0 {
		args = append(args, id)
		tag, err := s.pool.Exec(ctx,
			`UPDATE steps SET `+strings.Join(sets, ", ")+` WHERE id = $`+strconv.Itoa(len(args)), args...)
		if err != nil {
			return nil, fmt.Errorf("update step: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("step %d: %w", id, common.ErrNotFound)
		}
	}
	return s.GetStep(ctx, id)
}

func (s *PostgresStore) DeleteStepsByDocument(ctx context.Context, documentID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM steps WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete steps: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func pgPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

type pgScanner interface {
	Scan(dest ...any) error
}

func pgScanDocument(sc pgScanner, id int64) (*entity.Document, error) {
	var (
		d      entity.Document
		status string
	)
	err := sc.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.OriginalSize, &status,
		&d.UploadedAt, &d.CompletedAt, &d.ErrorMessage, &d.RecordCount, &d.ArtifactRef, &d.SourcePath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	d.Status = constants.DocumentStatus(status)
	return &d, nil
}

func pgScanStep(sc pgScanner, id int64) (*entity.Step, error) {
	var (
		st     entity.Step
		name   string
		status string
	)
	err := sc.Scan(&st.ID, &st.DocumentID, &name, &status, &st.StartedAt, &st.CompletedAt, &st.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("step %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}
	st.StepName = constants.StepName(name)
	st.Status = constants.StepStatus(status)
	return &st, nil
}
