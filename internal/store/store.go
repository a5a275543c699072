// Package store persists processing outcomes and answers the run's
// deduplication question: was this company already contacted successfully
// within the retention window?
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Record is a stored outcome.
type Record struct {
	ID      string
	RunID   string
	Outcome schemas.ProcessingOutcome
}

const (
	sqlCreateTable = `
        CREATE TABLE IF NOT EXISTS submission_outcomes (
            id                 UUID PRIMARY KEY,
            run_id             TEXT NOT NULL,
            company_name       TEXT NOT NULL,
            url                TEXT NOT NULL,
            contact_url        TEXT NOT NULL DEFAULT '',
            status             TEXT NOT NULL,
            filled_field_count INTEGER NOT NULL DEFAULT 0,
            detection_method   TEXT NOT NULL DEFAULT '',
            source_url         TEXT NOT NULL DEFAULT '',
            message            TEXT NOT NULL DEFAULT '',
            error_type         TEXT NOT NULL DEFAULT '',
            error_details      TEXT NOT NULL DEFAULT '',
            started_at         TIMESTAMPTZ NOT NULL,
            finished_at        TIMESTAMPTZ NOT NULL
        );
    `
	sqlCreateDedupIndex = `
        CREATE INDEX IF NOT EXISTS submission_outcomes_dedup_idx
            ON submission_outcomes (company_name, url, finished_at) WHERE status = 'success';
    `
	sqlCreateFinishedIndex = `
        CREATE INDEX IF NOT EXISTS submission_outcomes_finished_idx ON submission_outcomes (finished_at);
    `
	sqlHasRecentSuccess = `
        SELECT EXISTS (
            SELECT 1 FROM submission_outcomes
            WHERE company_name = $1 AND url = $2 AND status = 'success' AND finished_at >= $3
        );
    `
	sqlInsertOutcome = `
        INSERT INTO submission_outcomes (
            id, run_id, company_name, url, contact_url, status, filled_field_count,
            detection_method, source_url, message, error_type, error_details, started_at, finished_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
    `
	sqlPrune = `
        DELETE FROM submission_outcomes WHERE finished_at < $1;
    `
	sqlRecent = `
        SELECT id, run_id, company_name, url, contact_url, status, filled_field_count,
               detection_method, source_url, message, error_type, error_details, started_at, finished_at
        FROM submission_outcomes
        ORDER BY finished_at DESC
        LIMIT $1;
    `
)

// Store is the PostgreSQL outcome store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pool for dsn, verifies it and prepares the schema. The
// returned close function releases the pool.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the outcome table and its indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	statements := []string{sqlCreateTable, sqlCreateDedupIndex, sqlCreateFinishedIndex}
	batch := &pgx.Batch{}
	for _, stmt := range statements {
		batch.Queue(stmt)
	}
	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	for i := range statements {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close schema batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HasRecentSuccess reports whether (companyName, url) has a success
// recorded at or after since.
func (s *Store) HasRecentSuccess(ctx context.Context, companyName, url string, since time.Time) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, sqlHasRecentSuccess, companyName, url, since.UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query recent success: %w", err)
	}
	return exists, nil
}

// Append stores one outcome under runID.
func (s *Store) Append(ctx context.Context, runID string, o schemas.ProcessingOutcome) error {
	_, err := s.pool.Exec(ctx, sqlInsertOutcome,
		uuid.NewString(), runID,
		o.Target.CompanyName, o.Target.URL, o.Target.ContactURL,
		string(o.Status), o.FilledFieldCount,
		string(o.DetectionMethod), o.SourceURL, o.Message,
		string(o.ErrorKind), o.ErrorDetails,
		o.StartedAt.UTC(), o.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome for %s: %w", o.Target.CompanyName, err)
	}
	return nil
}

// Prune deletes outcomes that finished before olderThan and returns how many
// rows went.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, sqlPrune, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune outcomes: %w", err)
	}
	s.log.Info("Pruned outcomes.", zap.Int64("rows", tag.RowsAffected()), zap.Time("older_than", olderThan))
	return tag.RowsAffected(), nil
}

// Recent returns up to limit outcomes, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, sqlRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var status, method, errorKind string
		o := &r.Outcome
		err := rows.Scan(
			&r.ID, &r.RunID,
			&o.Target.CompanyName, &o.Target.URL, &o.Target.ContactURL,
			&status, &o.FilledFieldCount,
			&method, &o.SourceURL, &o.Message,
			&errorKind, &o.ErrorDetails,
			&o.StartedAt, &o.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		o.Status = schemas.Status(status)
		o.DetectionMethod = schemas.DetectionMethod(method)
		o.ErrorKind = schemas.ErrorKind(errorKind)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}
