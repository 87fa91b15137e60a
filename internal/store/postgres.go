package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/internal/contract"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore keeps one row per normalized URL, replaced on every Save.
type PostgresStore struct {
	pool  DBPool
	name  string
	table string
	log   *zap.Logger
	now   func() time.Time
}

var _ Repository = (*PostgresStore)(nil)

// NewPostgresStore creates a new store instance and verifies the connection.
func NewPostgresStore(ctx context.Context, pool DBPool, table string, logger *zap.Logger) (*PostgresStore, error) {
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{
		pool:  pool,
		name:  table,
		table: pgx.Identifier{table}.Sanitize(),
		log:   logger.Named("store.postgres"),
		now:   time.Now,
	}, nil
}

func (s *PostgresStore) schemaSQL() string {
	return `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
    key TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    status TEXT NOT NULL,
    report JSONB NOT NULL,
    analyzed_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`
}

func (s *PostgresStore) upsertSQL() string {
	return `INSERT INTO ` + s.table + ` (key, url, status, report, analyzed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (key) DO UPDATE SET
    url = EXCLUDED.url,
    status = EXCLUDED.status,
    report = EXCLUDED.report,
    analyzed_at = EXCLUDED.analyzed_at,
    updated_at = EXCLUDED.updated_at`
}

func (s *PostgresStore) selectSQL() string {
	return `SELECT report FROM ` + s.table + ` WHERE key = $1`
}

// EnsureSchema creates the reports table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, s.schemaSQL()); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	return nil
}

// Save upserts the report under its normalized URL.
func (s *PostgresStore) Save(ctx context.Context, report *contract.AnalysisReport) (string, error) {
	key, err := NormalizeURL(report.URL)
	if err != nil {
		return "", err
	}
	data, err := contract.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	tag, err := s.pool.Exec(ctx, s.upsertSQL(),
		key, report.URL, string(report.Status), data,
		report.Timestamp.UTC(), s.now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert report: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return "", fmt.Errorf("unexpected rows affected by upsert: %d", tag.RowsAffected())
	}

	s.log.Debug("Report upserted.", zap.String("key", key))
	return "postgres://" + s.name + "/" + key, nil
}

// Load fetches and re-validates the stored report for url.
func (s *PostgresStore) Load(ctx context.Context, url string) (*contract.AnalysisReport, error) {
	key, err := NormalizeURL(url)
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := s.pool.QueryRow(ctx, s.selectSQL(), key).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	report, err := contract.ValidateJSON(data)
	if err != nil {
		return nil, fmt.Errorf("stored report for %s is invalid: %w", key, err)
	}
	return report, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
