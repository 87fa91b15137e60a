package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/internal/config"
	"github.com/xkilldash9x/funnel-recon/internal/contract"
)

// ErrNotFound is returned by Load when no report exists for a URL.
var ErrNotFound = errors.New("no stored report for url")

// Repository persists validated reports, one document per normalized URL.
// Save replaces any previous document for the same key.
type Repository interface {
	// Save writes the report and returns where it was stored.
	Save(ctx context.Context, report *contract.AnalysisReport) (string, error)
	// Load returns the stored report for url after re-validating it.
	Load(ctx context.Context, url string) (*contract.AnalysisReport, error)
	Close() error
}

// NormalizeURL derives the storage key for a URL: the scheme and every '/'
// are removed and characters that are unsafe in file names become '_'.
func NormalizeURL(rawURL string) (string, error) {
	key := strings.TrimSpace(rawURL)
	key = strings.TrimPrefix(key, "https://")
	key = strings.TrimPrefix(key, "http://")
	key = strings.ReplaceAll(key, "/", "")

	key = strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`\:*?"<>|#%`, r):
			return '_'
		case unicode.IsSpace(r), unicode.IsControl(r):
			return '_'
		}
		return r
	}, key)

	if key == "" || strings.Trim(key, ".") == "" {
		return "", fmt.Errorf("url %q does not yield a usable storage key", rawURL)
	}
	return key, nil
}

// Open builds the repository selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case config.BackendFile:
		s, err := NewFileStore(cfg.Dir, cfg.FileName, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.ConnString())
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		s, err := NewPostgresStore(ctx, pool, cfg.Postgres.Table, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
