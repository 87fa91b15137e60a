package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/internal/contract"
)

const defaultFileName = "pv_to_atc.json"

// FileStore writes each report to <dir>/<key>/<fileName>.
type FileStore struct {
	dir      string
	fileName string
	log      *zap.Logger
}

var _ Repository = (*FileStore)(nil)

// NewFileStore returns a store rooted at dir. The directory is created on
// first Save.
func NewFileStore(dir, fileName string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if fileName == "" {
		fileName = defaultFileName
	}
	if filepath.Base(fileName) != fileName {
		return nil, fmt.Errorf("file name %q must not contain a path", fileName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, fileName: fileName, log: logger.Named("store.file")}, nil
}

// Path returns the file a report for url is written to.
func (s *FileStore) Path(url string) (string, error) {
	key, err := NormalizeURL(url)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key, s.fileName), nil
}

// Save replaces the report file atomically: the document is written to a
// temporary file in the same directory and renamed over the target.
func (s *FileStore) Save(ctx context.Context, report *contract.AnalysisReport) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.Path(report.URL)
	if err != nil {
		return "", err
	}
	data, err := contract.MarshalIndent(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+s.fileName+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to flush report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("failed to set report permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("failed to move report into place: %w", err)
	}
	committed = true

	s.log.Debug("Report written.", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

// Load reads and re-validates the stored report for url.
func (s *FileStore) Load(ctx context.Context, url string) (*contract.AnalysisReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.Path(url)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	report, err := contract.ValidateJSON(data)
	if err != nil {
		return nil, fmt.Errorf("stored report %s is invalid: %w", path, err)
	}
	return report, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
