// Package datarecording persists the reports of finished profiling sessions.
package datarecording

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sarchlab/sessionprof/tracing"
)

// A ReportStore persists a finished report under a relative path and a file
// name.
type ReportStore interface {
	SaveReport(path, name string, report tracing.Report) error
}

// FileStore writes reports as JSON files below a repository directory.
type FileStore struct {
	repository string
}

// NewFileStore creates a FileStore that writes below the repository
// directory.
func NewFileStore(repository string) *FileStore {
	return &FileStore{repository: repository}
}

// Repository returns the directory the store writes into.
func (s *FileStore) Repository() string {
	return s.repository
}

// SaveReport writes the report to <repository>/<path>/<name>.
func (s *FileStore) SaveReport(
	path, name string,
	report tracing.Report,
) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("invalid report name %q", name)
	}

	dir := filepath.Join(s.repository, filepath.Clean("/"+path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	file := filepath.Join(dir, name)
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", file, err)
	}

	return nil
}

// MultiStore saves every report into all of its stores.
type MultiStore []ReportStore

// SaveReport saves the report into every store, even if some of them fail.
func (m MultiStore) SaveReport(
	path, name string,
	report tracing.Report,
) error {
	var errs []error

	for _, s := range m {
		if err := s.SaveReport(path, name, report); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Close closes every store that holds resources. Stores without a Close
// method are skipped.
func (m MultiStore) Close() error {
	var errs []error

	for _, s := range m {
		c, ok := s.(io.Closer)
		if !ok {
			continue
		}

		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
