package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store keeps rendered artifacts on local disk between emission and
// delivery. The database holds only the content hash; the bytes live here
// until the dispatcher uploads them to the remote object store.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(trimmed, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Store{dir: trimmed}, nil
}

// Save writes the artifact atomically: a temp file renamed into place, so a
// crashed write never leaves a partial artifact visible.
func (s *Store) Save(reportID string, data []byte) error {
	if err := validateReportID(reportID); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("artifact is empty")
	}

	target := s.path(reportID)
	tmp, err := os.CreateTemp(s.dir, reportID+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalize artifact: %w", err)
	}
	return nil
}

func (s *Store) Load(reportID string) ([]byte, error) {
	if err := validateReportID(reportID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(reportID))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", reportID, err)
	}
	return data, nil
}

func (s *Store) path(reportID string) string {
	return filepath.Join(s.dir, reportID+".pdf")
}

func validateReportID(reportID string) error {
	trimmed := strings.TrimSpace(reportID)
	if trimmed == "" {
		return fmt.Errorf("report id is required")
	}
	if strings.ContainsAny(trimmed, "/\\") {
		return fmt.Errorf("invalid report id %q", reportID)
	}
	return nil
}
