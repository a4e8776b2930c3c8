package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hazyhaar/vigie/feature"
)

// SaveState persists a trained bundle to a JSON state file so a restart
// does not have to retrain. The write goes through a temp file and rename
// so a crash mid-write never leaves a torn state file.
func SaveState(path string, m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("model: marshal state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadState restores a bundle from a state file. A bundle trained against
// a different feature schema version is rejected: stale vectors would be
// scored against the wrong columns.
func LoadState(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("model: unmarshal state: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.URL.Schema.Version != feature.URLSchema().Version {
		return nil, fmt.Errorf("%w: url schema v%d, want v%d",
			ErrInvalidModel, m.URL.Schema.Version, feature.URLSchema().Version)
	}
	if m.Email.Schema.Version != feature.EmailSchema().Version {
		return nil, fmt.Errorf("%w: email schema v%d, want v%d",
			ErrInvalidModel, m.Email.Schema.Version, feature.EmailSchema().Version)
	}
	return &m, nil
}
