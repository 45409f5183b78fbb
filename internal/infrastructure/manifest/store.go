package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"PfamSurvey/internal/domain"
)

// FileName is the manifest written into the work directory.
const FileName = "manifest.json"

// ErrNotFound is returned by Load when no earlier stage left a manifest behind.
var ErrNotFound = errors.New("manifest not found")

// Store persists the manifest between stage invocations.
type Store struct {
	dir string
}

// NewStore keeps the manifest in dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path of the manifest file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Save writes the manifest atomically.
func (s *Store) Save(m *domain.Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, FileName+".*")
	if err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// Load reads the manifest left by a previous stage.
func (s *Store) Load() (*domain.Manifest, error) {
	raw, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.Path(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	var m domain.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", s.Path(), err)
	}
	return &m, nil
}
