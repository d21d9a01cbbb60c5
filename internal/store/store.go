package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

// Store persists the latest status snapshot as a JSON file for external dashboards.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (*model.StatusSnapshot, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var snapshot model.StatusSnapshot
	if err := json.NewDecoder(file).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode status file: %w", err)
	}
	return &snapshot, nil
}

// Save writes through a temp file and rename so readers never see a partial file.
func (s *Store) Save(snapshot *model.StatusSnapshot) error {
	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snapshot); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode status file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}
