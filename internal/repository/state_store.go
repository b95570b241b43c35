package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// MaintenanceState is the persisted record of background maintenance.
// Timestamps are unix milliseconds; zero means never.
type MaintenanceState struct {
	ReindexInProgress bool   `json:"reindexInProgress"`
	LastReindexAt     int64  `json:"lastReindexAt,omitempty"`
	LastGenerateAt    int64  `json:"lastGenerateAt,omitempty"`
	LastGenerated     int    `json:"lastGenerated,omitempty"`
	LastArchiveAt     int64  `json:"lastArchiveAt,omitempty"`
	IntegrityError    string `json:"integrityError,omitempty"`
	IntegrityCheckAt  int64  `json:"integrityCheckAt,omitempty"`
}

// StateStore keeps MaintenanceState in a JSON file. All reads and writes go
// through one mutex, so Update is an atomic read-modify-write within the
// process.
type StateStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewStateStore(fsys afero.Fs, dir string) *StateStore {
	return &StateStore{fs: fsys, path: filepath.Join(dir, "maintenance.json")}
}

// Load returns the current state; a missing file is the zero state.
func (s *StateStore) Load() (MaintenanceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Update applies fn to the current state and persists the result. When fn
// returns an error nothing is written.
func (s *StateStore) Update(fn func(*MaintenanceState) error) (MaintenanceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read()
	if err != nil {
		return MaintenanceState{}, err
	}
	if err := fn(&st); err != nil {
		return st, err
	}
	if err := s.write(st); err != nil {
		return MaintenanceState{}, err
	}
	return st, nil
}

func (s *StateStore) read() (MaintenanceState, error) {
	var st MaintenanceState
	b, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read maintenance state: %w", err)
	}
	if len(b) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return MaintenanceState{}, fmt.Errorf("decode maintenance state: %w", err)
	}
	return st, nil
}

// write goes through a temp file and rename so a crash never leaves a
// truncated record.
func (s *StateStore) write(st MaintenanceState) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode maintenance state: %w", err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o644); err != nil {
		return fmt.Errorf("write maintenance state: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace maintenance state: %w", err)
	}
	return nil
}
