// Package store persists calibration results so a restarted tracker can
// reuse them without running calibration again.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/pupil"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("record not found")

// Record is one finished calibration.
type Record struct {
	ID         string                    `json:"id"`
	Kind       calibration.Kind          `json:"kind"`
	Thresholds gaze.Thresholds           `json:"thresholds"`
	Directions *gaze.DirectionThresholds `json:"directions,omitempty"` // 9-point only
	Pupil      *pupil.CalibratorSnapshot `json:"pupil,omitempty"`      // binarisation history
	CreatedAt  time.Time                 `json:"created_at"`
}

// Store defines the interface for calibration storage.
type Store interface {
	// Save adds a record, assigning ID and CreatedAt when empty
	Save(rec *Record) error

	// Latest returns the newest record of a kind
	Latest(kind calibration.Kind) (*Record, error)

	// List returns all records, newest first
	List() ([]*Record, error)

	// Delete removes a record by ID
	Delete(id string) error

	// Count returns the number of records
	Count() int
}

// JSONStore implements Store using a JSON file for persistence.
type JSONStore struct {
	path    string
	records map[string]*Record
	mu      sync.RWMutex
}

// storeData is the JSON structure for the store file.
type storeData struct {
	Version   int       `json:"version"`
	UpdatedAt string    `json:"updated_at"`
	Records   []*Record `json:"records"`
}

const currentVersion = 1

// NewJSONStore opens the store at path. The file is created on first save.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path:    path,
		records: make(map[string]*Record),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("failed to load store: %w", err)
		}
	}

	return s, nil
}

// DefaultPath is ~/.gaze/calibrations.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".gaze", "calibrations.json"), nil
}

// NewDefaultStore creates a store at DefaultPath.
func NewDefaultStore() (*JSONStore, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return NewJSONStore(path)
}

func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	if stored.Version > currentVersion {
		return fmt.Errorf("unsupported store version %d", stored.Version)
	}

	s.records = make(map[string]*Record, len(stored.Records))
	for _, rec := range stored.Records {
		if rec == nil || rec.ID == "" {
			continue
		}
		s.records[rec.ID] = rec
	}
	return nil
}

// save writes the store to disk. Caller holds the lock.
func (s *JSONStore) save() error {
	stored := storeData{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Records:   s.sorted(),
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write to temp file first, then rename (atomic write)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Save adds or replaces a record.
func (s *JSONStore) Save(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	if _, ok := calibration.ParseKind(string(rec.Kind)); !ok {
		return fmt.Errorf("unknown calibration kind %q", rec.Kind)
	}
	if !rec.Thresholds.Valid() {
		return fmt.Errorf("refusing to store invalid thresholds: %+v", rec.Thresholds)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s.records[rec.ID] = rec
	return s.save()
}

// Latest returns the newest record of kind.
func (s *JSONStore) Latest(kind calibration.Kind) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.sorted() {
		if rec.Kind == kind {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s calibration", ErrNotFound, kind)
}

// LatestAny returns the newest record of any kind.
func (s *JSONStore) LatestAny() (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.sorted()
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// List returns all records, newest first.
func (s *JSONStore) List() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(), nil
}

// Delete removes a record by ID.
func (s *JSONStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.records, id)
	return s.save()
}

// Count returns the number of records.
func (s *JSONStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Path returns the file path of the store.
func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) sorted() []*Record {
	recs := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	return recs
}
