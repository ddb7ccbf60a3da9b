// Package store persists schedule records in a single YAML file.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"schedcal/internal/fileutil"
	"schedcal/internal/model"
)

var ErrNotFound = errors.New("store: schedule not found")

type document struct {
	Schedules []model.Record `yaml:"schedules"`
}

// FileStore keeps every record in memory and rewrites the whole file on each
// mutation. It is safe for concurrent use.
type FileStore struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	records map[string]model.Record
}

// Open loads path, treating a missing file as an empty store.
func Open(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: path is empty")
	}
	s := &FileStore{path: path, now: time.Now, records: make(map[string]model.Record)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("store: parse %s: %w", s.path, err)
	}
	records := make(map[string]model.Record, len(doc.Schedules))
	for _, r := range doc.Schedules {
		if _, dup := records[r.ID]; dup {
			return fmt.Errorf("store: %s: duplicate schedule id %q", s.path, r.ID)
		}
		records[r.ID] = r
	}
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

// Reload re-reads the file, picking up edits made outside the process. On
// error the previously loaded records stay in place.
func (s *FileStore) Reload() error { return s.load() }

// List returns all records ordered by date, start time and id. Invalid
// records are returned as stored; callers convert and report them.
func (s *FileStore) List() ([]model.Record, error) {
	s.mu.RLock()
	out := make([]model.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sortRecords(out)
	return out, nil
}

func (s *FileStore) Get(id string) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return model.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// Create assigns a fresh id and timestamps, validates r and persists it.
func (s *FileStore) Create(r model.Record) (model.Record, error) {
	now := s.now().UTC()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now
	if _, err := r.Definition(); err != nil {
		return model.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
	if err := s.flushLocked(); err != nil {
		delete(s.records, r.ID)
		return model.Record{}, err
	}
	return r, nil
}

// Update replaces the record with r.ID, keeping its creation time.
func (s *FileStore) Update(r model.Record) (model.Record, error) {
	if _, err := r.Definition(); err != nil {
		return model.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.records[r.ID]
	if !ok {
		return model.Record{}, fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	r.CreatedAt = prev.CreatedAt
	r.UpdatedAt = s.now().UTC()
	s.records[r.ID] = r
	if err := s.flushLocked(); err != nil {
		s.records[r.ID] = prev
		return model.Record{}, err
	}
	return r, nil
}

func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.records, id)
	if err := s.flushLocked(); err != nil {
		s.records[id] = prev
		return err
	}
	return nil
}

// Upsert stores records under their existing ids, which importers use to
// keep external UIDs stable across runs. Records without an id get one.
func (s *FileStore) Upsert(records []model.Record) ([]model.Record, error) {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := make(map[string]model.Record, len(s.records))
	for k, v := range s.records {
		prev[k] = v
	}

	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			r.ID = uuid.NewString()
		}
		if old, ok := s.records[r.ID]; ok {
			r.CreatedAt = old.CreatedAt
		} else if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		s.records[r.ID] = r
		out = append(out, r)
	}
	if err := s.flushLocked(); err != nil {
		s.records = prev
		return nil, err
	}
	return out, nil
}

// ReplaceAll swaps the whole content of the store.
func (s *FileStore) ReplaceAll(records []model.Record) error {
	next := make(map[string]model.Record, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return errors.New("store: record without id")
		}
		next[r.ID] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.records
	s.records = next
	if err := s.flushLocked(); err != nil {
		s.records = prev
		return err
	}
	return nil
}

func (s *FileStore) flushLocked() error {
	doc := document{Schedules: make([]model.Record, 0, len(s.records))}
	for _, r := range s.records {
		doc.Schedules = append(doc.Schedules, r)
	}
	sortRecords(doc.Schedules)

	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(s.path, data, 0o600)
}

func sortRecords(rs []model.Record) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.TimeStart != b.TimeStart {
			return a.TimeStart < b.TimeStart
		}
		return a.ID < b.ID
	})
}
