package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"outreach/internal/models"
)

// document is the on-disk shape of the queue file.
type document struct {
	Jobs []models.Job `json:"jobs"`
}

// Store persists the job queue as one whole-file JSON document. Every
// operation reads the entire document, mutates it in memory and writes
// it back via tmp-then-rename, so a crash mid-write never corrupts the
// file. There is deliberately no cross-process lock: the enqueuer and
// the worker are expected to run as non-overlapping actors.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the queue file location.
func (s *Store) Path() string { return s.path }

// Load reads all jobs. A missing file is an empty queue, not an error.
func (s *Store) Load() ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() ([]models.Job, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: read %s: %w", s.path, err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("queue: parse %s: %w", s.path, err)
	}
	return doc.Jobs, nil
}

// Save replaces the whole document with the given job list.
func (s *Store) Save(jobs []models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(jobs)
}

func (s *Store) saveLocked(jobs []models.Job) error {
	if jobs == nil {
		jobs = []models.Job{}
	}
	data, err := json.MarshalIndent(document{Jobs: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("queue: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("queue: create dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("queue: write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("queue: replace: %w", err)
	}
	return nil
}

// Append adds a job to the end of the document, creating the file on
// first enqueue.
func (s *Store) Append(job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.loadLocked()
	if err != nil {
		return err
	}
	jobs = append(jobs, job)
	return s.saveLocked(jobs)
}

// Update applies mutate to the job with the given id and persists the
// whole document. Unknown ids return os.ErrNotExist.
func (s *Store) Update(id string, mutate func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range jobs {
		if jobs[i].ID == id {
			mutate(&jobs[i])
			return s.saveLocked(jobs)
		}
	}
	return fmt.Errorf("queue: job %s: %w", id, os.ErrNotExist)
}

// Due returns pending jobs whose scheduled time has passed, oldest
// first, so the worker drains in schedule order.
func (s *Store) Due(now time.Time) ([]models.Job, error) {
	jobs, err := s.Load()
	if err != nil {
		return nil, err
	}
	var due []models.Job
	for _, j := range jobs {
		if j.Due(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	return due, nil
}
