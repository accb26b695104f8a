// Package memory provides an in-memory ContentStore for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// Store implements scrape.ContentStore with process-local maps.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]scrape.Job
	order   []string
	records []scrape.Record
	nextID  int64
}

// New constructs a Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]scrape.Job),
		nextID: 1,
	}
}

// CreateJob stores a new job, or returns the existing row when the ID is
// already present (idempotent creation). The bool reports whether a new row
// was written.
func (s *Store) CreateJob(_ context.Context, job scrape.Job) (scrape.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[job.ID]; ok {
		return existing, false, nil
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return job, true, nil
}

// UpdateJob applies only the fields set on the update.
func (s *Store) UpdateJob(_ context.Context, jobID string, update scrape.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.ErrNotFound
	}
	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.CompletedAt != nil {
		job.CompletedAt = update.CompletedAt
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	if update.Summary != nil {
		job.Summary = update.Summary
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(_ context.Context, jobID string) (scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.Job{}, scrape.ErrNotFound
	}
	return job, nil
}

// ListJobs returns jobs newest-first, optionally filtered by status.
func (s *Store) ListJobs(_ context.Context, status *scrape.JobStatus, limit, offset int) ([]scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []scrape.Job
	for i := len(s.order) - 1; i >= 0; i-- {
		job := s.jobs[s.order[i]]
		if status != nil && job.Status != *status {
			continue
		}
		jobs = append(jobs, job)
	}
	return paginate(jobs, limit, offset), nil
}

// CountJobsByStatus aggregates job counts per status.
func (s *Store) CountJobsByStatus(_ context.Context) (map[scrape.JobStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[scrape.JobStatus]int64)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

// SaveRecord appends a record and returns its row ID.
func (s *Store) SaveRecord(_ context.Context, record scrape.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = s.nextID
	s.nextID++
	s.records = append(s.records, record)
	return record.ID, nil
}

// ListRecords returns records newest-first matching the query filters.
func (s *Store) ListRecords(_ context.Context, query scrape.RecordQuery) ([]scrape.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []scrape.Record
	for _, rec := range s.records {
		if query.Source != "" && rec.Source != query.Source {
			continue
		}
		if !query.Since.IsZero() && rec.ScrapedAt.Before(query.Since) {
			continue
		}
		if query.Search != "" && !matchesSearch(rec, query.Search) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScrapedAt.After(out[j].ScrapedAt)
	})
	return paginate(out, query.Limit, query.Offset), nil
}

func matchesSearch(rec scrape.Record, search string) bool {
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(rec.Title), needle) ||
		strings.Contains(strings.ToLower(rec.Body), needle)
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
