// Package memory provides a fully in-memory job repository. Safe for
// concurrent access. Intended for unit testing and development; it
// obviously does not survive a process restart.
package memory

import (
	"context"
	"sort"
	"sync"

	upscaler "github.com/CheapNud/CheapUpscaler-sub000"
	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
)

// Ensure Store implements the repository contract at compile time.
var _ job.Repository = (*Store)(nil)

// Store is an in-memory job.Repository.
type Store struct {
	mu   sync.RWMutex
	jobs map[id.JobID]*job.Job
}

// New returns a new empty Store.
func New() *Store {
	return &Store{jobs: make(map[id.JobID]*job.Job)}
}

// Add persists a new job.
func (m *Store) Add(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[j.ID]; exists {
		return upscaler.ErrJobAlreadyExists
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

// Update persists changes to an existing job.
func (m *Store) Update(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[j.ID]; !exists {
		return upscaler.ErrJobNotFound
	}
	m.jobs[j.ID] = j.Clone()
	return nil
}

// Delete removes a job.
func (m *Store) Delete(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[jobID]; !exists {
		return upscaler.ErrJobNotFound
	}
	delete(m.jobs, jobID)
	return nil
}

// GetByID retrieves a job by ID.
func (m *Store) GetByID(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, upscaler.ErrJobNotFound
	}
	return j.Clone(), nil
}

// GetByIDs retrieves the jobs for the given IDs. Missing IDs are skipped.
func (m *Store) GetByIDs(_ context.Context, jobIDs []id.JobID) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*job.Job, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		if j, ok := m.jobs[jobID]; ok {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

// GetAll returns every job, oldest first.
func (m *Store) GetAll(context.Context) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.Clone())
	}
	sortByAge(out)
	return out, nil
}

// ListByStatus returns jobs in the given status, oldest first.
func (m *Store) ListByStatus(_ context.Context, status job.Status) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*job.Job
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, j.Clone())
		}
	}
	sortByAge(out)
	return out, nil
}

// CountByStatus returns the number of jobs in the given status.
func (m *Store) CountByStatus(_ context.Context, status job.Status) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

func sortByAge(jobs []*job.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID.String() < jobs[k].ID.String()
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}
