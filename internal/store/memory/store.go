// Package memory provides an in-memory JobStore for development and tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pagesnap/pagesnap/internal/capture"
)

// Store keeps jobs in a map guarded by a mutex. All writes to one job go
// through the same lock, so a terminal status can never be overwritten by a
// late progress update.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]capture.Job
}

// New constructs a Store.
func New() *Store {
	return &Store{jobs: make(map[string]capture.Job)}
}

// Create stores a new job; the caller sets status and expiry.
func (s *Store) Create(_ context.Context, job capture.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// Get fetches a job by ID.
func (s *Store) Get(_ context.Context, jobID string) (capture.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return capture.Job{}, capture.ErrJobNotFound
	}
	return job, nil
}

// SetProgress records a progress percentage. Terminal jobs and regressions
// are silently ignored so observers never see progress move backwards or a
// finished job resurrect.
func (s *Store) SetProgress(_ context.Context, jobID string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return capture.ErrJobNotFound
	}
	if job.Status.Terminal() || percent < job.Progress {
		return nil
	}
	if percent > 100 {
		percent = 100
	}
	job.Progress = percent
	s.jobs[jobID] = job
	return nil
}

// SetPageCount records the crawl's discovered page count.
func (s *Store) SetPageCount(_ context.Context, jobID string, pages int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return capture.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.PageCount = pages
	s.jobs[jobID] = job
	return nil
}

// Complete transitions processing -> completed with the final file mapping.
func (s *Store) Complete(_ context.Context, jobID string, mapping []capture.FileEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return capture.ErrJobNotFound
	}
	if job.Status != capture.JobStatusProcessing {
		return errors.New("job is not processing")
	}
	job.Status = capture.JobStatusCompleted
	job.Progress = 100
	job.FileMapping = append([]capture.FileEntry(nil), mapping...)
	s.jobs[jobID] = job
	return nil
}

// Fail transitions processing -> error with a message. Calling it on an
// already-terminal job is a no-op.
func (s *Store) Fail(_ context.Context, jobID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return capture.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = capture.JobStatusError
	job.ErrorText = message
	s.jobs[jobID] = job
	return nil
}

// RequestCancel transitions processing -> cancelled.
func (s *Store) RequestCancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return capture.ErrJobNotFound
	}
	if job.Status != capture.JobStatusProcessing {
		return capture.ErrNotCancellable
	}
	job.Status = capture.JobStatusCancelled
	s.jobs[jobID] = job
	return nil
}

// IncrementDownloads bumps the download counter by one.
func (s *Store) IncrementDownloads(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return capture.ErrJobNotFound
	}
	job.DownloadCount++
	s.jobs[jobID] = job
	return nil
}

// ListExpired returns jobs whose retention window has passed.
func (s *Store) ListExpired(_ context.Context, now time.Time) ([]capture.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []capture.Job
	for _, job := range s.jobs {
		if job.Expired(now) {
			out = append(out, job)
		}
	}
	return out, nil
}

// Delete removes a job record.
func (s *Store) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return capture.ErrJobNotFound
	}
	delete(s.jobs, jobID)
	return nil
}
