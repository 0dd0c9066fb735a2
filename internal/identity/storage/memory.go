package storage

import (
	"context"
	"sync"
	"time"

	"github.com/avivago/avivago-backend/internal/identity/domain"
)

// MemoryStore keeps jobs in process memory. Used when Redis is not configured.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.ExtractionJob
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryStore creates a store whose jobs expire after ttl. The cleanup
// loop stops when ctx is done.
func NewMemoryStore(ctx context.Context, ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		jobs: make(map[string]*domain.ExtractionJob),
		ttl:  ttl,
		now:  time.Now,
	}
	go s.cleanupLoop(ctx)
	return s
}

func (s *MemoryStore) Save(ctx context.Context, job *domain.ExtractionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.JobID] = &cp
	return nil
}

// Get returns a copy of the job so callers cannot race the worker
func (s *MemoryStore) Get(ctx context.Context, jobID string) (*domain.ExtractionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok || s.expired(job) {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, jobID string, update func(*domain.ExtractionJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || s.expired(job) {
		return ErrJobNotFound
	}
	update(job)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

func (s *MemoryStore) expired(job *domain.ExtractionJob) bool {
	return job.CreatedAt.Before(s.now().Add(-s.ttl))
}

func (s *MemoryStore) cleanupLoop(ctx context.Context) {
	interval := s.ttl / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if s.expired(job) {
			delete(s.jobs, id)
		}
	}
}
