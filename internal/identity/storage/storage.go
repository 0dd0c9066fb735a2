// Package storage keeps extraction jobs for the short time between upload
// and the client reading the result. Images are never stored.
package storage

import (
	"context"
	"errors"

	"github.com/avivago/avivago-backend/internal/identity/domain"
)

// ErrJobNotFound is returned for unknown or expired jobs
var ErrJobNotFound = errors.New("extraction job not found")

// JobStore persists extraction jobs with a TTL
type JobStore interface {
	Save(ctx context.Context, job *domain.ExtractionJob) error
	Get(ctx context.Context, jobID string) (*domain.ExtractionJob, error)
	Update(ctx context.Context, jobID string, update func(*domain.ExtractionJob)) error
	Delete(ctx context.Context, jobID string) error
}

// ZeroBytes overwrites a byte slice with zeros so image data does not
// linger in memory after OCR.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
