package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
)

var (
	// ErrNotFound is returned when a job does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a job id is already taken
	ErrAlreadyExists = errors.New("already exists")

	// ErrTerminal is returned when a status change targets a job that is
	// already done or failed
	ErrTerminal = errors.New("job already in terminal status")
)

// PluginPersistence provides storage operations for persistence plugins.
// This is the main interface that all persistence backends must implement.
type PluginPersistence interface {
	// JobStorage returns the job storage implementation
	JobStorage() JobStorage

	// Health checks if the persistence backend is healthy
	Health(ctx context.Context) error

	// Close releases resources held by the persistence backend
	Close() error
}

// JobStorage defines persistence operations for analysis jobs
type JobStorage interface {
	// Create stores a new job record
	Create(ctx context.Context, job *domain.JobRecord) error

	// Get retrieves a job by ID
	Get(ctx context.Context, id string) (*domain.JobRecord, error)

	// UpdateStatus moves a job to status and returns the stored record.
	// Setting the status a terminal job already has is a no-op; any other
	// change to a terminal job fails with ErrTerminal.
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMsg string, at time.Time) (*domain.JobRecord, error)

	// CountByStatus returns the number of stored jobs per status
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

// Expirer is implemented by plugins that drop finished jobs once their
// retention window has passed.
type Expirer interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int64) (int, error)
}

// CheckTransition enforces the terminal-status invariant shared by all plugins.
// It reports whether the stored record needs to change.
func CheckTransition(current *domain.JobRecord, next domain.JobStatus) (bool, error) {
	if current.Status == next {
		return false, nil
	}
	if current.Status.IsTerminal() {
		return false, ErrTerminal
	}
	return true, nil
}
