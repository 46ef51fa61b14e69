package job

import (
	"context"
	"time"
)

// Transition describes a single status mutation. Progress never regresses
// while the job is live; a move to FAILED resets it to zero. The store refuses
// transitions that do not follow the status graph and reports ErrTerminal for
// attempts on finished jobs.
type Transition struct {
	Status   Status
	Progress int
	Message  string
}

// Completion carries the output fields recorded alongside the COMPLETED
// transition.
type Completion struct {
	OutputKey   string
	RowCount    int64
	ColumnCount int64
}

type Repository interface {
	Create(ctx context.Context, j *Job) error
	// Apply performs a guarded status transition keyed on (jobID, createdAt).
	Apply(ctx context.Context, jobID string, createdAt time.Time, t Transition) error
	// Complete is Apply(COMPLETED) plus the output columns, in one update.
	Complete(ctx context.Context, jobID string, createdAt time.Time, t Transition, c Completion) error
	// Get returns the most recent record for jobID.
	Get(ctx context.Context, jobID string) (*Job, error)
	// List returns records sorted by created_at descending, optionally
	// filtered by status. Limit is clamped by the caller contract.
	List(ctx context.Context, status Status, limit int) ([]Job, error)
	// DeleteExpired reclaims records whose ttl has passed.
	DeleteExpired(ctx context.Context) (int64, error)
}
