package job

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending      Status = "PENDING"
	StatusProcessing   Status = "PROCESSING"
	StatusTransforming Status = "TRANSFORMING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
)

// ErrTerminal is returned when a transition is attempted on a job that has
// already reached COMPLETED or FAILED.
var ErrTerminal = errors.New("job is in a terminal state")

// ErrNotFound is returned when no record matches (job_id, created_at).
var ErrNotFound = errors.New("job not found")

// Job is a tracked unit of ingest-then-transform work. (JobID, CreatedAt) is
// the only update key; Status moves along the edges in Transitions.
type Job struct {
	JobID        string    `json:"job_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Status       Status    `json:"status"`
	SourceType   string    `json:"source_type"`
	SourceConfig string    `json:"-"`
	Progress     int       `json:"progress"`
	Message      string    `json:"message"`
	TTL          int64     `json:"-"`
	Filename     string    `json:"filename,omitempty"`
	TableName    string    `json:"table_name,omitempty"`
	OutputKey    string    `json:"output_key,omitempty"`
	RowCount     int64     `json:"row_count"`
	ColumnCount  int64     `json:"column_count"`
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusTransforming, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// transitions lists, for each target status, the statuses it may be entered
// from. Live states permit re-entry so progress and message can advance
// within a phase; terminal states accept nothing. PENDING is only set at
// creation and is never a transition target.
var transitions = map[Status][]Status{
	StatusProcessing:   {StatusPending, StatusProcessing},
	StatusTransforming: {StatusProcessing, StatusTransforming},
	StatusCompleted:    {StatusTransforming},
	StatusFailed:       {StatusPending, StatusProcessing, StatusTransforming},
}

// From returns the legal predecessor statuses for entering to.
func From(to Status) []Status {
	return transitions[to]
}

// canTransition reports whether a job currently in from may move to to.
func canTransition(from, to Status) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}
