package job

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	domain "github.com/databridge/databridge/internal/job"
)

// timeFormat is fixed-width so that lexicographic TEXT comparison of stored
// timestamps matches chronological order. RFC3339Nano strips trailing fraction
// zeros, which would sort a whole-second timestamp after a fractional one in
// the same second.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const jobColumns = `job_id, created_at, updated_at, status, source_type, source_config,
	progress, message, ttl, filename, table_name, output_key, row_count, column_count`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, j *domain.Job) error {
	const query = `INSERT INTO jobs (job_id, created_at, updated_at, status, source_type,
		source_config, progress, message, ttl, filename, table_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = j.CreatedAt
	if j.Status == "" {
		j.Status = domain.StatusPending
	}

	_, err := r.db.ExecContext(ctx, query,
		j.JobID, j.CreatedAt.Format(timeFormat), j.UpdatedAt.Format(timeFormat),
		string(j.Status), j.SourceType, j.SourceConfig,
		j.Progress, j.Message, j.TTL, j.Filename, j.TableName,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Apply performs the transition as a single guarded UPDATE: the row must match
// (job_id, created_at) and hold one of the statuses the target status may be
// entered from. Progress cannot regress while the job is live and is reset to
// zero on FAILED.
func (r *Repository) Apply(ctx context.Context, jobID string, createdAt time.Time, t domain.Transition) error {
	query := `UPDATE jobs SET status = ?,
		progress = CASE WHEN ? = 'FAILED' THEN 0 ELSE MAX(progress, ?) END,
		message = ?, updated_at = ?
		WHERE job_id = ? AND created_at = ? AND status IN ` + statusSet(domain.From(t.Status))

	res, err := r.db.ExecContext(ctx, query,
		string(t.Status), string(t.Status), t.Progress, t.Message,
		time.Now().UTC().Format(timeFormat),
		jobID, createdAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}
	return r.checkApplied(ctx, res, jobID, createdAt, t.Status)
}

func (r *Repository) Complete(ctx context.Context, jobID string, createdAt time.Time, t domain.Transition, c domain.Completion) error {
	query := `UPDATE jobs SET status = ?, progress = MAX(progress, ?), message = ?,
		updated_at = ?, output_key = ?, row_count = ?, column_count = ?
		WHERE job_id = ? AND created_at = ? AND status IN ` + statusSet(domain.From(domain.StatusCompleted))

	res, err := r.db.ExecContext(ctx, query,
		string(domain.StatusCompleted), t.Progress, t.Message,
		time.Now().UTC().Format(timeFormat),
		c.OutputKey, c.RowCount, c.ColumnCount,
		jobID, createdAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return r.checkApplied(ctx, res, jobID, createdAt, domain.StatusCompleted)
}

// checkApplied classifies a zero-row update: missing record, terminal record,
// or an illegal edge.
func (r *Repository) checkApplied(ctx context.Context, res sql.Result, jobID string, createdAt time.Time, to domain.Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRowContext(ctx,
		`SELECT status FROM jobs WHERE job_id = ? AND created_at = ?`,
		jobID, createdAt.Format(timeFormat),
	).Scan(&status)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read job status: %w", err)
	}
	if domain.Status(status).Terminal() {
		return domain.ErrTerminal
	}
	return fmt.Errorf("illegal transition %s -> %s", status, to)
}

func (r *Repository) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = ?
		ORDER BY created_at DESC LIMIT 1`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *Repository) List(ctx context.Context, status domain.Status, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM jobs WHERE ttl > 0 AND ttl <= strftime('%s', 'now')`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*domain.Job, error) {
	j := &domain.Job{}
	var status, createdStr, updatedStr string

	err := s.Scan(
		&j.JobID, &createdStr, &updatedStr, &status, &j.SourceType, &j.SourceConfig,
		&j.Progress, &j.Message, &j.TTL, &j.Filename, &j.TableName,
		&j.OutputKey, &j.RowCount, &j.ColumnCount,
	)
	if err != nil {
		return nil, err
	}

	j.Status = domain.Status(status)
	j.CreatedAt, _ = time.Parse(timeFormat, createdStr)
	j.UpdatedAt, _ = time.Parse(timeFormat, updatedStr)
	return j, nil
}

// statusSet renders a status list as a quoted SQL tuple. Statuses are a fixed
// enum, never user input.
func statusSet(statuses []domain.Status) string {
	quoted := make([]string, len(statuses))
	for i, s := range statuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}
