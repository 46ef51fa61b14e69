// Package transform converts raw ingested payloads into partitioned parquet
// artifacts and finalizes the owning job.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/databridge/databridge/internal/blob"
	"github.com/databridge/databridge/internal/dispatch"
	"github.com/databridge/databridge/internal/job"
)

// Engine implements dispatch.Handler. Deliveries are at-least-once: a second
// delivery for a finished job hits the terminal-state guard on the first
// transition and is dropped without touching the record.
type Engine struct {
	repo       job.Repository
	store      blob.Store
	rawBucket  string
	lakeBucket string
	now        func() time.Time
}

func NewEngine(repo job.Repository, store blob.Store, rawBucket, lakeBucket string) *Engine {
	return &Engine{
		repo:       repo,
		store:      store,
		rawBucket:  rawBucket,
		lakeBucket: lakeBucket,
		now:        time.Now,
	}
}

func (e *Engine) Handle(ctx context.Context, t dispatch.Task) error {
	err := e.step(ctx, t, job.Transition{
		Status: job.StatusTransforming, Progress: 55, Message: "Starting data transformation...",
	})
	if err != nil {
		if errors.Is(err, job.ErrTerminal) {
			slog.Warn("transform: job already finished, dropping delivery", "job", t.JobID)
			return nil
		}
		return err
	}

	if err := e.run(ctx, t); err != nil {
		e.fail(ctx, t, err)
		return err
	}
	return nil
}

func (e *Engine) run(ctx context.Context, t dispatch.Task) error {
	if err := e.step(ctx, t, job.Transition{
		Status: job.StatusTransforming, Progress: 60, Message: "Downloading raw file from storage...",
	}); err != nil {
		return err
	}
	data, err := e.store.Get(ctx, e.rawBucket, t.BlobKey)
	if err != nil {
		return fmt.Errorf("fetch raw payload %s: %w", t.BlobKey, err)
	}

	filename := path.Base(t.BlobKey)
	format, err := DetectFormat(filename)
	if err != nil {
		return err
	}
	if err := e.step(ctx, t, job.Transition{
		Status: job.StatusTransforming, Progress: 65, Message: fmt.Sprintf("Detected format: %s", format),
	}); err != nil {
		return err
	}

	var output []byte
	var rows, cols int64
	if format == FormatParquet {
		// Already columnar: keep the payload and its schema, read counts
		// from the footer.
		rows, cols, err = Stats(data)
		if err != nil {
			return fmt.Errorf("read parquet input: %w", err)
		}
		output = data
	} else {
		if err := e.step(ctx, t, job.Transition{
			Status: job.StatusTransforming, Progress: 70, Message: "Parsing data...",
		}); err != nil {
			return err
		}
		table, err := Parse(format, data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", format, err)
		}
		rows, cols = table.RowCount(), table.ColumnCount()

		if err := e.step(ctx, t, job.Transition{
			Status:   job.StatusTransforming,
			Progress: 80,
			Message:  fmt.Sprintf("Loaded %d rows, %d columns. Converting to Parquet...", rows, cols),
		}); err != nil {
			return err
		}
		output, err = Encode(table, InferSchema(table))
		if err != nil {
			return fmt.Errorf("encode parquet: %w", err)
		}
	}

	processingDate := e.now().UTC().Format("2006-01-02")
	outputKey := OutputKey(t.TableName, processingDate, filename, t.JobID)

	if err := e.step(ctx, t, job.Transition{
		Status: job.StatusTransforming, Progress: 90, Message: "Uploading Parquet file to data lake...",
	}); err != nil {
		return err
	}
	err = e.store.Put(ctx, e.lakeBucket, outputKey, output, map[string]string{
		"job_id":          t.JobID,
		"source_file":     filename,
		"row_count":       strconv.FormatInt(rows, 10),
		"column_count":    strconv.FormatInt(cols, 10),
		"processing_date": processingDate,
	})
	if err != nil {
		return fmt.Errorf("write lake object %s: %w", outputKey, err)
	}

	err = e.repo.Complete(ctx, t.JobID, t.CreatedAt, job.Transition{
		Status:   job.StatusCompleted,
		Progress: 100,
		Message:  fmt.Sprintf("Successfully converted to Parquet. Output: %s/%s", e.lakeBucket, outputKey),
	}, job.Completion{
		OutputKey:   outputKey,
		RowCount:    rows,
		ColumnCount: cols,
	})
	if err != nil {
		if errors.Is(err, job.ErrTerminal) {
			slog.Warn("transform: job finished concurrently", "job", t.JobID)
			return nil
		}
		return fmt.Errorf("finalize job: %w", err)
	}

	slog.Info("transform: completed", "job", t.JobID, "outputKey", outputKey, "rows", rows, "columns", cols)
	return nil
}

// step applies a non-terminal transition, passing terminal rejections through
// unchanged for the caller to classify.
func (e *Engine) step(ctx context.Context, t dispatch.Task, tr job.Transition) error {
	return e.repo.Apply(ctx, t.JobID, t.CreatedAt, tr)
}

// fail records the error against the job. Failures here are logged only;
// there is nothing further to propagate to.
func (e *Engine) fail(ctx context.Context, t dispatch.Task, cause error) {
	err := e.repo.Apply(ctx, t.JobID, t.CreatedAt, job.Transition{
		Status:  job.StatusFailed,
		Message: fmt.Sprintf("Transformation failed: %v", cause),
	})
	if err != nil && !errors.Is(err, job.ErrTerminal) {
		slog.Error("transform: could not record failure", "job", t.JobID, "error", err)
	}
}

// OutputKey derives the partitioned data-lake key:
// {table}/{YYYY-MM-DD}/{base}_{jobID}.parquet
func OutputKey(tableName, processingDate, filename, jobID string) string {
	if tableName == "" {
		tableName = "default"
	}
	base := strings.TrimSuffix(filename, path.Ext(filename))
	return fmt.Sprintf("%s/%s/%s_%s.%s", tableName, processingDate, base, jobID, OutputExt)
}
