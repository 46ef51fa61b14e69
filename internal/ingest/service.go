// Package ingest orchestrates the ingestion flow: validate the request,
// create the job record, fetch the payload through a connector, land it in
// raw storage and hand the job to the transform dispatcher.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/databridge/databridge/internal/blob"
	"github.com/databridge/databridge/internal/connector"
	"github.com/databridge/databridge/internal/dispatch"
	"github.com/databridge/databridge/internal/job"
)

type Service struct {
	repo       job.Repository
	registry   *connector.Registry
	store      blob.Store
	dispatcher dispatch.Dispatcher
	rawBucket  string
	ttl        time.Duration
	now        func() time.Time
}

func NewService(repo job.Repository, registry *connector.Registry, store blob.Store, dispatcher dispatch.Dispatcher, rawBucket string, ttl time.Duration) *Service {
	return &Service{
		repo:       repo,
		registry:   registry,
		store:      store,
		dispatcher: dispatcher,
		rawBucket:  rawBucket,
		ttl:        ttl,
		now:        time.Now,
	}
}

// SubmitResult is what the caller gets back once the job is accepted. The job
// keeps running in the background; Status reflects the state at return time.
type SubmitResult struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	SourceType string `json:"source_type"`
	TableName  string `json:"table_name"`
}

type UploadResult struct {
	JobID     string `json:"job_id"`
	Filename  string `json:"filename"`
	TableName string `json:"table_name"`
	Status    string `json:"status"`
	BlobKey   string `json:"blob_key"`
}

// Submit runs one ingestion. Validation failures surface before any job
// record exists; failures after that point are recorded on the job and also
// returned to the caller.
func (s *Service) Submit(ctx context.Context, req IngestRequest) (*SubmitResult, error) {
	cfg, appErr := req.Validate()
	if appErr != nil {
		return nil, appErr
	}

	jobID := uuid.NewString()
	createdAt := s.now().UTC()
	tableName := req.EffectiveTable()

	rawCfg := req.Config
	if len(rawCfg) == 0 {
		rawCfg = json.RawMessage("{}")
	}
	j := &job.Job{
		JobID:        jobID,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
		Status:       job.StatusPending,
		SourceType:   req.SourceType,
		SourceConfig: string(rawCfg),
		Message:      "Job created, waiting for processing",
		TableName:    tableName,
		TTL:          createdAt.Add(s.ttl).Unix(),
	}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.apply(ctx, jobID, createdAt, job.StatusProcessing, 10, connectMessage(cfg.Type)); err != nil {
		return nil, err
	}

	conn, err := s.registry.Get(req.SourceType)
	if err != nil {
		return nil, s.fail(ctx, jobID, createdAt, req.SourceType, err)
	}

	data, err := conn.Fetch(ctx, cfg)
	if err != nil {
		return nil, s.fail(ctx, jobID, createdAt, req.SourceType, err)
	}

	if err := s.apply(ctx, jobID, createdAt, job.StatusProcessing, 30,
		fmt.Sprintf("Downloaded %d bytes, storing payload...", len(data))); err != nil {
		return nil, err
	}

	filename := sourceFilename(cfg, jobID)
	blobKey := rawKey(jobID, filename)
	meta := map[string]string{
		"job_id":            jobID,
		"source_type":       req.SourceType,
		"original_filename": filename,
		"table_name":        tableName,
	}
	if err := s.store.Put(ctx, s.rawBucket, blobKey, data, meta); err != nil {
		return nil, s.fail(ctx, jobID, createdAt, req.SourceType, fmt.Errorf("store payload: %w", err))
	}

	if err := s.apply(ctx, jobID, createdAt, job.StatusProcessing, 50,
		"File uploaded to storage, triggering transformation..."); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Invoke(ctx, dispatch.Task{
		JobID:     jobID,
		CreatedAt: createdAt,
		BlobKey:   blobKey,
		TableName: tableName,
	}); err != nil {
		return nil, s.fail(ctx, jobID, createdAt, req.SourceType, fmt.Errorf("dispatch transform: %w", err))
	}

	slog.Info("ingestion accepted", "job", jobID, "source", req.SourceType, "table", tableName, "bytes", len(data))
	return &SubmitResult{
		JobID:      jobID,
		Status:     string(job.StatusProcessing),
		SourceType: req.SourceType,
		TableName:  tableName,
	}, nil
}

// Upload ingests a payload handed over directly by the client. The size and
// extension checks run before anything is written: an oversize or unsupported
// upload leaves no job record and no blob behind.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if appErr := req.Validate(); appErr != nil {
		return nil, appErr
	}

	jobID := uuid.NewString()
	createdAt := s.now().UTC()
	tableName := req.EffectiveTable()
	blobKey := rawKey(jobID, req.Filename)

	j := &job.Job{
		JobID:      jobID,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
		Status:     job.StatusPending,
		SourceType: connector.TypeUpload,
		Message:    "Upload received, waiting for processing",
		Filename:   req.Filename,
		TableName:  tableName,
		TTL:        createdAt.Add(s.ttl).Unix(),
	}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	meta := map[string]string{
		"job_id":            jobID,
		"source_type":       connector.TypeUpload,
		"original_filename": req.Filename,
		"table_name":        tableName,
	}
	if err := s.store.Put(ctx, s.rawBucket, blobKey, req.Content, meta); err != nil {
		return nil, s.fail(ctx, jobID, createdAt, connector.TypeUpload, fmt.Errorf("store payload: %w", err))
	}

	if err := s.apply(ctx, jobID, createdAt, job.StatusProcessing, 50,
		"File uploaded to storage, triggering transformation..."); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Invoke(ctx, dispatch.Task{
		JobID:     jobID,
		CreatedAt: createdAt,
		BlobKey:   blobKey,
		TableName: tableName,
	}); err != nil {
		return nil, s.fail(ctx, jobID, createdAt, connector.TypeUpload, fmt.Errorf("dispatch transform: %w", err))
	}

	slog.Info("upload accepted", "job", jobID, "filename", req.Filename, "table", tableName, "bytes", len(req.Content))
	return &UploadResult{
		JobID:     jobID,
		Filename:  req.Filename,
		TableName: tableName,
		Status:    string(job.StatusProcessing),
		BlobKey:   blobKey,
	}, nil
}

func (s *Service) apply(ctx context.Context, jobID string, createdAt time.Time, status job.Status, progress int, message string) error {
	err := s.repo.Apply(ctx, jobID, createdAt, job.Transition{
		Status:   status,
		Progress: progress,
		Message:  message,
	})
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	return nil
}

// fail records the error on the job and returns it. The recording itself is
// best effort; if it cannot be written the original error still reaches the
// caller.
func (s *Service) fail(ctx context.Context, jobID string, createdAt time.Time, sourceType string, cause error) error {
	msg := fmt.Sprintf("%s ingestion failed: %v", strings.ToUpper(sourceType), cause)
	err := s.repo.Apply(ctx, jobID, createdAt, job.Transition{
		Status:  job.StatusFailed,
		Message: msg,
	})
	if err != nil {
		slog.Error("failed to record job failure", "job", jobID, "error", err)
	}
	if kind := connector.KindOf(cause); kind != "" {
		slog.Error("ingestion failed", "job", jobID, "source", sourceType, "kind", string(kind), "error", cause)
	} else {
		slog.Error("ingestion failed", "job", jobID, "source", sourceType, "error", cause)
	}
	return cause
}

func rawKey(jobID, filename string) string {
	return fmt.Sprintf("raw/%s/%s", jobID, filename)
}

func connectMessage(sourceType string) string {
	switch sourceType {
	case connector.TypeFTP:
		return "Connecting to FTP server..."
	case connector.TypeTCP:
		return "Connecting to TCP endpoint..."
	default:
		return "Fetching data from HTTP endpoint..."
	}
}

// sourceFilename derives the raw object name. FTP keeps the remote file's
// base name; HTTP and TCP sources can name the payload in their config and
// otherwise get a per-job default.
func sourceFilename(cfg *connector.Config, jobID string) string {
	switch cfg.Type {
	case connector.TypeFTP:
		return path.Base(cfg.FTP.FilePath)
	case connector.TypeTCP:
		if cfg.TCP.Filename != "" {
			return cfg.TCP.Filename
		}
		return fmt.Sprintf("tcp_data_%s.bin", jobID)
	default:
		if cfg.HTTP.Filename != "" {
			return cfg.HTTP.Filename
		}
		return fmt.Sprintf("http_data_%s.json", jobID)
	}
}
