package job

import (
	"context"
	"log/slog"
)

// Service is the read-only status projection over the job store. Writers are
// the ingest orchestrator and the transform engine; this service never
// mutates a record.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, req GetJobRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, req.JobID)
}

func (s *Service) List(ctx context.Context, req ListJobsRequest) ([]Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, Status(req.Status), req.EffectiveLimit())
}

// Reap removes expired job records.
func (s *Service) Reap(ctx context.Context) error {
	n, err := s.repo.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("reaped expired jobs", "count", n)
	}
	return nil
}
