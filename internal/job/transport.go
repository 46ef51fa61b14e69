package job

import "github.com/databridge/databridge/internal/apperror"

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type GetJobRequest struct {
	JobID string
}

func (r GetJobRequest) Validate() *apperror.AppError {
	if r.JobID == "" {
		return apperror.New(apperror.BadRequest, "invalid job id")
	}
	return nil
}

type ListJobsRequest struct {
	Status string
	Limit  int
}

func (r ListJobsRequest) Validate() *apperror.AppError {
	if r.Status != "" && !Status(r.Status).Valid() {
		return apperror.New(apperror.BadRequest, "invalid status filter: "+r.Status)
	}
	return nil
}

// EffectiveLimit applies the default and the hard cap of 100.
func (r ListJobsRequest) EffectiveLimit() int {
	limit := r.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}
