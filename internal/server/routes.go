package server

import (
	"net/http"

	"github.com/databridge/databridge/internal/ingest"
	"github.com/databridge/databridge/internal/job"
)

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(ingestSvc *ingest.Service, jobSvc *job.Service) http.Handler {
	return newMux(ingestSvc, jobSvc)
}

func newMux(ingestSvc *ingest.Service, jobSvc *job.Service) http.Handler {
	h := &handler{
		ingestSvc: ingestSvc,
		jobSvc:    jobSvc,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /api/v1/ingest", h.ingest)
	mux.HandleFunc("POST /api/v1/upload", h.upload)
	mux.HandleFunc("GET /api/v1/status", h.listJobs)
	mux.HandleFunc("GET /api/v1/status/{job_id}", h.getJob)

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
