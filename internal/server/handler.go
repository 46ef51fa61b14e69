package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/databridge/databridge/internal/apperror"
	"github.com/databridge/databridge/internal/ingest"
	"github.com/databridge/databridge/internal/job"
)

type handler struct {
	ingestSvc *ingest.Service
	jobSvc    *job.Service
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingest.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.ingestSvc.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":     "Ingestion started",
		"job_id":      res.JobID,
		"status":      res.Status,
		"source_type": res.SourceType,
		"table_name":  res.TableName,
	})
}

// upload accepts either a JSON body with base64 content or the raw file bytes
// with filename and table_name as query parameters. The body reader is capped
// above the decoded size limit; the service enforces the exact limit on the
// decoded payload.
func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*ingest.MaxUploadSize)

	req, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	res, err := h.ingestSvc.Upload(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":    "File uploaded, transformation started",
		"job_id":     res.JobID,
		"filename":   res.Filename,
		"table_name": res.TableName,
		"status":     res.Status,
		"blob_key":   res.BlobKey,
	})
}

func (h *handler) readUpload(w http.ResponseWriter, r *http.Request) (ingest.UploadRequest, bool) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Filename  string `json:"filename"`
			TableName string `json:"table_name"`
			Content   string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return ingest.UploadRequest{}, false
		}
		content, err := base64.StdEncoding.DecodeString(body.Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, "content must be base64 encoded")
			return ingest.UploadRequest{}, false
		}
		return ingest.UploadRequest{
			Filename:  body.Filename,
			TableName: body.TableName,
			Content:   content,
		}, true
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return ingest.UploadRequest{}, false
	}
	return ingest.UploadRequest{
		Filename:  r.URL.Query().Get("filename"),
		TableName: r.URL.Query().Get("table_name"),
		Content:   content,
	}, true
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	req := job.ListJobsRequest{
		Status: strings.ToUpper(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		req.Limit = limit
	}

	jobs, err := h.jobSvc.List(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
		"filter": map[string]any{
			"status": req.Status,
			"limit":  req.EffectiveLimit(),
		},
	})
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	j, err := h.jobSvc.Get(r.Context(), job.GetJobRequest{JobID: jobID})
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error":  "Job not found",
				"job_id": jobID,
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"job": j})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var ae *apperror.AppError
	if errors.As(err, &ae) {
		writeError(w, ae.HTTPStatus(), ae.Message())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
