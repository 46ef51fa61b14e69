package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/databridge/databridge/internal/blob"
	"github.com/databridge/databridge/internal/connector"
	httpconn "github.com/databridge/databridge/internal/connector/http"
	tcpconn "github.com/databridge/databridge/internal/connector/tcp"
	"github.com/databridge/databridge/internal/dispatch"
	"github.com/databridge/databridge/internal/ingest"
	"github.com/databridge/databridge/internal/job"
	"github.com/databridge/databridge/internal/platform/sqlite"
	jobrepo "github.com/databridge/databridge/internal/repository/job"
	"github.com/databridge/databridge/internal/server"
	"github.com/databridge/databridge/internal/transform"
)

func setupE2E(t *testing.T) (*httptest.Server, *blob.LocalStore) {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	jobRepo := jobrepo.NewRepository(db.DB)
	store := blob.NewLocalStore(t.TempDir())

	registry := connector.NewRegistry()
	registry.Register(httpconn.New())
	registry.Register(tcpconn.New())

	engine := transform.NewEngine(jobRepo, store, "raw-bucket", "lake-bucket")
	poolCtx, poolCancel := context.WithCancel(context.Background())
	pool := dispatch.NewPool(engine, 2)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(poolCtx)
		close(poolDone)
	}()
	// Cleanup runs LIFO: cancel pool → wait for drain → then db.Close (registered earlier)
	t.Cleanup(func() {
		poolCancel()
		<-poolDone
	})

	ingestSvc := ingest.NewService(jobRepo, registry, store, pool, "raw-bucket", 7*24*time.Hour)
	jobSvc := job.NewService(jobRepo)

	srv := httptest.NewServer(server.NewHandler(ingestSvc, jobSvc))
	t.Cleanup(srv.Close)
	return srv, store
}

// waitForJob polls the status endpoint until the job reaches a terminal
// status.
func waitForJob(t *testing.T, baseURL, jobID string) map[string]any {
	t.Helper()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for job %s to finish", jobID)
		default:
		}

		resp, err := http.Get(fmt.Sprintf("%s/api/v1/status/%s", baseURL, jobID)) //nolint:gosec // test URL
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		var result struct {
			Job map[string]any `json:"job"`
		}
		err = json.NewDecoder(resp.Body).Decode(&result)
		_ = resp.Body.Close()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		status, _ := result.Job["status"].(string)
		if status == string(job.StatusCompleted) || status == string(job.StatusFailed) {
			return result.Job
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestE2E_HTTPIngestToParquet(t *testing.T) {
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"city": "Berlin", "temp": 14}, {"city": "Madrid", "temp": 22}]`))
	}))
	defer source.Close()

	srv, store := setupE2E(t)

	payload := map[string]any{
		"source_type": "http",
		"table_name":  "weather",
		"config": map[string]any{
			"url":      source.URL,
			"filename": "weather.json",
		},
	}
	b, _ := json.Marshal(payload)
	resp, err := http.Post(srv.URL+"/api/v1/ingest", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var accepted struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	final := waitForJob(t, srv.URL, accepted.JobID)
	if final["status"] != string(job.StatusCompleted) {
		t.Fatalf("expected COMPLETED, got %v (%v)", final["status"], final["message"])
	}
	if final["progress"] != float64(100) {
		t.Errorf("expected progress 100, got %v", final["progress"])
	}
	if final["row_count"] != float64(2) || final["column_count"] != float64(2) {
		t.Errorf("unexpected counts: %v rows, %v columns", final["row_count"], final["column_count"])
	}

	outputKey, _ := final["output_key"].(string)
	if outputKey == "" {
		t.Fatal("expected output_key on completed job")
	}
	artifact, err := store.Get(context.Background(), "lake-bucket", outputKey)
	if err != nil {
		t.Fatalf("lake artifact: %v", err)
	}
	rows, cols, err := transform.Stats(artifact)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if rows != 2 || cols != 2 {
		t.Errorf("artifact has %d rows, %d columns", rows, cols)
	}
}

func TestE2E_UploadCSV(t *testing.T) {
	srv, _ := setupE2E(t)

	resp, err := http.Post(srv.URL+"/api/v1/upload?filename=cities.csv&table_name=cities",
		"text/csv", bytes.NewReader([]byte("name,population\nBerlin,3700000\nMadrid,3300000\n")))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var accepted struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	final := waitForJob(t, srv.URL, accepted.JobID)
	if final["status"] != string(job.StatusCompleted) {
		t.Fatalf("expected COMPLETED, got %v (%v)", final["status"], final["message"])
	}
	if final["row_count"] != float64(2) {
		t.Errorf("expected 2 rows, got %v", final["row_count"])
	}
}

func TestE2E_RemoteFailureMarksJobFailed(t *testing.T) {
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusInternalServerError)
	}))
	defer source.Close()

	srv, _ := setupE2E(t)

	payload := map[string]any{
		"source_type": "http",
		"config":      map[string]any{"url": source.URL},
	}
	b, _ := json.Marshal(payload)
	resp, err := http.Post(srv.URL+"/api/v1/ingest", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	// the fetch runs within the request; the failure surfaces immediately
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}

	// the job record carries the failure
	listResp, err := http.Get(srv.URL + "/api/v1/status?status=FAILED")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = listResp.Body.Close() }()
	var listing struct {
		Jobs  []map[string]any `json:"jobs"`
		Count int              `json:"count"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listing); err != nil {
		t.Fatal(err)
	}
	if listing.Count != 1 {
		t.Fatalf("expected 1 failed job, got %d", listing.Count)
	}
	msg, _ := listing.Jobs[0]["message"].(string)
	if msg == "" {
		t.Error("expected failure message on job record")
	}
}
