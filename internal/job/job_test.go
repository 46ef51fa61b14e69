package job

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusTransforming, true},
		{StatusTransforming, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusProcessing, StatusFailed, true},
		{StatusTransforming, StatusFailed, true},
		// live states may re-enter themselves
		{StatusProcessing, StatusProcessing, true},
		{StatusTransforming, StatusTransforming, true},
		// skipping a phase is not allowed
		{StatusPending, StatusTransforming, false},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, false},
		// terminal states accept nothing
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
		// nothing moves back to PENDING
		{StatusProcessing, StatusPending, false},
	}

	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusTransforming} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestStatusValid(t *testing.T) {
	if !StatusProcessing.Valid() {
		t.Error("PROCESSING should be valid")
	}
	if Status("RUNNING").Valid() {
		t.Error("RUNNING should not be valid")
	}
	if Status("").Valid() {
		t.Error("empty status should not be valid")
	}
}

func TestListJobsRequest_EffectiveLimit(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{0, 20},
		{-5, 20},
		{1, 1},
		{100, 100},
		{101, 100},
		{500, 100},
	}
	for _, tt := range tests {
		req := ListJobsRequest{Limit: tt.limit}
		if got := req.EffectiveLimit(); got != tt.want {
			t.Errorf("EffectiveLimit(%d) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}

func TestListJobsRequest_Validate(t *testing.T) {
	if err := (ListJobsRequest{}).Validate(); err != nil {
		t.Errorf("empty filter should be valid: %v", err)
	}
	if err := (ListJobsRequest{Status: "COMPLETED"}).Validate(); err != nil {
		t.Errorf("COMPLETED filter should be valid: %v", err)
	}
	if err := (ListJobsRequest{Status: "RUNNING"}).Validate(); err == nil {
		t.Error("expected error for unknown status filter")
	}
}

func TestGetJobRequest_Validate(t *testing.T) {
	if err := (GetJobRequest{JobID: "abc"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (GetJobRequest{}).Validate(); err == nil {
		t.Error("expected error for empty job id")
	}
}

func TestJobJSON_ZeroCountsPresent(t *testing.T) {
	// A completed empty-table job legitimately has zero counts; they still
	// belong in the status response.
	j := Job{JobID: "job-1", Status: StatusCompleted, OutputKey: "default/2026-03-01/empty_job-1.parquet"}
	data, err := json.Marshal(j)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"row_count":0`) {
		t.Errorf("expected row_count in %s", s)
	}
	if !strings.Contains(s, `"column_count":0`) {
		t.Errorf("expected column_count in %s", s)
	}
}
