package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestQueue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/queue" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "k" {
			t.Fatalf("expected api key header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"is_processing":    true,
			"queue_length":     2,
			"total_jobs":       3,
			"counts_by_status": map[string]int{"pending": 2, "processing": 1},
			"active_jobs": []map[string]any{
				{"job_id": "j1", "kind": "extract_frames", "started_at": time.Now().Format(time.RFC3339)},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", "k", time.Second)
	q, err := c.Queue(context.Background())
	if err != nil {
		t.Fatalf("Queue error: %v", err)
	}
	if !q.IsProcessing || q.QueueLength != 2 || q.TotalJobs != 3 {
		t.Fatalf("unexpected status: %+v", q.Status)
	}
	if q.CountsByStatus["pending"] != 2 {
		t.Errorf("expected 2 pending, got %d", q.CountsByStatus["pending"])
	}
	if len(q.ActiveJobs) != 1 || q.ActiveJobs[0].JobID != "j1" {
		t.Errorf("unexpected active jobs: %+v", q.ActiveJobs)
	}
}

func TestJobsPassesStatusFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "failed" {
			t.Fatalf("expected status filter, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jobs": []map[string]any{
				{"id": "a", "kind": "encode_gif", "status": "failed", "error": "boom"},
			},
			"count": 1,
		})
	}))
	defer server.Close()

	jobs, err := NewClient(server.URL, "", time.Second).Jobs(context.Background(), "failed")
	if err != nil {
		t.Fatalf("Jobs error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Error != "boom" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestCancel(t *testing.T) {
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"cancelled":true}`))
	}))
	defer server.Close()

	if err := NewClient(server.URL, "", time.Second).Cancel(context.Background(), "job-1"); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if method != http.MethodDelete || path != "/api/v1/jobs/job-1" {
		t.Errorf("unexpected request %s %s", method, path)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid API key"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "bad", time.Second).Encoders(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid API key") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEventsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "25" {
			t.Fatalf("expected limit 25, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{{"id": "m1", "type": "log", "severity": "info", "message": "hi"}},
			"limit":    25,
		})
	}))
	defer server.Close()

	res, err := NewClient(server.URL, "", time.Second).Events(context.Background(), 25)
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(res.Messages) != 1 || res.Messages[0].Text != "hi" {
		t.Errorf("unexpected messages: %+v", res.Messages)
	}
}
