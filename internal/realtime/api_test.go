package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
)

func TestHTTPJobAPISubmitAndGet(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			var req submitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode submit body: %v", err)
			}
			if req.Query != "q" || req.ConversationID != "conv-1" {
				t.Errorf("submit body = %+v", req)
			}
			_ = json.NewEncoder(w).Encode(submitResponse{JobID: "j1"})
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/j1":
			_ = json.NewEncoder(w).Encode(jobPayload{JobID: "j1", Status: "completed", Result: "42"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	api := NewHTTPJobAPI(srv.URL, "tok-1")

	jobID, err := api.SubmitJob(context.Background(), "q", "sess-1", "conv-1", "async")
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if jobID != "j1" {
		t.Fatalf("jobID = %q", jobID)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization = %q", gotAuth)
	}

	job, err := api.GetJob(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobStatusCompleted || job.Result != "42" {
		t.Fatalf("job = %+v", job)
	}
}

func TestHTTPJobAPIErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrAuth},
		{http.StatusForbidden, domain.ErrAuth},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusInternalServerError, domain.ErrTransport},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		api := NewHTTPJobAPI(srv.URL, "tok")
		_, err := api.GetJob(context.Background(), "j1")
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
		srv.Close()
	}
}

func TestHTTPJobAPIOngoingJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/conv-1/ongoing-jobs" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode([]jobPayload{
			{JobID: "j1", Status: "running", ConversationID: "conv-1"},
			{JobID: "j2", Status: "queued", ConversationID: "conv-1"},
		})
	}))
	defer srv.Close()

	api := NewHTTPJobAPI(srv.URL, "tok")
	jobs, err := api.OngoingJobs(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("OngoingJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "j1" || jobs[1].Status != model.JobStatusQueued {
		t.Fatalf("jobs = %+v", jobs)
	}
}
