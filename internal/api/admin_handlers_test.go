package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/moveboard/moveboard-go/internal/jobs"
	"github.com/moveboard/moveboard-go/internal/testutil"
)

func TestAdminHandlers(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	router := server.Router()

	t.Run("get version", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/version", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if resp["version"] != "test" {
			t.Errorf("Expected version 'test', got %q", resp["version"])
		}
	})

	t.Run("run job", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{"job_name": "processing-sweep"})
		req := httptest.NewRequest("POST", "/api/admin/jobs/run", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusAccepted {
			t.Fatalf("handler returned wrong status code: got %v want %v. Body: %s", rr.Code, http.StatusAccepted, rr.Body.String())
		}
	})

	t.Run("run unknown job", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{"job_name": "does-not-exist"})
		req := httptest.NewRequest("POST", "/api/admin/jobs/run", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusConflict {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusConflict)
		}
	})

	t.Run("jobs status", func(t *testing.T) {
		// Give the job kicked off above a moment to finish.
		deadline := time.Now().Add(2 * time.Second)
		var sweep *jobs.JobStatus
		for time.Now().Before(deadline) {
			req := httptest.NewRequest("GET", "/api/admin/jobs/status", nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
			}
			var statuses []*jobs.JobStatus
			if err := json.Unmarshal(rr.Body.Bytes(), &statuses); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			sweep = nil
			for _, s := range statuses {
				if s.ID == "processing-sweep" {
					sweep = s
				}
			}
			if sweep != nil && sweep.Status == "success" {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		if sweep == nil {
			t.Fatal("Expected a status entry for 'processing-sweep'")
		}
		if sweep.Status != "success" {
			t.Errorf("Expected job status 'success', got %q", sweep.Status)
		}
	})
}
