package apply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avelkin/applyq/internal/strategy"
)

func TestHTTPRunnerStartRun(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody startRunRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(startRunResponse{ID: "run-9"})
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.URL, "tok-1")
	runID, err := r.StartRun(context.Background(), "entry-1")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if runID != "run-9" {
		t.Errorf("runID = %q, want run-9", runID)
	}
	if gotPath != "/runs" {
		t.Errorf("path = %q, want /runs", gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.EntryID != "entry-1" {
		t.Errorf("entryId = %q, want entry-1", gotBody.EntryID)
	}
}

func TestHTTPRunnerStartRunRejectsEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(startRunResponse{})
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.URL, "")
	if _, err := r.StartRun(context.Background(), "entry-1"); err == nil {
		t.Fatal("StartRun accepted an empty run id")
	}
}

func TestHTTPRunnerRunStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runs/run-9" {
			t.Errorf("path = %q, want /runs/run-9", r.URL.Path)
		}
		json.NewEncoder(w).Encode(RunState{
			ID:      "run-9",
			EntryID: "entry-1",
			Done:    true,
			Outcome: &strategy.Outcome{Success: true, Method: strategy.MethodForm},
		})
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.URL, "tok-1")
	state, err := r.RunStatus(context.Background(), "run-9")
	if err != nil {
		t.Fatalf("RunStatus: %v", err)
	}
	if !state.Done || state.Outcome == nil || !state.Outcome.Success {
		t.Errorf("state = %+v, want a done successful run", state)
	}
}

func TestHTTPRunnerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"entry is pending, not claimed"}}`, http.StatusConflict)
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.URL, "tok-1")
	_, err := r.StartRun(context.Background(), "entry-1")
	if err == nil {
		t.Fatal("StartRun did not surface the error status")
	}
	if !strings.Contains(err.Error(), "409") {
		t.Errorf("err = %v, want the status code surfaced", err)
	}
}

func TestHTTPRunnerTrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runs" {
			t.Errorf("path = %q, want /runs", r.URL.Path)
		}
		json.NewEncoder(w).Encode(startRunResponse{ID: "run-1"})
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.URL+"/", "")
	if _, err := r.StartRun(context.Background(), "entry-1"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
}
