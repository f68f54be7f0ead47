package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avelkin/applyq/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestQueueAddCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /queue": `{"id":"entry-123","status":"pending"}`,
	})

	client := ts.client()
	req := map[string]any{
		"id":       "lead-1",
		"title":    "Backend Engineer",
		"company":  "Acme",
		"applyUrl": "https://boards.greenhouse.io/acme/jobs/1",
	}

	resp, err := client.post(ctx, "/queue", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["id"] != "entry-123" {
		t.Errorf("id = %q, want entry-123", result["id"])
	}
	if result["status"] != "pending" {
		t.Errorf("status = %q, want pending", result["status"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["applyUrl"] != "https://boards.greenhouse.io/acme/jobs/1" {
		t.Errorf("body.applyUrl = %v", body["applyUrl"])
	}
}

func TestQueueAddCommand_MissingURL(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"queue", "add", "lead-1"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --url")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestQueueListCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /queue": `[{"id":"entry-1","status":"pending","job":{"id":"lead-1","title":"Backend Engineer","company":"Acme","applyUrl":"https://x.example/1"},"retryCount":0}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/queue?limit=20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entries []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Job    struct {
			Title string `json:"title"`
		} `json:"job"`
	}
	if err := decodeJSON(resp, &entries); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Status != "pending" {
		t.Errorf("status = %q, want pending", entries[0].Status)
	}
	if entries[0].Job.Title != "Backend Engineer" {
		t.Errorf("title = %q", entries[0].Job.Title)
	}
}

func TestRetryCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /queue/entry-1/retry": `{"ok":true}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/queue/entry-1/retry", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]bool
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !result["ok"] {
		t.Error("ok = false, want true")
	}
	if ts.requests[0].Path != "/queue/entry-1/retry" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
}

func TestLiveStatusCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /live/status": `{"enabled":true,"pendingCount":3,"isProcessing":false,"stats":{"pending":3,"completed":1}}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/live/status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var status struct {
		Enabled      bool `json:"enabled"`
		PendingCount int  `json:"pendingCount"`
	}
	if err := decodeJSON(resp, &status); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !status.Enabled {
		t.Error("enabled = false, want true")
	}
	if status.PendingCount != 3 {
		t.Errorf("pendingCount = %d, want 3", status.PendingCount)
	}
}

func TestBatchRunSecretHeader(t *testing.T) {
	var gotSecret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Batch-Secret")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"processed":0,"success":false}`))
	}))
	defer srv.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", srv.URL+"/batch/run", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req.Header.Set("X-Batch-Secret", "cron-secret")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if gotSecret != "cron-secret" {
		t.Errorf("X-Batch-Secret = %q, want cron-secret", gotSecret)
	}
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestStatusColor(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"completed", colorGreen},
		{"failed", colorRed},
		{"claimed", colorYellow},
		{"skipped", colorCyan},
		{"pending", colorBold},
	}
	for _, tt := range tests {
		if got := statusColor(tt.status); got != tt.want {
			t.Errorf("statusColor(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	_, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/profile")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4600
	cfg.Queue.OwnerID = "default"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4600" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4600 in ShowAll output")
	}
}
