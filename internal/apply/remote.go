package apply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPRunner is a Runner client for an actuation endpoint reached over
// HTTP. The live driver uses it when the run executes out of process:
// the host caps single-invocation runtime, so long actuation is delegated
// and polled instead of awaited in-request.
type HTTPRunner struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPRunner creates a runner client for the given endpoint base URL.
func NewHTTPRunner(baseURL, token string) *HTTPRunner {
	return &HTTPRunner{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type startRunRequest struct {
	EntryID string `json:"entryId"`
}

type startRunResponse struct {
	ID string `json:"id"`
}

// StartRun asks the endpoint to begin actuating the claimed entry.
func (r *HTTPRunner) StartRun(ctx context.Context, entryID string) (string, error) {
	body, err := json.Marshal(startRunRequest{EntryID: entryID})
	if err != nil {
		return "", err
	}

	var resp startRunResponse
	if err := r.doJSON(ctx, http.MethodPost, "/runs", body, &resp); err != nil {
		return "", fmt.Errorf("starting run for entry %s: %w", entryID, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("starting run for entry %s: endpoint returned empty run id", entryID)
	}
	return resp.ID, nil
}

// RunStatus polls one run.
func (r *HTTPRunner) RunStatus(ctx context.Context, runID string) (RunState, error) {
	var state RunState
	if err := r.doJSON(ctx, http.MethodGet, "/runs/"+runID, nil, &state); err != nil {
		return RunState{}, fmt.Errorf("polling run %s: %w", runID, err)
	}
	return state, nil
}

func (r *HTTPRunner) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
