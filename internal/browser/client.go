// Package browser is an HTTP client for a remote browser-automation service.
// Sessions are ephemeral, bound to a wall-clock time budget, and accept
// natural-language action intents against the live page.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultNavTimeout = 15 * time.Second
	defaultActTimeout = 20 * time.Second
	maxScreenshotSize = 8 << 20 // 8MB
)

// ErrProvisioning marks session-acquisition failures (service down,
// missing credentials). Provisioning failures are fatal for the current
// attempt and are not auto-retried.
var ErrProvisioning = errors.New("browser session provisioning failed")

// Client communicates with the browser-automation service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	navTimeout time.Duration
	actTimeout time.Duration
	now        func() time.Time
}

// NewClient creates a Client targeting the given service base URL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 0, // per-call context timeouts below
		},
		navTimeout: defaultNavTimeout,
		actTimeout: defaultActTimeout,
		now:        time.Now,
	}
}

// SetNavigateTimeout overrides the page-settle timeout used by Navigate.
func (c *Client) SetNavigateTimeout(d time.Duration) {
	if d > 0 {
		c.navTimeout = d
	}
}

// Session is an ephemeral remote browser handle. It is owned exclusively by
// the driver that opened it; Close must run on every exit path.
type Session struct {
	client    *Client
	id        string
	startedAt time.Time
	budget    time.Duration
}

type createSessionRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

// Open acquires a remote browser session bound to the given time budget.
// Any failure here (unreachable service, rejected credentials) wraps
// ErrProvisioning.
func (c *Client) Open(ctx context.Context, budget time.Duration) (*Session, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrProvisioning)
	}

	body, err := json.Marshal(createSessionRequest{TTLSeconds: int(budget.Seconds())})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var resp createSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: service returned empty session id", ErrProvisioning)
	}

	return &Session{
		client:    c,
		id:        resp.ID,
		startedAt: c.now(),
		budget:    budget,
	}, nil
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// Elapsed returns wall-clock time since the session was opened.
func (s *Session) Elapsed() time.Duration {
	return s.client.now().Sub(s.startedAt)
}

// NearBudget reports whether elapsed time is within buffer of the session's
// time budget. Strategies check this before each multi-step sub-flow and
// bail out rather than risk being killed mid-submission.
func (s *Session) NearBudget(buffer time.Duration) bool {
	return s.Elapsed() >= s.budget-buffer
}

// Navigate loads url and waits for the page to settle, with its own short
// timeout distinct from the session budget.
func (s *Session) Navigate(ctx context.Context, url string) error {
	body, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.client.navTimeout)
	defer cancel()

	if err := s.client.doJSON(ctx, http.MethodPost, "/v1/sessions/"+s.id+"/navigate", body, nil); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

type actResponse struct {
	Performed bool `json:"performed"`
}

// Act issues a natural-language action directive against the current page
// and reports whether an applicable target was found and acted on. A false
// return with nil error is a normal outcome: many intents are conditional
// ("if a field exists, fill it").
func (s *Session) Act(ctx context.Context, intent string) (bool, error) {
	body, err := json.Marshal(map[string]string{"intent": intent})
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.client.actTimeout)
	defer cancel()

	var resp actResponse
	if err := s.client.doJSON(ctx, http.MethodPost, "/v1/sessions/"+s.id+"/act", body, &resp); err != nil {
		return false, fmt.Errorf("act %q: %w", intent, err)
	}
	return resp.Performed, nil
}

type extractRequest struct {
	Instruction string            `json:"instruction"`
	Schema      map[string]string `json:"schema,omitempty"`
}

type extractResponse struct {
	Data map[string]any `json:"data"`
}

// Extract asks for a structured read-back of page content. Schema maps
// field names to type hints ("string", "boolean").
func (s *Session) Extract(ctx context.Context, instruction string, schema map[string]string) (map[string]any, error) {
	body, err := json.Marshal(extractRequest{Instruction: instruction, Schema: schema})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.client.actTimeout)
	defer cancel()

	var resp extractResponse
	if err := s.client.doJSON(ctx, http.MethodPost, "/v1/sessions/"+s.id+"/extract", body, &resp); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return resp.Data, nil
}

type pageResponse struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	page, err := s.page(ctx)
	if err != nil {
		return "", err
	}
	return page.URL, nil
}

// VisibleText returns the flattened visible text of the current page. Used
// as the deterministic fallback for confirmation detection when structured
// extraction errors.
func (s *Session) VisibleText(ctx context.Context) (string, error) {
	page, err := s.page(ctx)
	if err != nil {
		return "", err
	}
	return flattenHTML(strings.NewReader(page.HTML))
}

func (s *Session) page(ctx context.Context) (pageResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.client.actTimeout)
	defer cancel()

	var resp pageResponse
	if err := s.client.doJSON(ctx, http.MethodGet, "/v1/sessions/"+s.id+"/page", nil, &resp); err != nil {
		return pageResponse{}, fmt.Errorf("reading page: %w", err)
	}
	return resp, nil
}

// Screenshot captures the current page. Best-effort: callers log failures
// and move on, never failing the attempt over a missing screenshot.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.client.actTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.baseURL+"/v1/sessions/"+s.id+"/screenshot", nil)
	if err != nil {
		return nil, err
	}
	s.client.setHeaders(req)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("screenshot: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxScreenshotSize))
}

// Close releases the remote session. A leaked session is a cost leak on the
// provider side, so drivers call this in a defer on every exit path.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.doJSON(ctx, http.MethodDelete, "/v1/sessions/"+s.id, nil, nil); err != nil {
		return fmt.Errorf("closing session %s: %w", s.id, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
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

func (c *Client) setHeaders(req *http.Request) {
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
