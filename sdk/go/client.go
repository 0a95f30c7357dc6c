package pluglinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal plugline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  2 * time.Minute,
	}
}

type Capability struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
	EnvKeys      []string `json:"env_keys"`
	WebOnly      bool     `json:"web_only"`
}

type CodebaseInfo struct {
	Language        string   `json:"language"`
	Framework       string   `json:"framework"`
	EntryPoints     []string `json:"entry_points"`
	IsWebApp        bool     `json:"is_web_app"`
	HasStaticTyping bool     `json:"has_static_typing"`
}

type FileChange struct {
	Path        string `json:"path"`
	Updated     string `json:"updated"`
	Description string `json:"description"`
}

// Plan represents the API plan model (partial).
type Plan struct {
	Changes              []FileChange      `json:"changes"`
	Dependencies         []string          `json:"dependencies"`
	EnvPlaceholders      map[string]string `json:"env_placeholders"`
	Notes                []string          `json:"notes"`
	SetupInstructions    []string          `json:"setup_instructions"`
	SelectedCapabilities []string          `json:"selected_capabilities"`
}

type Preview struct {
	Info CodebaseInfo `json:"info"`
	Plan Plan         `json:"plan"`
}

type Run struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	Capabilities []string `json:"capabilities"`
	State        string   `json:"state"`
	Branch       string   `json:"branch"`
	CommitHash   string   `json:"commit_hash"`
	Error        string   `json:"error"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// Event represents a log entry.
type Event struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts"`
	Type    string         `json:"type"`
	RunID   string         `json:"run_id"`
	ActorID string         `json:"actor_id"`
	Payload map[string]any `json:"payload"`
}

type PaginatedRuns struct {
	Items      []Run  `json:"items"`
	NextCursor string `json:"next_cursor"`
}

type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Capabilities lists the supported capabilities.
func (c *Client) Capabilities(ctx context.Context) ([]Capability, error) {
	var resp []Capability
	err := c.do(ctx, http.MethodGet, "capabilities", nil, &resp)
	return resp, err
}

// Analyze classifies the repository at source.
func (c *Client) Analyze(ctx context.Context, source string) (CodebaseInfo, error) {
	var resp CodebaseInfo
	err := c.do(ctx, http.MethodPost, "analyze", map[string]any{"source": source}, &resp)
	return resp, err
}

// Plan previews the plan for source without committing anything.
func (c *Client) Plan(ctx context.Context, source string, capabilities ...string) (Preview, error) {
	body := map[string]any{
		"source":       source,
		"capabilities": capabilities,
	}
	var resp Preview
	err := c.do(ctx, http.MethodPost, "plans", body, &resp)
	return resp, err
}

// RunsPage returns one page of runs, newest first.
func (c *Client) RunsPage(ctx context.Context, state string, limit int, cursor string) (PaginatedRuns, error) {
	var resp PaginatedRuns
	err := c.do(ctx, http.MethodGet, withQuery("runs", map[string]string{
		"state":  state,
		"limit":  limitParam(limit),
		"cursor": cursor,
	}), nil, &resp)
	return resp, err
}

func (c *Client) Run(ctx context.Context, id string) (Run, error) {
	var resp Run
	err := c.do(ctx, http.MethodGet, "runs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// RunEventsPage returns one page of a run's events, newest first.
func (c *Client) RunEventsPage(ctx context.Context, runID string, limit int, cursor string) (PaginatedEvents, error) {
	var resp PaginatedEvents
	endpoint := withQuery("runs/"+url.PathEscape(runID)+"/events", map[string]string{
		"limit":  limitParam(limit),
		"cursor": cursor,
	})
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func limitParam(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", limit)
}

func withQuery(endpoint string, params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := strings.Trim(c.BasePath, "/")
	if basePath == "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + basePath
}
