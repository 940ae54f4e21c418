package vercel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hellno/frameception/internal/domain"
)

const defaultBaseURL = "https://api.vercel.com"

// Deployment is the subset of the Vercel deployment payload the dashboard
// consumes.
type Deployment struct {
	ID        string
	State     string
	URL       string
	CreatedAt time.Time
}

// Client talks to the Vercel REST API for a single team.
type Client struct {
	baseURL    string
	token      string
	teamID     string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// New constructs a Client authenticated with the given token.
func New(token, teamID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		token:      strings.TrimSpace(token),
		teamID:     strings.TrimSpace(teamID),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError represents an error response from Vercel.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("vercel request failed with status %d", e.Status)
	}
	return fmt.Sprintf("vercel request failed (%d): %s", e.Status, e.Message)
}

// LatestDeployment returns the most recent deployment for a Vercel project,
// or nil when the project has no deployments yet.
func (c *Client) LatestDeployment(ctx context.Context, vercelProjectID string) (*Deployment, error) {
	if strings.TrimSpace(vercelProjectID) == "" {
		return nil, fmt.Errorf("vercel project id required")
	}
	query := url.Values{}
	query.Set("projectId", vercelProjectID)
	query.Set("limit", "1")

	var payload struct {
		Deployments []struct {
			UID        string `json:"uid"`
			State      string `json:"state"`
			ReadyState string `json:"readyState"`
			URL        string `json:"url"`
			CreatedAt  int64  `json:"createdAt"`
		} `json:"deployments"`
	}
	if err := c.get(ctx, "/v6/deployments", query, &payload); err != nil {
		return nil, err
	}
	if len(payload.Deployments) == 0 {
		return nil, nil
	}
	raw := payload.Deployments[0]
	state := raw.ReadyState
	if state == "" {
		state = raw.State
	}
	dep := &Deployment{
		ID:        raw.UID,
		State:     state,
		URL:       raw.URL,
		CreatedAt: time.UnixMilli(raw.CreatedAt).UTC(),
	}
	return dep, nil
}

// BuildLogs fetches the build output events for a deployment. Lines
// without a stable event identity fall back to a positional one so the
// result always carries usable dedup keys.
func (c *Client) BuildLogs(ctx context.Context, deploymentID string) ([]domain.BuildLogLine, error) {
	if strings.TrimSpace(deploymentID) == "" {
		return nil, fmt.Errorf("deployment id required")
	}
	query := url.Values{}
	query.Set("builds", "1")

	var events []struct {
		Type    string `json:"type"`
		Payload struct {
			ID   string `json:"id"`
			Text string `json:"text"`
			Date int64  `json:"date"`
		} `json:"payload"`
	}
	path := "/v2/deployments/" + url.PathEscape(deploymentID) + "/events"
	if err := c.get(ctx, path, query, &events); err != nil {
		return nil, err
	}

	lines := make([]domain.BuildLogLine, 0, len(events))
	for i, event := range events {
		if event.Type != domain.StreamStdout && event.Type != domain.StreamStderr {
			continue
		}
		id := event.Payload.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", deploymentID, i)
		}
		lines = append(lines, domain.BuildLogLine{
			ID:        id,
			Stream:    event.Type,
			Text:      event.Payload.Text,
			CreatedAt: time.UnixMilli(event.Payload.Date).UTC(),
		})
	}
	return lines, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.teamID != "" {
		query.Set("teamId", c.teamID)
	}
	endpoint := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error.Message == "" {
		return strings.TrimSpace(string(data))
	}
	return payload.Error.Message
}
