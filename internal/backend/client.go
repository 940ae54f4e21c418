package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hellno/frameception/internal/domain"
)

// Client submits mutation requests to the job-execution backend. Each call
// creates a new job; the resulting job appears on the next project fetch.
type Client struct {
	baseURL    string
	authToken  string
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

// New constructs a Client pointing at the backend webhook base URL.
func New(base, authToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(base), "/"),
		authToken:  strings.TrimSpace(authToken),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError represents an error response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend request failed with status %d", e.Status)
	}
	return fmt.Sprintf("backend request failed (%d): %s", e.Status, e.Message)
}

// SubmitUpdate queues an update_code job for the project.
func (c *Client) SubmitUpdate(ctx context.Context, projectID, prompt string, user domain.UserContext) error {
	return c.post(ctx, "/update_code", map[string]any{
		"project_id":   projectID,
		"prompt":       prompt,
		"user_context": user,
	})
}

// RequestDeploy asks the backend to redeploy the project's frontend.
func (c *Client) RequestDeploy(ctx context.Context, projectID string, user domain.UserContext) error {
	return c.post(ctx, "/deploy_project", map[string]any{
		"project_id":   projectID,
		"user_context": user,
	})
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func extractError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		return strings.TrimSpace(string(data))
	}
	return payload.Error
}
