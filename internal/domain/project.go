package domain

import "time"

// Project is the dashboard's read-only view of a generated frame project.
// The backend owns the record; the cached copy is replaced wholesale on
// every successful fetch.
type Project struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	RepoURL         string    `json:"repo_url,omitempty"`
	FrontendURL     string    `json:"frontend_url,omitempty"`
	VercelProjectID string    `json:"vercel_project_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Jobs            []Job     `json:"jobs"`
}
