package domain

import "time"

// Job type tags assigned by the backend.
const (
	JobTypeSetupProject = "setup_project"
	JobTypeUpdateCode   = "update_code"
)

// Job status vocabulary owned by the backend.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is a single unit of backend work (project setup or code update).
// The dashboard never mutates a job; status and payload transitions are
// observed through refetches only.
type Job struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	Data      JobData    `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	Logs      []LogEntry `json:"logs"`
}

// JobData carries the prompt that triggered the job and, on completion,
// either a result or an error string.
type JobData struct {
	Prompt string `json:"prompt,omitempty"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Terminal reports whether the job has reached a final status.
func (j Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
