package domain

import "time"

// Log entry source tags.
const (
	LogSourceFrontend  = "frontend"
	LogSourceBackend   = "backend"
	LogSourceVercel    = "vercel"
	LogSourceGithub    = "github"
	LogSourceFarcaster = "farcaster"
	LogSourceUnknown   = "unknown"
)

// Build-log stream tags reported by the deployment platform.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// LogEntry is one event on the activity timeline. ID is stable across
// polls and unique within the aggregated stream; two entries with the
// same ID are the same event.
type LogEntry struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id,omitempty"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Data      *LogData  `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LogData is the optional structured payload of a log entry, currently
// raw build-log lines captured from the deployment platform.
type LogData struct {
	Logs []BuildLogLine `json:"logs,omitempty"`
}

// BuildLogLine is a single line of deployment build output.
type BuildLogLine struct {
	ID        string    `json:"id"`
	Stream    string    `json:"stream"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
