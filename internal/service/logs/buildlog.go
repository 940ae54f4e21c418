package logs

import (
	"strings"
	"time"

	"github.com/hellno/frameception/internal/domain"
)

const warningPrefix = "warning"

// BuildLogView is a build-log line prepared for rendering: a display
// timestamp and a flag marking stderr output.
type BuildLogView struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	IsError   bool   `json:"is_error"`
}

// FilterBuildLog produces the rendering view over raw build output.
// Blank lines are always dropped. With showAll false only stderr lines
// that do not begin with the "warning" prefix are kept. The view is
// recomputed from source on every toggle and never mutates its input.
func FilterBuildLog(lines []domain.BuildLogLine, showAll bool) []BuildLogView {
	views := make([]BuildLogView, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line.Text) == "" {
			continue
		}
		isError := line.Stream == domain.StreamStderr
		if !showAll {
			if !isError || strings.HasPrefix(line.Text, warningPrefix) {
				continue
			}
		}
		views = append(views, BuildLogView{
			ID:        line.ID,
			Text:      line.Text,
			Timestamp: line.CreatedAt.Format(time.TimeOnly),
			IsError:   isError,
		})
	}
	return views
}

// ErrorLines collects the stderr build-log text nested in the aggregated
// timeline, skipping warnings and blank lines. Used to assemble the
// autofix prompt.
func ErrorLines(entries []domain.LogEntry) []string {
	var out []string
	for _, entry := range entries {
		if entry.Data == nil {
			continue
		}
		for _, line := range entry.Data.Logs {
			if line.Stream != domain.StreamStderr {
				continue
			}
			if strings.TrimSpace(line.Text) == "" {
				continue
			}
			if strings.HasPrefix(line.Text, warningPrefix) {
				continue
			}
			out = append(out, line.Text)
		}
	}
	return out
}
