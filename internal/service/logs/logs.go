package logs

import (
	"sort"

	"github.com/hellno/frameception/internal/domain"
)

// Merge reconciles the previously aggregated timeline with a freshly
// fetched batch of job-derived entries.
//
// Job logs are refetched wholesale every poll (replace semantics) while
// Vercel status-change entries are appended incrementally between polls
// (event semantics). Vercel-sourced entries from the previous timeline are
// therefore preserved verbatim; everything else is rebuilt from incoming.
// Entries are deduplicated by ID and ordered by creation time descending,
// ties keeping their original relative order.
func Merge(previous, incoming []domain.LogEntry) []domain.LogEntry {
	retained := make([]domain.LogEntry, 0, len(previous))
	seen := make(map[string]struct{}, len(previous)+len(incoming))
	for _, entry := range previous {
		if entry.Source != domain.LogSourceVercel {
			continue
		}
		if _, dup := seen[entry.ID]; dup {
			continue
		}
		seen[entry.ID] = struct{}{}
		retained = append(retained, entry)
	}

	merged := retained
	for _, entry := range incoming {
		if _, dup := seen[entry.ID]; dup {
			continue
		}
		seen[entry.ID] = struct{}{}
		merged = append(merged, entry)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

// FromJobs flattens the log entries nested under a project's jobs into the
// incoming batch for Merge. Entries with no source are tagged unknown.
func FromJobs(jobs []domain.Job) []domain.LogEntry {
	var entries []domain.LogEntry
	for _, job := range jobs {
		for _, entry := range job.Logs {
			if entry.Source == "" {
				entry.Source = domain.LogSourceUnknown
			}
			if entry.JobID == "" {
				entry.JobID = job.ID
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

// LatestBuildLines returns the build-log lines attached to the most recent
// Vercel entry on the timeline, or nil when none carry a payload. The
// timeline is ordered newest first, so the first hit wins.
func LatestBuildLines(entries []domain.LogEntry) []domain.BuildLogLine {
	for _, entry := range entries {
		if entry.Source != domain.LogSourceVercel || entry.Data == nil {
			continue
		}
		if len(entry.Data.Logs) > 0 {
			return entry.Data.Logs
		}
	}
	return nil
}
