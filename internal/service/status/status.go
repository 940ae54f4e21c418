package status

import (
	"github.com/hellno/frameception/internal/domain"
)

// Derive combines the cached project, its most recent status-relevant job
// and the last polled Vercel build state into one normalized status.
//
// Precedence, highest first: an explicit job error or a Vercel ERROR state
// wins over a pending job or an in-flight build, which wins over a live
// frontend URL, which wins over the bare created state. Failure visibility
// outranks progress, progress outranks success, so a freshly failed job is
// never hidden behind a stale deployed label.
//
// Derive is total and pure: every input combination, including all-nil,
// maps to exactly one state and it never panics.
func Derive(project *domain.Project, latestJob *domain.Job, buildState string) domain.ProjectStatus {
	if latestJob != nil {
		if msg := jobError(*latestJob); msg != "" {
			return domain.ProjectStatus{State: domain.StateError, Error: msg}
		}
	}
	if buildState == domain.BuildStateError {
		return domain.ProjectStatus{State: domain.StateError, Error: "Deployment failed on Vercel"}
	}
	if latestJob != nil && (latestJob.Status == domain.JobStatusPending || latestJob.Status == domain.JobStatusRunning) {
		return domain.ProjectStatus{State: domain.StateBuilding}
	}
	switch buildState {
	case domain.BuildStateQueued, domain.BuildStateBuilding, domain.BuildStateInitializing:
		return domain.ProjectStatus{State: domain.StateBuilding}
	}
	if project != nil && project.FrontendURL != "" {
		return domain.ProjectStatus{State: domain.StateDeployed}
	}
	return domain.ProjectStatus{State: domain.StateCreated}
}

// LatestRelevantJob picks the most recently created job of a
// status-relevant type. Returns nil when no such job exists.
func LatestRelevantJob(jobs []domain.Job) *domain.Job {
	var latest *domain.Job
	for i := range jobs {
		job := &jobs[i]
		if job.Type != domain.JobTypeSetupProject && job.Type != domain.JobTypeUpdateCode {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	return latest
}

func jobError(job domain.Job) string {
	if job.Data.Error != "" {
		return job.Data.Error
	}
	if job.Status == domain.JobStatusFailed {
		return "Job failed"
	}
	return ""
}
