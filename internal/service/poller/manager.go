package poller

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/hellno/frameception/internal/domain"
	logsvc "github.com/hellno/frameception/internal/service/logs"
	"github.com/hellno/frameception/internal/service/status"
)

// Manager owns the active dashboard sessions and offers lookups and
// out-of-band refreshes keyed by project identifier.
type Manager struct {
	projects    ProjectFetcher
	deployments DeploymentFetcher
	logger      *slog.Logger
	interval    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewManager constructs a session manager.
func NewManager(projects ProjectFetcher, deployments DeploymentFetcher, logger *slog.Logger, interval time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		projects:    projects,
		deployments: deployments,
		logger:      logger,
		interval:    interval,
		now:         time.Now,
		sessions:    make(map[*Session]struct{}),
	}
}

// Open creates an inactive session; the caller activates it with Watch
// and must release it with Close.
func (m *Manager) Open(notify func(Snapshot)) *Session {
	session := newSession(m.projects, m.deployments, m.logger, m.interval, m.now, notify)
	m.mu.Lock()
	m.sessions[session] = struct{}{}
	m.mu.Unlock()
	return session
}

// Close stops a session's cycle and forgets it.
func (m *Manager) Close(session *Session) {
	if session == nil {
		return
	}
	session.Stop()
	m.mu.Lock()
	delete(m.sessions, session)
	m.mu.Unlock()
}

// Refresh forces an immediate fetch on every session watching projectID.
// Used by the action dispatcher after a successful mutation.
func (m *Manager) Refresh(projectID string) {
	for _, session := range m.watching(projectID) {
		session.ForceRefresh()
	}
}

// logFetchTimeout bounds the direct fetch behind Logs when no session
// holds a cached timeline.
const logFetchTimeout = 10 * time.Second

// Logs returns the aggregated timeline for projectID: a live session's
// cache when one is watching, otherwise a direct fetch of the project's
// job logs. The fallback keeps autofix available to plain HTTP clients
// that never open a stream.
func (m *Manager) Logs(projectID string) []domain.LogEntry {
	if sessions := m.watching(projectID); len(sessions) > 0 {
		return sessions[0].Logs()
	}

	ctx, cancel := context.WithTimeout(context.Background(), logFetchTimeout)
	defer cancel()
	project, err := m.projects.Get(ctx, projectID)
	if err != nil {
		m.logger.Warn("project fetch for log source failed", "project_id", projectID, "error", err)
		return nil
	}
	if project == nil {
		return nil
	}
	return logsvc.Merge(nil, logsvc.FromJobs(project.Jobs))
}

// Snapshot serves a one-shot view: a live session's state when one is
// watching the project, otherwise a direct fetch. The deployment read in
// the direct path is best-effort, matching the polling policy.
func (m *Manager) Snapshot(ctx context.Context, projectID string) (Snapshot, error) {
	if sessions := m.watching(projectID); len(sessions) > 0 {
		return sessions[0].Snapshot(), nil
	}

	project, err := m.projects.Get(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		ProjectID: projectID,
		Project:   project,
		Logs:      make([]domain.LogEntry, 0),
		UpdatedAt: m.now().UTC(),
	}
	if project != nil {
		snap.Logs = logsvc.Merge(nil, logsvc.FromJobs(project.Jobs))
		if project.VercelProjectID != "" {
			dep, err := m.deployments.LatestDeployment(ctx, project.VercelProjectID)
			if err != nil {
				m.logger.Warn("deployment status fetch failed", "project_id", projectID, "error", err)
			} else if dep != nil {
				snap.BuildState = dep.State
			}
		}
	}
	snap.Status = status.Derive(project, latestJob(project), snap.BuildState)
	return snap, nil
}

func (m *Manager) watching(projectID string) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for session := range m.sessions {
		if session.ProjectID() == projectID {
			out = append(out, session)
		}
	}
	return out
}
