package poller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/hellno/frameception/internal/domain"
	logsvc "github.com/hellno/frameception/internal/service/logs"
	"github.com/hellno/frameception/internal/service/status"
	"github.com/hellno/frameception/internal/vercel"
)

// DefaultInterval is the poll cadence for project and deployment data.
const DefaultInterval = 5 * time.Second

// ProjectFetcher loads a project with nested jobs and logs.
type ProjectFetcher interface {
	Get(ctx context.Context, projectID string) (*domain.Project, error)
}

// DeploymentFetcher reads deployment state from the platform.
type DeploymentFetcher interface {
	LatestDeployment(ctx context.Context, vercelProjectID string) (*vercel.Deployment, error)
	BuildLogs(ctx context.Context, deploymentID string) ([]domain.BuildLogLine, error)
}

// Snapshot is the read-only view handed to the rendering layer. Every
// field is a plain value; the engine never leaks errors as panics.
type Snapshot struct {
	ProjectID  string               `json:"project_id"`
	Project    *domain.Project      `json:"project"`
	Status     domain.ProjectStatus `json:"status"`
	Logs       []domain.LogEntry    `json:"logs"`
	BuildState string               `json:"build_state,omitempty"`
	LastError  string               `json:"last_error,omitempty"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Session drives the repeating refresh cycle for one viewer. At most one
// cycle is active per session; switching the watched project cancels the
// previous cycle and discards results from its in-flight fetches.
type Session struct {
	projects    ProjectFetcher
	deployments DeploymentFetcher
	logger      *slog.Logger
	interval    time.Duration
	now         func() time.Time
	notify      func(Snapshot)

	mu         sync.Mutex
	projectID  string
	gen        uint64
	ctx        context.Context
	cancel     context.CancelFunc
	project    *domain.Project
	timeline   []domain.LogEntry
	buildState string
	lastErr    string
}

func newSession(projects ProjectFetcher, deployments DeploymentFetcher, logger *slog.Logger, interval time.Duration, now func() time.Time, notify func(Snapshot)) *Session {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		projects:    projects,
		deployments: deployments,
		logger:      logger.With("component", "poller"),
		interval:    interval,
		now:         now,
		notify:      notify,
	}
}

// Watch activates the refresh cycle for projectID: one immediate fetch,
// then one per interval. Any previous cycle is cancelled first and its
// cached state dropped; there is no cross-project cache.
func (s *Session) Watch(projectID string) {
	projectID = strings.TrimSpace(projectID)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.ctx = nil
	}
	s.gen++
	gen := s.gen
	s.projectID = projectID
	s.project = nil
	s.timeline = nil
	s.buildState = ""
	s.lastErr = ""
	if projectID == "" {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel
	s.mu.Unlock()

	go s.loop(ctx, gen, projectID)
}

// Stop tears the cycle down. No timer fires and no fetch result is
// applied after Stop returns.
func (s *Session) Stop() {
	s.Watch("")
}

// ForceRefresh performs one out-of-band fetch so a freshly submitted job
// shows up without waiting for the next tick.
func (s *Session) ForceRefresh() {
	s.mu.Lock()
	ctx, gen, projectID := s.ctx, s.gen, s.projectID
	s.mu.Unlock()
	if ctx == nil || projectID == "" {
		return
	}
	go s.refresh(ctx, gen, projectID)
}

// ProjectID reports the currently watched project.
func (s *Session) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID
}

// Snapshot returns the current reconciled view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Logs returns a copy of the aggregated timeline.
func (s *Session) Logs() []domain.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LogEntry(nil), s.timeline...)
}

func (s *Session) loop(ctx context.Context, gen uint64, projectID string) {
	s.refresh(ctx, gen, projectID)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Ticks are not queued behind a slow fetch; a still-running
			// refresh does not block the next one.
			go s.refresh(ctx, gen, projectID)
		}
	}
}

func (s *Session) refresh(ctx context.Context, gen uint64, projectID string) {
	project, err := s.projects.Get(ctx, projectID)
	if ctx.Err() != nil {
		return
	}
	s.applyProject(gen, project, err)
	if err != nil || project == nil || project.VercelProjectID == "" {
		return
	}
	s.refreshDeployment(ctx, gen, project.VercelProjectID)
}

// refreshDeployment polls the platform and, when the build state moved,
// injects one vercel-sourced entry describing the transition. Deployment
// status is best-effort telemetry: failures keep the previous value.
func (s *Session) refreshDeployment(ctx context.Context, gen uint64, vercelProjectID string) {
	dep, err := s.deployments.LatestDeployment(ctx, vercelProjectID)
	if err != nil {
		s.logger.Warn("deployment status fetch failed", "vercel_project_id", vercelProjectID, "error", err)
		return
	}
	if dep == nil {
		return
	}

	s.mu.Lock()
	changed := gen == s.gen && dep.State != s.buildState
	s.mu.Unlock()
	if !changed {
		return
	}

	lines, err := s.deployments.BuildLogs(ctx, dep.ID)
	if err != nil {
		s.logger.Warn("build log fetch failed", "deployment_id", dep.ID, "error", err)
		lines = nil
	}
	entry := domain.LogEntry{
		ID:        uuid.NewString(),
		Source:    domain.LogSourceVercel,
		Text:      fmt.Sprintf("Vercel build status: %s", dep.State),
		CreatedAt: s.now().UTC(),
	}
	if len(lines) > 0 {
		entry.Data = &domain.LogData{Logs: lines}
	}
	s.applyDeployment(gen, dep.State, entry)
}

func (s *Session) applyProject(gen uint64, project *domain.Project, err error) {
	s.mu.Lock()
	if gen != s.gen {
		// Completed fetch for a previously watched project; discard.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
		s.project = project
		s.timeline = logsvc.Merge(s.timeline, logsvc.FromJobs(project.Jobs))
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Session) applyDeployment(gen uint64, state string, entry domain.LogEntry) {
	s.mu.Lock()
	if gen != s.gen || state == s.buildState {
		s.mu.Unlock()
		return
	}
	s.buildState = state
	s.timeline = append([]domain.LogEntry{entry}, s.timeline...)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ProjectID:  s.projectID,
		Project:    s.project,
		Status:     status.Derive(s.project, latestJob(s.project), s.buildState),
		Logs:       append([]domain.LogEntry(nil), s.timeline...),
		BuildState: s.buildState,
		LastError:  s.lastErr,
		UpdatedAt:  s.now().UTC(),
	}
}

func (s *Session) publish(snap Snapshot) {
	if s.notify != nil {
		s.notify(snap)
	}
}

func latestJob(project *domain.Project) *domain.Job {
	if project == nil {
		return nil
	}
	return status.LatestRelevantJob(project.Jobs)
}
