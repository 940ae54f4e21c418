package poller

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/hellno/frameception/internal/domain"
	"github.com/hellno/frameception/internal/vercel"
)

type fetcherFunc func(ctx context.Context, projectID string) (*domain.Project, error)

func (f fetcherFunc) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	return f(ctx, projectID)
}

type fakeDeployments struct {
	mu         sync.Mutex
	deployment *vercel.Deployment
	err        error
	lines      []domain.BuildLogLine
}

func (f *fakeDeployments) LatestDeployment(ctx context.Context, vercelProjectID string) (*vercel.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.deployment == nil {
		return nil, nil
	}
	dep := *f.deployment
	return &dep, nil
}

func (f *fakeDeployments) BuildLogs(ctx context.Context, deploymentID string) ([]domain.BuildLogLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lines, nil
}

func (f *fakeDeployments) set(dep *vercel.Deployment, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployment = dep
	f.err = err
}

type snapshotLog struct {
	mu    sync.Mutex
	snaps []Snapshot
	ch    chan Snapshot
}

func newSnapshotLog() *snapshotLog {
	return &snapshotLog{ch: make(chan Snapshot, 64)}
}

func (l *snapshotLog) record(snap Snapshot) {
	l.mu.Lock()
	l.snaps = append(l.snaps, snap)
	l.mu.Unlock()
	l.ch <- snap
}

func (l *snapshotLog) all() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Snapshot(nil), l.snaps...)
}

func (l *snapshotLog) wait(t *testing.T, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-l.ch:
			if cond(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(projects ProjectFetcher, deployments DeploymentFetcher, log *snapshotLog) *Session {
	return newSession(projects, deployments, discardLogger(), time.Hour, nil, log.record)
}

func TestWatchAppliesInitialFetch(t *testing.T) {
	projects := fetcherFunc(func(ctx context.Context, projectID string) (*domain.Project, error) {
		return &domain.Project{
			ID:   projectID,
			Name: "my frame",
			Jobs: []domain.Job{{ID: "job-1", Type: domain.JobTypeUpdateCode, Status: domain.JobStatusPending}},
		}, nil
	})
	log := newSnapshotLog()
	session := newTestSession(projects, &fakeDeployments{}, log)
	defer session.Stop()

	session.Watch("proj-1")
	snap := log.wait(t, func(s Snapshot) bool { return s.Project != nil })
	if snap.Status.State != domain.StateBuilding {
		t.Fatalf("expected building, got %s", snap.Status.State)
	}
}

func TestSwitchingProjectsDiscardsStaleFetch(t *testing.T) {
	release := make(chan struct{})
	projects := fetcherFunc(func(ctx context.Context, projectID string) (*domain.Project, error) {
		if projectID == "proj-a" {
			<-release
			return &domain.Project{ID: "proj-a", Name: "stale"}, nil
		}
		return &domain.Project{ID: "proj-b", Name: "fresh"}, nil
	})
	log := newSnapshotLog()
	session := newTestSession(projects, &fakeDeployments{}, log)
	defer session.Stop()

	session.Watch("proj-a")
	session.Watch("proj-b")

	log.wait(t, func(s Snapshot) bool { return s.Project != nil && s.Project.ID == "proj-b" })

	close(release)
	time.Sleep(50 * time.Millisecond)

	if got := session.Snapshot().Project; got == nil || got.ID != "proj-b" {
		t.Fatalf("expected proj-b to stay applied, got %+v", got)
	}
	for _, snap := range log.all() {
		if snap.Project != nil && snap.Project.ID == "proj-a" {
			t.Fatal("stale proj-a data was applied to shared state")
		}
	}
}

func TestDeploymentTransitionInjectsLogEntry(t *testing.T) {
	projects := fetcherFunc(func(ctx context.Context, projectID string) (*domain.Project, error) {
		return &domain.Project{ID: projectID, VercelProjectID: "prj_1"}, nil
	})
	deployments := &fakeDeployments{
		deployment: &vercel.Deployment{ID: "dep_1", State: domain.BuildStateBuilding},
		lines:      []domain.BuildLogLine{{ID: "l1", Stream: domain.StreamStderr, Text: "Type error: bad import"}},
	}
	log := newSnapshotLog()
	session := newTestSession(projects, deployments, log)
	defer session.Stop()

	session.Watch("proj-1")
	snap := log.wait(t, func(s Snapshot) bool { return s.BuildState == domain.BuildStateBuilding })

	if len(snap.Logs) != 1 || snap.Logs[0].Source != domain.LogSourceVercel {
		t.Fatalf("expected one vercel entry, got %+v", snap.Logs)
	}
	if snap.Logs[0].Data == nil || len(snap.Logs[0].Data.Logs) != 1 {
		t.Fatal("expected build log payload on the injected entry")
	}

	// Same state again: no duplicate entry.
	session.ForceRefresh()
	log.wait(t, func(s Snapshot) bool { return s.Project != nil })
	time.Sleep(50 * time.Millisecond)
	if got := len(session.Logs()); got != 1 {
		t.Fatalf("expected 1 entry after unchanged poll, got %d", got)
	}

	// Transition to READY: one more entry.
	deployments.set(&vercel.Deployment{ID: "dep_1", State: domain.BuildStateReady}, nil)
	session.ForceRefresh()
	log.wait(t, func(s Snapshot) bool { return s.BuildState == domain.BuildStateReady })
	if got := len(session.Logs()); got != 2 {
		t.Fatalf("expected 2 entries after transition, got %d", got)
	}
}

func TestProjectFetchFailureSurfacesAndRecovers(t *testing.T) {
	var mu sync.Mutex
	fail := true
	projects := fetcherFunc(func(ctx context.Context, projectID string) (*domain.Project, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, errors.New("connection refused")
		}
		return &domain.Project{ID: projectID}, nil
	})
	log := newSnapshotLog()
	session := newTestSession(projects, &fakeDeployments{}, log)
	defer session.Stop()

	session.Watch("proj-1")
	snap := log.wait(t, func(s Snapshot) bool { return s.LastError != "" })
	if snap.Project != nil {
		t.Fatal("expected no project while load-bearing fetch fails")
	}

	mu.Lock()
	fail = false
	mu.Unlock()
	session.ForceRefresh()
	snap = log.wait(t, func(s Snapshot) bool { return s.LastError == "" && s.Project != nil })
	if snap.Project.ID != "proj-1" {
		t.Fatalf("unexpected project %+v", snap.Project)
	}
}

func TestDeploymentFetchFailureRetainsPreviousState(t *testing.T) {
	projects := fetcherFunc(func(ctx context.Context, projectID string) (*domain.Project, error) {
		return &domain.Project{ID: projectID, VercelProjectID: "prj_1"}, nil
	})
	deployments := &fakeDeployments{
		deployment: &vercel.Deployment{ID: "dep_1", State: domain.BuildStateBuilding},
	}
	log := newSnapshotLog()
	session := newTestSession(projects, deployments, log)
	defer session.Stop()

	session.Watch("proj-1")
	log.wait(t, func(s Snapshot) bool { return s.BuildState == domain.BuildStateBuilding })

	deployments.set(nil, errors.New("502 bad gateway"))
	session.ForceRefresh()
	log.wait(t, func(s Snapshot) bool { return s.Project != nil })
	time.Sleep(50 * time.Millisecond)

	if got := session.Snapshot().BuildState; got != domain.BuildStateBuilding {
		t.Fatalf("expected retained build state, got %q", got)
	}
	if got := session.Snapshot().LastError; got != "" {
		t.Fatalf("telemetry failure must not surface, got %q", got)
	}
}
