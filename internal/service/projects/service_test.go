package projects

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/hellno/frameception/internal/domain"
	"github.com/hellno/frameception/internal/repository"
)

type fakeRepo struct {
	project *domain.Project
	jobs    []domain.Job
	logs    []domain.LogEntry
	err     error
}

func (f *fakeRepo) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.project, nil
}

func (f *fakeRepo) ListProjectJobs(ctx context.Context, projectID string) ([]domain.Job, error) {
	return f.jobs, nil
}

func (f *fakeRepo) ListProjectJobLogs(ctx context.Context, projectID string) ([]domain.LogEntry, error) {
	return f.logs, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetNestsJobsAndLogs(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{
		project: &domain.Project{ID: "proj-1", Name: "my frame", CreatedAt: now},
		jobs: []domain.Job{
			{ID: "job-1", ProjectID: "proj-1", Type: domain.JobTypeSetupProject},
			{ID: "job-2", ProjectID: "proj-1", Type: domain.JobTypeUpdateCode},
		},
		logs: []domain.LogEntry{
			{ID: "l1", JobID: "job-1", Source: domain.LogSourceBackend},
			{ID: "l2", JobID: "job-2", Source: domain.LogSourceGithub},
			{ID: "l3", JobID: "job-2", Source: domain.LogSourceBackend},
		},
	}
	svc := New(repo, testLogger())

	project, err := svc.Get(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if len(project.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(project.Jobs))
	}
	if len(project.Jobs[0].Logs) != 1 || len(project.Jobs[1].Logs) != 2 {
		t.Fatalf("logs not attached to owning jobs: %+v", project.Jobs)
	}
}

func TestGetRejectsEmptyID(t *testing.T) {
	svc := New(&fakeRepo{}, testLogger())
	if _, err := svc.Get(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank project id")
	}
}

func TestGetPropagatesNotFound(t *testing.T) {
	svc := New(&fakeRepo{err: repository.ErrNotFound}, testLogger())
	_, err := svc.Get(context.Background(), "missing")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
