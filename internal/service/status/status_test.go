package status

import (
	"testing"
	"time"

	"github.com/hellno/frameception/internal/domain"
)

func TestDeriveAllNilIsCreated(t *testing.T) {
	got := Derive(nil, nil, "")
	if got.State != domain.StateCreated {
		t.Fatalf("expected created, got %s", got.State)
	}
	if got.Error != "" {
		t.Fatalf("expected empty error, got %q", got.Error)
	}
}

func TestDeriveProjectWithoutJobsOrURL(t *testing.T) {
	project := &domain.Project{ID: "proj-1", Name: "my frame"}
	got := Derive(project, nil, "")
	if got.State != domain.StateCreated {
		t.Fatalf("expected created, got %s", got.State)
	}
}

func TestDerivePendingJobOverridesStaleReadyState(t *testing.T) {
	project := &domain.Project{ID: "proj-1", FrontendURL: "https://frame.vercel.app"}
	job := &domain.Job{Type: domain.JobTypeUpdateCode, Status: domain.JobStatusPending}

	got := Derive(project, job, domain.BuildStateReady)
	if got.State != domain.StateBuilding {
		t.Fatalf("expected building, got %s", got.State)
	}
}

func TestDeriveJobErrorCarriesMessage(t *testing.T) {
	job := &domain.Job{
		Type:   domain.JobTypeUpdateCode,
		Status: domain.JobStatusFailed,
		Data:   domain.JobData{Error: "Build failed: missing dependency"},
	}
	got := Derive(&domain.Project{ID: "proj-1"}, job, "")
	if got.State != domain.StateError {
		t.Fatalf("expected error state, got %s", got.State)
	}
	if got.Error != "Build failed: missing dependency" {
		t.Fatalf("unexpected message %q", got.Error)
	}
}

func TestDeriveErrorDominatesPending(t *testing.T) {
	job := &domain.Job{
		Type:   domain.JobTypeUpdateCode,
		Status: domain.JobStatusPending,
		Data:   domain.JobData{Error: "compile error"},
	}
	got := Derive(&domain.Project{ID: "proj-1", FrontendURL: "https://f.vercel.app"}, job, domain.BuildStateBuilding)
	if got.State != domain.StateError {
		t.Fatalf("expected error to dominate pending, got %s", got.State)
	}
}

func TestDeriveVercelErrorWithoutJobSignal(t *testing.T) {
	got := Derive(&domain.Project{ID: "proj-1", FrontendURL: "https://f.vercel.app"}, nil, domain.BuildStateError)
	if got.State != domain.StateError {
		t.Fatalf("expected error, got %s", got.State)
	}
	if got.Error == "" {
		t.Fatal("expected an error message")
	}
}

func TestDeriveDeployedWhenQuiet(t *testing.T) {
	job := &domain.Job{Type: domain.JobTypeSetupProject, Status: domain.JobStatusCompleted}
	got := Derive(&domain.Project{ID: "proj-1", FrontendURL: "https://f.vercel.app"}, job, domain.BuildStateReady)
	if got.State != domain.StateDeployed {
		t.Fatalf("expected deployed, got %s", got.State)
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	project := &domain.Project{ID: "proj-1", FrontendURL: "https://f.vercel.app"}
	job := &domain.Job{Type: domain.JobTypeUpdateCode, Status: domain.JobStatusRunning}
	first := Derive(project, job, domain.BuildStateBuilding)
	for i := 0; i < 5; i++ {
		if got := Derive(project, job, domain.BuildStateBuilding); got != first {
			t.Fatalf("expected stable output, got %+v then %+v", first, got)
		}
	}
}

func TestLatestRelevantJobPicksNewest(t *testing.T) {
	base := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	jobs := []domain.Job{
		{ID: "a", Type: domain.JobTypeSetupProject, CreatedAt: base},
		{ID: "b", Type: domain.JobTypeUpdateCode, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "c", Type: "metadata_refresh", CreatedAt: base.Add(5 * time.Minute)},
	}
	got := LatestRelevantJob(jobs)
	if got == nil || got.ID != "b" {
		t.Fatalf("expected job b, got %+v", got)
	}
}

func TestLatestRelevantJobEmpty(t *testing.T) {
	if got := LatestRelevantJob(nil); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
