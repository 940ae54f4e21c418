package projects

import (
	"context"
	"errors"
	"strings"

	"log/slog"

	"github.com/hellno/frameception/internal/domain"
	"github.com/hellno/frameception/internal/repository"
)

var errMissingProjectID = errors.New("project id required")

// Service assembles the dashboard's project view: the project record with
// its jobs and their log entries nested, replaced wholesale per fetch.
type Service struct {
	repo   repository.ProjectRepository
	logger *slog.Logger
}

// New returns a project read service.
func New(repo repository.ProjectRepository, logger *slog.Logger) Service {
	return Service{repo: repo, logger: logger}
}

// Get loads a project with nested jobs and logs.
func (s Service) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errMissingProjectID
	}
	project, err := s.repo.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.repo.ListProjectJobs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListProjectJobLogs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	byJob := make(map[string][]domain.LogEntry, len(jobs))
	for _, entry := range entries {
		byJob[entry.JobID] = append(byJob[entry.JobID], entry)
	}
	for i := range jobs {
		jobs[i].Logs = byJob[jobs[i].ID]
	}
	project.Jobs = jobs
	return project, nil
}
