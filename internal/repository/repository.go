package repository

import (
	"context"

	"github.com/hellno/frameception/internal/domain"
)

// ProjectRepository reads the project records the backend maintains.
// All reads are idempotent and safe to repeat on every poll tick.
type ProjectRepository interface {
	GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error)
	ListProjectJobs(ctx context.Context, projectID string) ([]domain.Job, error)
	ListProjectJobLogs(ctx context.Context, projectID string) ([]domain.LogEntry, error)
}
