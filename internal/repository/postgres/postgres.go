package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hellno/frameception/internal/domain"
	"github.com/hellno/frameception/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.ProjectRepository = (*Repository)(nil)

// GetProjectByID fetches a project record without nested jobs.
func (r *Repository) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	const query = `SELECT id, name, COALESCE(repo_url, ''), COALESCE(frontend_url, ''),
			COALESCE(vercel_project_id, ''), created_at
		FROM projects WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, projectID)
	var p domain.Project
	if err := row.Scan(&p.ID, &p.Name, &p.RepoURL, &p.FrontendURL, &p.VercelProjectID, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProjectJobs returns a project's jobs, newest first.
func (r *Repository) ListProjectJobs(ctx context.Context, projectID string) ([]domain.Job, error) {
	const query = `SELECT id, project_id, type, status, COALESCE(data, '{}'::jsonb), created_at
		FROM jobs WHERE project_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		var data []byte
		if err := rows.Scan(&job.ID, &job.ProjectID, &job.Type, &job.Status, &data, &job.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &job.Data); err != nil {
				return nil, err
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListProjectJobLogs returns every log row produced by the project's jobs,
// oldest first.
func (r *Repository) ListProjectJobLogs(ctx context.Context, projectID string) ([]domain.LogEntry, error) {
	const query = `SELECT l.id, l.job_id, COALESCE(l.source, ''), l.text, l.data, l.created_at
		FROM logs l
		JOIN jobs j ON j.id = l.job_id
		WHERE j.project_id = $1
		ORDER BY l.created_at ASC`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var entry domain.LogEntry
		var data []byte
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.Source, &entry.Text, &data, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			var payload domain.LogData
			if err := json.Unmarshal(data, &payload); err == nil && len(payload.Logs) > 0 {
				entry.Data = &payload
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
