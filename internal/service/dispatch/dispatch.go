package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"log/slog"

	"github.com/hellno/frameception/internal/domain"
	logsvc "github.com/hellno/frameception/internal/service/logs"
)

// Operation names reported on the in-flight flag.
const (
	OpUpdate  = "update_code"
	OpDeploy  = "deploy"
	OpAutofix = "autofix"
)

var (
	ErrMissingProjectID = errors.New("project id required")
	ErrMissingPrompt    = errors.New("update prompt required")
	ErrMissingUser      = errors.New("user identity required")
	ErrBusy             = errors.New("another operation is in flight for this project")
	ErrNoBuildErrors    = errors.New("no build errors found to fix")
)

// BackendClient submits mutation jobs to the backend.
type BackendClient interface {
	SubmitUpdate(ctx context.Context, projectID, prompt string, user domain.UserContext) error
	RequestDeploy(ctx context.Context, projectID string, user domain.UserContext) error
}

// Refresher forces an out-of-band project refresh so a new job appears
// without waiting for the next poll tick.
type Refresher interface {
	Refresh(projectID string)
}

// LogSource exposes the aggregated timeline autofix scans for build errors.
type LogSource interface {
	Logs(projectID string) []domain.LogEntry
}

// Dispatcher runs the user-triggered mutations. Each project has at most
// one operation in flight; duplicates are refused. A failed dispatch is
// logged and returned to the caller but never flows into the reconciled
// snapshot, so the dashboard never renders an error state from it.
type Dispatcher struct {
	backend   BackendClient
	refresher Refresher
	logs      LogSource
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]string
}

// New constructs a Dispatcher.
func New(backend BackendClient, refresher Refresher, logs LogSource, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		backend:   backend,
		refresher: refresher,
		logs:      logs,
		logger:    logger.With("component", "dispatch"),
		inflight:  make(map[string]string),
	}
}

// SubmitUpdate queues an update_code job with the user's prompt.
func (d *Dispatcher) SubmitUpdate(ctx context.Context, projectID, prompt string, user domain.UserContext) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrMissingPrompt
	}
	return d.run(ctx, projectID, OpUpdate, user, func(ctx context.Context) error {
		return d.backend.SubmitUpdate(ctx, projectID, prompt, user)
	})
}

// Deploy asks the backend to redeploy the project frontend.
func (d *Dispatcher) Deploy(ctx context.Context, projectID string, user domain.UserContext) error {
	return d.run(ctx, projectID, OpDeploy, user, func(ctx context.Context) error {
		return d.backend.RequestDeploy(ctx, projectID, user)
	})
}

// Autofix collects the stderr build-log lines from the current aggregated
// timeline, skipping warnings, and submits their concatenation as an
// update prompt.
func (d *Dispatcher) Autofix(ctx context.Context, projectID string, user domain.UserContext) error {
	lines := logsvc.ErrorLines(d.logs.Logs(projectID))
	if len(lines) == 0 {
		return ErrNoBuildErrors
	}
	prompt := autofixPrompt(lines)
	return d.run(ctx, projectID, OpAutofix, user, func(ctx context.Context) error {
		return d.backend.SubmitUpdate(ctx, projectID, prompt, user)
	})
}

// InFlight reports the operation currently running for a project, if any.
func (d *Dispatcher) InFlight(projectID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	op, ok := d.inflight[projectID]
	return op, ok
}

func (d *Dispatcher) run(ctx context.Context, projectID, op string, user domain.UserContext, fn func(context.Context) error) error {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ErrMissingProjectID
	}
	if !user.Valid() {
		return ErrMissingUser
	}
	if !d.begin(projectID, op) {
		return ErrBusy
	}
	defer d.end(projectID)

	if err := fn(ctx); err != nil {
		d.logger.Warn("dispatch failed", "project_id", projectID, "op", op, "error", err)
		return fmt.Errorf("%s dispatch: %w", op, err)
	}
	d.logger.Info("dispatch accepted", "project_id", projectID, "op", op, "fid", user.FID)
	d.refresher.Refresh(projectID)
	return nil
}

func (d *Dispatcher) begin(projectID, op string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[projectID]; busy {
		return false
	}
	d.inflight[projectID] = op
	return true
}

func (d *Dispatcher) end(projectID string) {
	d.mu.Lock()
	delete(d.inflight, projectID)
	d.mu.Unlock()
}

func autofixPrompt(lines []string) string {
	return fmt.Sprintf(
		"The Vercel build failed with the following errors:\n%s\nPlease fix the code so the build succeeds.",
		strings.Join(lines, "\n"),
	)
}
