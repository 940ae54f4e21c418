package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/hellno/frameception/internal/domain"
	"github.com/hellno/frameception/internal/notifications"
	"github.com/hellno/frameception/internal/service/dispatch"
	"github.com/hellno/frameception/internal/service/poller"
	"github.com/hellno/frameception/internal/vercel"
	"github.com/hellno/frameception/internal/ws"
	"github.com/hellno/frameception/pkg/jwt"
)

const testSecret = "test-secret"

type fakeProjects struct {
	project *domain.Project
}

func (f *fakeProjects) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	p := *f.project
	p.ID = projectID
	return &p, nil
}

type fakeDeployments struct{}

func (fakeDeployments) LatestDeployment(ctx context.Context, vercelProjectID string) (*vercel.Deployment, error) {
	return nil, nil
}

func (fakeDeployments) BuildLogs(ctx context.Context, deploymentID string) ([]domain.BuildLogLine, error) {
	return nil, nil
}

type fakeBackend struct {
	updates int
	deploys int
	prompt  string
}

func (f *fakeBackend) SubmitUpdate(ctx context.Context, projectID, prompt string, user domain.UserContext) error {
	f.updates++
	f.prompt = prompt
	return nil
}

func (f *fakeBackend) RequestDeploy(ctx context.Context, projectID string, user domain.UserContext) error {
	f.deploys++
	return nil
}

func newTestRouter(t *testing.T, backendClient *fakeBackend) *Router {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	projects := &fakeProjects{project: &domain.Project{Name: "my frame", FrontendURL: "https://frame.vercel.app"}}
	manager := poller.NewManager(projects, fakeDeployments{}, log, time.Hour)
	dispatcher := dispatch.New(backendClient, manager, manager, log)
	router := NewRouter(log, manager, dispatcher, notifications.NewMemoryStore(), ws.NewHub(), nil, testSecret, nil)
	t.Cleanup(router.Close)
	return router
}

func authHeader(t *testing.T) string {
	t.Helper()
	token, err := jwt.GenerateToken(42, "hellno", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return "Bearer " + token
}

func TestProjectSnapshotRequiresAuth(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{})
	req := httptest.NewRequest(http.MethodGet, "/projects/proj-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProjectSnapshotReturnsDerivedState(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{})
	req := httptest.NewRequest(http.MethodGet, "/projects/proj-1", nil)
	req.Header.Set("Authorization", authHeader(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Project struct {
			Name string `json:"name"`
		} `json:"project"`
		Status struct {
			State string `json:"state"`
		} `json:"status"`
		Submitting bool `json:"submitting"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Project.Name != "my frame" {
		t.Fatalf("unexpected project %+v", payload.Project)
	}
	if payload.Status.State != string(domain.StateDeployed) {
		t.Fatalf("expected deployed state, got %q", payload.Status.State)
	}
	if payload.Submitting {
		t.Fatal("expected submitting false with no dispatch in flight")
	}
}

func TestProjectUpdateDispatches(t *testing.T) {
	backendClient := &fakeBackend{}
	router := newTestRouter(t, backendClient)
	body := strings.NewReader(`{"prompt":"make it purple"}`)
	req := httptest.NewRequest(http.MethodPost, "/projects/proj-1/update", body)
	req.Header.Set("Authorization", authHeader(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if backendClient.updates != 1 || backendClient.prompt != "make it purple" {
		t.Fatalf("backend not called as expected: %+v", backendClient)
	}
}

func TestProjectUpdateRejectsBlankPrompt(t *testing.T) {
	backendClient := &fakeBackend{}
	router := newTestRouter(t, backendClient)
	req := httptest.NewRequest(http.MethodPost, "/projects/proj-1/update", strings.NewReader(`{"prompt":"  "}`))
	req.Header.Set("Authorization", authHeader(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if backendClient.updates != 0 {
		t.Fatal("backend must not be called for invalid input")
	}
}

func TestProjectDeployDispatches(t *testing.T) {
	backendClient := &fakeBackend{}
	router := newTestRouter(t, backendClient)
	req := httptest.NewRequest(http.MethodPost, "/projects/proj-1/deploy", nil)
	req.Header.Set("Authorization", authHeader(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if backendClient.deploys != 1 {
		t.Fatalf("expected one deploy call, got %d", backendClient.deploys)
	}
}

func TestNotificationsLifecycle(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{})
	header := authHeader(t)

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("Authorization", header)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before storing, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/notifications", strings.NewReader(`{"enabled":true,"token":"tok_1"}`))
	req.Header.Set("Authorization", header)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on store, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("Authorization", header)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after storing, got %d", rec.Code)
	}
	var prefs notifications.Preferences
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("decode prefs: %v", err)
	}
	if !prefs.Enabled || prefs.Token != "tok_1" {
		t.Fatalf("unexpected prefs %+v", prefs)
	}

	req = httptest.NewRequest(http.MethodDelete, "/notifications", nil)
	req.Header.Set("Authorization", header)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &fakeBackend{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health payload: %s", rec.Body.String())
	}
}
