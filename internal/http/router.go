package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hellno/frameception/internal/domain"
	"github.com/hellno/frameception/internal/notifications"
	"github.com/hellno/frameception/internal/repository"
	"github.com/hellno/frameception/internal/service/dispatch"
	logsvc "github.com/hellno/frameception/internal/service/logs"
	"github.com/hellno/frameception/internal/service/poller"
	"github.com/hellno/frameception/internal/ws"
)

// Router wires the dashboard HTTP endpoints to the engine.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	manager    *poller.Manager
	dispatcher *dispatch.Dispatcher
	prefs      notifications.Store
	hub        *ws.Hub
	upgrader   websocket.Upgrader
	limiter    RateLimiter
	jwtSecret  string
	dbHealth   func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRead      = 120
	rateLimitPrefs     = 60
	rateLimitStream    = 30
	healthCheckTimeout = 2 * time.Second
	sseHeartbeatEvery  = 15 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, manager *poller.Manager, dispatcher *dispatch.Dispatcher, prefs notifications.Store, hub *ws.Hub, limiter RateLimiter, jwtSecret string, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:        http.NewServeMux(),
		logger:     logger,
		manager:    manager,
		dispatcher: dispatcher,
		prefs:      prefs,
		hub:        hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:   limiter,
		jwtSecret: jwtSecret,
		dbHealth:  dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/projects/", r.audit("/projects", r.handlerAuthRate("/projects", rateLimitRead, rateWindowDefault, r.handleProjectSubroutes)))
	r.mux.HandleFunc("/ws/projects", r.audit("/ws/projects", r.handlerAuthRate("/ws/projects", rateLimitStream, rateWindowRealtime, r.handleProjectWS)))
	r.mux.HandleFunc("/sse/projects", r.audit("/sse/projects", r.handlerAuthRate("/sse/projects", rateLimitStream, rateWindowRealtime, r.handleProjectSSE)))
	r.mux.HandleFunc("/notifications", r.audit("/notifications", r.handlerAuthRate("/notifications", rateLimitPrefs, rateWindowDefault, r.handleNotifications)))
}

// snapshotResponse decorates the reconciled snapshot with the dispatch
// in-flight flag so the client can disable its submit controls.
type snapshotResponse struct {
	poller.Snapshot
	Submitting bool   `json:"submitting"`
	Operation  string `json:"operation,omitempty"`
}

func (r *Router) decorate(snap poller.Snapshot) snapshotResponse {
	op, busy := r.dispatcher.InFlight(snap.ProjectID)
	return snapshotResponse{Snapshot: snap, Submitting: busy, Operation: op}
}

func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/projects/")
	parts := strings.Split(trimmed, "/")
	projectID := parts[0]
	if projectID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleProjectSnapshot(w, req, projectID)
	case len(parts) == 2 && parts[1] == "logs":
		r.handleProjectLogs(w, req, projectID)
	case len(parts) == 2 && parts[1] == "build-logs":
		r.handleProjectBuildLogs(w, req, projectID)
	case len(parts) == 2 && parts[1] == "update":
		r.handleProjectUpdate(w, req, projectID)
	case len(parts) == 2 && parts[1] == "deploy":
		r.handleProjectDeploy(w, req, projectID)
	case len(parts) == 2 && parts[1] == "autofix":
		r.handleProjectAutofix(w, req, projectID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProjectSnapshot(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	snap, err := r.manager.Snapshot(req.Context(), projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, r.decorate(snap))
}

func (r *Router) handleProjectLogs(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	snap, err := r.manager.Snapshot(req.Context(), projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap.Logs)
}

func (r *Router) handleProjectBuildLogs(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	showAll, _ := strconv.ParseBool(req.URL.Query().Get("all"))
	snap, err := r.manager.Snapshot(req.Context(), projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.notFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	lines := logsvc.LatestBuildLines(snap.Logs)
	writeJSON(w, http.StatusOK, logsvc.FilterBuildLog(lines, showAll))
}

func (r *Router) handleProjectUpdate(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, ok := r.userContext(w, req)
	if !ok {
		return
	}
	err := r.dispatcher.SubmitUpdate(req.Context(), projectID, payload.Prompt, user)
	r.writeDispatchResult(w, err)
}

func (r *Router) handleProjectDeploy(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	user, ok := r.userContext(w, req)
	if !ok {
		return
	}
	err := r.dispatcher.Deploy(req.Context(), projectID, user)
	r.writeDispatchResult(w, err)
}

func (r *Router) handleProjectAutofix(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	user, ok := r.userContext(w, req)
	if !ok {
		return
	}
	err := r.dispatcher.Autofix(req.Context(), projectID, user)
	r.writeDispatchResult(w, err)
}

func (r *Router) userContext(w http.ResponseWriter, req *http.Request) (domain.UserContext, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for dispatch route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return domain.UserContext{}, false
	}
	return domain.UserContext{FID: info.FID, Username: info.Username}, true
}

func (r *Router) writeDispatchResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	case errors.Is(err, dispatch.ErrMissingPrompt),
		errors.Is(err, dispatch.ErrMissingProjectID),
		errors.Is(err, dispatch.ErrNoBuildErrors):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrMissingUser):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, dispatch.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// handleProjectWS streams reconciled snapshots over a websocket. The
// client selects the watched project with {"project_id": "..."} frames;
// sending a new id switches the stream, an empty id stops it.
func (r *Router) handleProjectWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	streamID := uuid.NewString()
	r.hub.Register(streamID, client)
	session := r.manager.Open(func(snap poller.Snapshot) {
		payload, err := json.Marshal(r.decorate(snap))
		if err != nil {
			r.logger.Error("snapshot encode failed", "error", err)
			return
		}
		r.hub.Broadcast(streamID, payload)
	})
	if projectID := req.URL.Query().Get("project_id"); projectID != "" {
		session.Watch(projectID)
	}
	go func() {
		defer func() {
			r.manager.Close(session)
			r.hub.Unregister(streamID, client)
			client.Close()
		}()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd struct {
				ProjectID string `json:"project_id"`
			}
			if err := json.Unmarshal(msg, &cmd); err != nil {
				r.logger.Warn("unreadable websocket frame", "error", err)
				continue
			}
			session.Watch(cmd.ProjectID)
		}
	}()
}

// handleProjectSSE is the EventSource fallback for the snapshot stream.
// The watched project is fixed by the project_id query parameter.
func (r *Router) handleProjectSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	projectID := req.URL.Query().Get("project_id")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project_id query parameter required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	streamID := uuid.NewString()
	r.hub.Register(streamID, client)
	session := r.manager.Open(func(snap poller.Snapshot) {
		payload, err := json.Marshal(r.decorate(snap))
		if err != nil {
			r.logger.Error("snapshot encode failed", "error", err)
			return
		}
		r.hub.Broadcast(streamID, payload)
	})
	session.Watch(projectID)
	defer func() {
		r.manager.Close(session)
		r.hub.Unregister(streamID, client)
		client.Close()
	}()

	heartbeat := time.NewTicker(sseHeartbeatEvery)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleNotifications(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for notifications route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodGet:
		prefs, err := r.prefs.Get(req.Context(), info.FID)
		if err != nil {
			if errors.Is(err, notifications.ErrNotFound) {
				r.notFound(w)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, prefs)
	case http.MethodPut, http.MethodPost:
		var prefs notifications.Preferences
		if err := json.NewDecoder(req.Body).Decode(&prefs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := r.prefs.Set(req.Context(), info.FID, prefs); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
	case http.MethodDelete:
		if err := r.prefs.Delete(req.Context(), info.FID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "fid", info.FID)
			if info.Username != "" {
				fields = append(fields, "username", info.Username)
			}
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
