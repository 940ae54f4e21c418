package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hellno/frameception/internal/app/migrate"
	"github.com/hellno/frameception/internal/backend"
	httpx "github.com/hellno/frameception/internal/http"
	"github.com/hellno/frameception/internal/notifications"
	"github.com/hellno/frameception/internal/repository/postgres"
	"github.com/hellno/frameception/internal/service/dispatch"
	"github.com/hellno/frameception/internal/service/poller"
	"github.com/hellno/frameception/internal/service/projects"
	"github.com/hellno/frameception/internal/vercel"
	"github.com/hellno/frameception/internal/ws"
	"github.com/hellno/frameception/pkg/config"
	"github.com/hellno/frameception/pkg/logger"
)

func main() {
	cfg := config.LoadDashboardConfig()
	log := logger.New("dashboard", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	projectSvc := projects.New(repo, log)
	vercelClient := vercel.New(cfg.VercelToken, cfg.VercelTeamID, vercel.WithBaseURL(cfg.VercelAPIURL))
	backendClient := backend.New(cfg.BackendURL, cfg.BackendAuthToken)

	manager := poller.NewManager(projectSvc, vercelClient, log, cfg.PollInterval)
	dispatcher := dispatch.New(backendClient, manager, manager, log)

	prefs := notifications.NewMemoryStore()
	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisPrefs, err := notifications.NewRedisStore(addr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis notification store unavailable", "error", err)
		} else {
			prefs = redisPrefs
		}
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}
	defer prefs.Close()

	hub := ws.NewHub()
	router := httpx.NewRouter(log, manager, dispatcher, prefs, hub, limiter, cfg.JWTSecret, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("dashboard server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("dashboard server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
