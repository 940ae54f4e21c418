package config

import "time"

// DashboardConfig holds runtime configuration for the dashboard service.
type DashboardConfig struct {
	Environment   string
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	JWTSecret     string

	BackendURL       string
	BackendAuthToken string

	VercelAPIURL string
	VercelToken  string
	VercelTeamID string

	PollInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LoadDashboardConfig constructs a DashboardConfig from environment variables.
func LoadDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Environment:      GetString("APP_ENV", "development"),
		Addr:             GetString("DASHBOARD_ADDR", ":4000"),
		DatabaseURL:      GetString("DATABASE_URL", "postgres://frameception:frameception@db:5432/frameception?sslmode=disable"),
		MigrationsDir:    GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:        GetString("JWT_SECRET", "supersecuresecret"),
		BackendURL:       GetString("BACKEND_URL", "http://backend:8000"),
		BackendAuthToken: GetString("BACKEND_AUTH_TOKEN", ""),
		VercelAPIURL:     GetString("VERCEL_API_URL", "https://api.vercel.com"),
		VercelToken:      GetString("VERCEL_TOKEN", ""),
		VercelTeamID:     GetString("VERCEL_TEAM_ID", ""),
		PollInterval:     time.Duration(GetInt("POLL_INTERVAL_SECONDS", 5)) * time.Second,
		RedisAddr:        GetString("REDIS_ADDR", ""),
		RedisPassword:    GetString("REDIS_PASSWORD", ""),
		RedisDB:          GetInt("REDIS_DB", 0),
	}
}
