package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MINIO_ACCESS_KEY_ID", "minio")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "minio-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.API.Port)
	}
	if cfg.Database.IsSQLite() {
		t.Fatalf("default driver should be postgres")
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Fatalf("unexpected redis addr %s", cfg.Redis.Addr())
	}
	if cfg.Auth.AccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %s", cfg.Auth.AccessTTL)
	}
	if len(cfg.API.WSAllowedOrigins) != 0 {
		t.Fatalf("expected no ws origins by default, got %v", cfg.API.WSAllowedOrigins)
	}
	if !strings.Contains(cfg.Database.DSN(), "dbname=texresume") {
		t.Fatalf("unexpected dsn %s", cfg.Database.DSN())
	}
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/resumes.db")
	t.Setenv("JWT_ACCESS_TTL", "30m")
	t.Setenv("MINIO_BUCKET_LOOKUP", "path")
	t.Setenv("LATEX_PREAMBLE_PATH", "/etc/tex/preamble.tex")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://app.example.com,https://admin.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.API.Port)
	}
	if !cfg.Database.IsSQLite() || cfg.Database.SQLitePath != "/tmp/resumes.db" {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Auth.AccessTTL != 30*time.Minute {
		t.Fatalf("unexpected access ttl %s", cfg.Auth.AccessTTL)
	}
	if cfg.MinIO.BucketLookup != "path" {
		t.Fatalf("unexpected bucket lookup %q", cfg.MinIO.BucketLookup)
	}
	if cfg.Latex.PreamblePath != "/etc/tex/preamble.tex" {
		t.Fatalf("unexpected preamble path %q", cfg.Latex.PreamblePath)
	}
	if len(cfg.API.WSAllowedOrigins) != 2 || cfg.API.WSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected ws origins %v", cfg.API.WSAllowedOrigins)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing minio key": {"MINIO_ACCESS_KEY_ID": ""},
		"unknown driver":    {"DATABASE_DRIVER": "mysql"},
		"bad port":          {"API_PORT": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("COOKIE_DOMAIN=resumes.example.com\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { _ = os.Unsetenv("COOKIE_DOMAIN") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.CookieDomain != "resumes.example.com" {
		t.Fatalf("dotenv value not applied, got %q", cfg.Auth.CookieDomain)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	if _, err := Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
}
