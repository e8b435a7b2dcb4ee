package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garnizeh/fieldops/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Addr:          ":8080",
		JWTSecret:     config.InsecureJWTSecret,
		APITimeout:    5 * time.Second,
		DatabasePath:  "fieldops.db",
		TokenDuration: time.Hour,
	}
}

func TestValidate_InsecureJWT_FailsWhenNotDevelopment(t *testing.T) {
	t.Setenv("FIELDOPS_ENV", "production")

	if err := baseConfig().Validate(); err == nil {
		t.Fatalf("expected Validate to fail for insecure JWT in non-development env")
	}
}

func TestValidate_InsecureJWT_AllowsDevelopment(t *testing.T) {
	t.Setenv("FIELDOPS_ENV", "development")

	if err := baseConfig().Validate(); err != nil {
		t.Fatalf("expected Validate to succeed in development env, got: %v", err)
	}
}

func TestValidate_DefaultsPopulated(t *testing.T) {
	t.Setenv("FIELDOPS_ENV", "development")

	cfg := baseConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed unexpectedly: %v", err)
	}

	if cfg.Lifecycle.RadiusMeters != 100 {
		t.Fatalf("radius: got %v want 100", cfg.Lifecycle.RadiusMeters)
	}
	if cfg.Lifecycle.MinPhotos != 3 {
		t.Fatalf("min photos: got %d want 3", cfg.Lifecycle.MinPhotos)
	}
	if cfg.Lifecycle.LocationTimeout != 10*time.Second {
		t.Fatalf("location timeout: got %v", cfg.Lifecycle.LocationTimeout)
	}
	if cfg.Lifecycle.MaxFixAge != 2*time.Minute {
		t.Fatalf("max fix age: got %v", cfg.Lifecycle.MaxFixAge)
	}
	if cfg.Offline.PollInterval != 5*time.Second {
		t.Fatalf("poll interval: got %v", cfg.Offline.PollInterval)
	}
	if cfg.Media.Backend != config.MediaLocal || cfg.Media.LocalDir == "" {
		t.Fatalf("media defaults: %+v", cfg.Media)
	}
	if cfg.Ollama.BaseURL == "" || cfg.Ollama.Timeout <= 0 || cfg.Ollama.Retries == 0 {
		t.Fatalf("ollama defaults: %+v", cfg.Ollama)
	}
	if cfg.Assistant.Model != cfg.Ollama.Model || cfg.Assistant.TemplateVersion != "v1" {
		t.Fatalf("assistant defaults: %+v", cfg.Assistant)
	}
}

func TestValidate_Rejects(t *testing.T) {
	t.Setenv("FIELDOPS_ENV", "development")

	cases := map[string]func(c *config.Config){
		"missing database":   func(c *config.Config) { c.DatabasePath = "" },
		"gcs without bucket": func(c *config.Config) { c.Media.Backend = config.MediaGCS },
		"unknown backend":    func(c *config.Config) { c.Media.Backend = "ftp" },
		"bad app version":    func(c *config.Config) { c.MinAppVersion = "not-a-version" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"FIELDOPS_ADDR", "FIELDOPS_JWT_SECRET", "FIELDOPS_DATABASE_PATH", "FIELDOPS_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error for empty path: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected Addr: got %q want %q", cfg.Addr, ":8080")
	}
	if cfg.JWTSecret != config.InsecureJWTSecret {
		t.Fatalf("unexpected JWTSecret: got %q", cfg.JWTSecret)
	}
	if cfg.DatabasePath != "fieldops.db" {
		t.Fatalf("unexpected DatabasePath: got %q", cfg.DatabasePath)
	}
	if cfg.APITimeout != 15*time.Second {
		t.Fatalf("unexpected APITimeout: got %v want %v", cfg.APITimeout, 15*time.Second)
	}
	if !cfg.Lifecycle.GPSVerification {
		t.Fatalf("gps verification should default on")
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("FIELDOPS_TIMEOUT", "45s")
	t.Setenv("FIELDOPS_GPS_VERIFICATION", "false")
	t.Setenv("FIELDOPS_MEDIA_BACKEND", "gcs")

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.APITimeout != 45*time.Second {
		t.Fatalf("timeout: got %v", cfg.APITimeout)
	}
	if cfg.Lifecycle.GPSVerification {
		t.Fatalf("gps verification should be off")
	}
	if cfg.Media.Backend != config.MediaGCS {
		t.Fatalf("backend: got %q", cfg.Media.Backend)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`addr: ":9090"
jwt_secret: "filekey"
timeout: "30s"
database_path: "test.db"
token_duration: "2h"
lifecycle:
  gps_verification: false
  radius_meters: 250
  require_acknowledgement: true
media:
  backend: gcs
  bucket: site-photos
assistant:
  model: llama3.1
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error for file: %v", err)
	}

	if cfg.Addr != ":9090" || cfg.JWTSecret != "filekey" || cfg.DatabasePath != "test.db" {
		t.Fatalf("unexpected top-level values: %+v", cfg)
	}
	if cfg.APITimeout != 30*time.Second || cfg.TokenDuration != 2*time.Hour {
		t.Fatalf("unexpected durations: %v %v", cfg.APITimeout, cfg.TokenDuration)
	}
	if cfg.Lifecycle.GPSVerification || cfg.Lifecycle.RadiusMeters != 250 || !cfg.Lifecycle.RequireAcknowledgement {
		t.Fatalf("unexpected lifecycle: %+v", cfg.Lifecycle)
	}
	if cfg.Media.Bucket != "site-photos" {
		t.Fatalf("unexpected media: %+v", cfg.Media)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfig_BadPath(t *testing.T) {
	if _, err := config.LoadConfig("/path/that/does/not/exist.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent path, got nil")
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("::: not yaml :::"), 0o600); err != nil {
		t.Fatalf("failed to write bad yaml: %v", err)
	}

	if _, err := config.LoadConfig(path); err == nil {
		t.Fatalf("expected YAML decode error, got nil")
	}
}
