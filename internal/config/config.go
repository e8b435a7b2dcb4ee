package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/garnizeh/fieldops/pkg/ollama"
)

// InsecureJWTSecret is the built-in secret. It is only accepted when
// FIELDOPS_ENV=development.
const InsecureJWTSecret = "supersecretkey"

type Config struct {
	Addr          string          `yaml:"addr"`
	JWTSecret     string          `yaml:"jwt_secret"`
	APITimeout    time.Duration   `yaml:"timeout"`
	DatabasePath  string          `yaml:"database_path"`
	TokenDuration time.Duration   `yaml:"token_duration"`
	MinAppVersion string          `yaml:"min_app_version"`
	Lifecycle     LifecycleConfig `yaml:"lifecycle"`
	Offline       OfflineConfig   `yaml:"offline"`
	Media         MediaConfig     `yaml:"media"`
	Tasks         TasksConfig     `yaml:"tasks"`
	Ollama        ollama.Config   `yaml:"ollama"`
	Assistant     AssistantConfig `yaml:"assistant"`
	Signin        SigninConfig    `yaml:"signin"`
}

type LifecycleConfig struct {
	GPSVerification        bool          `yaml:"gps_verification"`
	RadiusMeters           float64       `yaml:"radius_meters"`
	RequireAcknowledgement bool          `yaml:"require_acknowledgement"`
	LocationTimeout        time.Duration `yaml:"location_timeout"`
	MaxFixAge              time.Duration `yaml:"max_fix_age"`
	MinPhotos              int           `yaml:"min_photos"`
}

type OfflineConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

const (
	MediaLocal = "local"
	MediaGCS   = "gcs"
)

type MediaConfig struct {
	StagingDir      string `yaml:"staging_dir"`
	Backend         string `yaml:"backend"`
	LocalDir        string `yaml:"local_dir"`
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

type TasksConfig struct {
	Workers     int `yaml:"workers"`
	MaxAttempts int `yaml:"max_attempts"`
}

type AssistantConfig struct {
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	TemplateVersion string        `yaml:"template_version"`
	HistoryLimit    int           `yaml:"history_limit"`
}

type SigninConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	Burst         int `yaml:"burst"`
}

// LoadConfig builds the configuration from FIELDOPS_* environment variables
// (a .env file in the working directory is loaded first when present) and
// then decodes the optional YAML file over it.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Addr:          getEnv("FIELDOPS_ADDR", ":8080"),
		JWTSecret:     getEnv("FIELDOPS_JWT_SECRET", InsecureJWTSecret),
		APITimeout:    getDuration("FIELDOPS_TIMEOUT", 15*time.Second),
		DatabasePath:  getEnv("FIELDOPS_DATABASE_PATH", "fieldops.db"),
		TokenDuration: getDuration("FIELDOPS_TOKEN_DURATION", 12*time.Hour),
		MinAppVersion: getEnv("FIELDOPS_MIN_APP_VERSION", ""),
		Lifecycle: LifecycleConfig{
			GPSVerification:        getBool("FIELDOPS_GPS_VERIFICATION", true),
			RequireAcknowledgement: getBool("FIELDOPS_REQUIRE_ACKNOWLEDGEMENT", false),
			MaxFixAge:              getDuration("FIELDOPS_MAX_FIX_AGE", 0),
		},
		Media: MediaConfig{
			StagingDir: getEnv("FIELDOPS_STAGING_DIR", "data/staging"),
			Backend:    getEnv("FIELDOPS_MEDIA_BACKEND", MediaLocal),
			LocalDir:   getEnv("FIELDOPS_MEDIA_DIR", "data/photos"),
			Bucket:     getEnv("FIELDOPS_MEDIA_BUCKET", ""),
		},
		Ollama: ollama.Config{
			BaseURL: getEnv("FIELDOPS_OLLAMA_URL", ""),
		},
		Assistant: AssistantConfig{
			Model: getEnv("FIELDOPS_ASSISTANT_MODEL", ""),
		},
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate fills defaults and rejects unsafe or inconsistent settings.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = 12 * time.Hour
	}
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.JWTSecret == InsecureJWTSecret && os.Getenv("FIELDOPS_ENV") != "development" {
		return errors.New("insecure jwt_secret: set FIELDOPS_JWT_SECRET or run with FIELDOPS_ENV=development")
	}
	if c.MinAppVersion != "" {
		if _, err := semver.NewVersion(c.MinAppVersion); err != nil {
			return fmt.Errorf("min_app_version: %w", err)
		}
	}

	if c.Lifecycle.RadiusMeters <= 0 {
		c.Lifecycle.RadiusMeters = 100
	}
	if c.Lifecycle.LocationTimeout <= 0 {
		c.Lifecycle.LocationTimeout = 10 * time.Second
	}
	if c.Lifecycle.MaxFixAge <= 0 {
		c.Lifecycle.MaxFixAge = 2 * time.Minute
	}
	if c.Lifecycle.MinPhotos <= 0 {
		c.Lifecycle.MinPhotos = 3
	}

	if c.Offline.PollInterval <= 0 {
		c.Offline.PollInterval = 5 * time.Second
	}
	if c.Offline.ProbeTimeout <= 0 {
		c.Offline.ProbeTimeout = 2 * time.Second
	}

	if c.Media.StagingDir == "" {
		c.Media.StagingDir = "data/staging"
	}
	switch c.Media.Backend {
	case "", MediaLocal:
		c.Media.Backend = MediaLocal
		if c.Media.LocalDir == "" {
			c.Media.LocalDir = "data/photos"
		}
	case MediaGCS:
		if c.Media.Bucket == "" {
			return errors.New("media.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown media.backend %q", c.Media.Backend)
	}

	if c.Tasks.Workers <= 0 {
		c.Tasks.Workers = 2
	}
	if c.Tasks.MaxAttempts <= 0 {
		c.Tasks.MaxAttempts = 5
	}

	c.Ollama = c.Ollama.WithDefaults()
	if c.Assistant.Model == "" {
		c.Assistant.Model = c.Ollama.Model
	}
	if c.Assistant.Timeout <= 0 {
		c.Assistant.Timeout = 30 * time.Second
	}
	if c.Assistant.TemplateVersion == "" {
		c.Assistant.TemplateVersion = "v1"
	}
	if c.Assistant.HistoryLimit <= 0 {
		c.Assistant.HistoryLimit = 10
	}

	if c.Signin.RatePerMinute <= 0 {
		c.Signin.RatePerMinute = 10
	}
	if c.Signin.Burst <= 0 {
		c.Signin.Burst = 5
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
