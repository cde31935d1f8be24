package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultUnit is the organisational unit stamped onto submitted photos.
	DefaultUnit = "HDJV ENVI UNIT"

	// DefaultUploadTimeout bounds a single record upload. Uploads aborted at
	// this deadline are treated as ambiguous: the backend may have applied
	// the write even though the response was lost.
	DefaultUploadTimeout = 30 * time.Second

	// DefaultRequestTimeout bounds all non-upload backend calls.
	DefaultRequestTimeout = 15 * time.Second

	// DefaultRequestsPerMinute is the client-side request budget against
	// the backend.
	DefaultRequestsPerMinute = 60

	// DefaultStateDriver is the default local state database driver.
	DefaultStateDriver = "sqlite"

	// DefaultPendingPollInterval is how often the agent polls for pending
	// user approvals when running with an admin session.
	DefaultPendingPollInterval = 2 * time.Minute

	// DefaultStatusListen is the default listen address for the agent's
	// local status API.
	DefaultStatusListen = "127.0.0.1:8573"

	// envPrefix is the prefix for environment variable overrides, e.g.
	// WASTELOG_BACKEND_ENDPOINT.
	envPrefix = "WASTELOG"
)

// Config is the root configuration for wastelog.
type Config struct {
	Global  GlobalConfig   `yaml:"global" mapstructure:"global"`
	Backend BackendConfig  `yaml:"backend" mapstructure:"backend"`
	State   StateConfig    `yaml:"state" mapstructure:"state"`
	Sites   []SiteConfig   `yaml:"sites" mapstructure:"sites"`
	Agent   AgentConfig    `yaml:"agent" mapstructure:"agent"`
	Archive *ArchiveConfig `yaml:"archive,omitempty" mapstructure:"archive"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	Unit     string `yaml:"unit" mapstructure:"unit"`
}

// BackendConfig describes the remote record endpoint.
type BackendConfig struct {
	Endpoint          string        `yaml:"endpoint" mapstructure:"endpoint"`
	UploadTimeout     time.Duration `yaml:"upload_timeout" mapstructure:"upload_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// StateConfig contains local state database settings.
type StateConfig struct {
	Driver   string              `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteStateConfig   `yaml:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresStateConfig `yaml:"postgres" mapstructure:"postgres"`
}

// SQLiteStateConfig contains SQLite settings for local state.
type SQLiteStateConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresStateConfig contains PostgreSQL settings for shared state
// deployments (several kiosks submitting as one crew).
type PostgresStateConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
}

// SiteConfig describes one physical site ("package") records may be
// logged against, including its surveyed coordinates for photo stamping.
type SiteConfig struct {
	ID   string  `yaml:"id" mapstructure:"id"`
	Name string  `yaml:"name" mapstructure:"name"`
	Lat  float64 `yaml:"lat" mapstructure:"lat"`
	Lng  float64 `yaml:"lng" mapstructure:"lng"`
}

// AgentConfig contains settings for the long-running agent mode.
type AgentConfig struct {
	StatusAPI           StatusAPIConfig `yaml:"status_api" mapstructure:"status_api"`
	PendingPollInterval time.Duration   `yaml:"pending_poll_interval" mapstructure:"pending_poll_interval"`
}

// StatusAPIConfig contains settings for the agent's local status API.
type StatusAPIConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Listen         string   `yaml:"listen" mapstructure:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" mapstructure:"allowed_origins"`
}

// ArchiveConfig contains settings for the optional S3 submission archive.
type ArchiveConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	S3      S3ArchiveConfig `yaml:"s3" mapstructure:"s3"`
}

// S3ArchiveConfig contains S3 connection settings for the archive.
type S3ArchiveConfig struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style,omitempty" mapstructure:"force_path_style"`
}

// Load reads and parses a configuration file from the given path.
// Environment variables prefixed with WASTELOG_ override file values,
// e.g. WASTELOG_GLOBAL_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Global.Unit == "" {
		c.Global.Unit = DefaultUnit
	}

	if c.Backend.UploadTimeout == 0 {
		c.Backend.UploadTimeout = DefaultUploadTimeout
	}

	if c.Backend.RequestTimeout == 0 {
		c.Backend.RequestTimeout = DefaultRequestTimeout
	}

	if c.Backend.RequestsPerMinute == 0 {
		c.Backend.RequestsPerMinute = DefaultRequestsPerMinute
	}

	if c.State.Driver == "" {
		c.State.Driver = DefaultStateDriver
	}

	if c.State.SQLite.Path == "" {
		c.State.SQLite.Path = defaultStatePath()
	}

	if c.Agent.PendingPollInterval == 0 {
		c.Agent.PendingPollInterval = DefaultPendingPollInterval
	}

	if c.Agent.StatusAPI.Listen == "" {
		c.Agent.StatusAPI.Listen = DefaultStatusListen
	}
}

// defaultStatePath returns the default SQLite path under the user's home
// directory, falling back to the working directory.
func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "wastelog.db"
	}

	return filepath.Join(home, ".wastelog", "state.db")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Backend.Endpoint == "" {
		return fmt.Errorf("backend endpoint is required")
	}

	if len(c.Sites) == 0 {
		return fmt.Errorf("at least one site must be configured")
	}

	seenIDs := make(map[string]struct{}, len(c.Sites))

	for i, site := range c.Sites {
		if site.ID == "" {
			return fmt.Errorf("site %d: id is required", i)
		}

		if _, exists := seenIDs[site.ID]; exists {
			return fmt.Errorf("site %d: duplicate id %q", i, site.ID)
		}

		seenIDs[site.ID] = struct{}{}
	}

	switch c.State.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported state driver: %s", c.State.Driver)
	}

	if c.Archive != nil && c.Archive.Enabled && c.Archive.S3.Bucket == "" {
		return fmt.Errorf("archive s3 bucket is required when archive is enabled")
	}

	return nil
}

// Site returns the site configuration for the given ID.
func (c *Config) Site(id string) (*SiteConfig, bool) {
	for i := range c.Sites {
		if c.Sites[i].ID == id {
			return &c.Sites[i], true
		}
	}

	return nil, false
}
