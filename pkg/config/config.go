// Package config loads the deployment configuration of the transcripts
// service: which log backends are active, where they live, and the limits
// applied to uploaded files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Mode selects which log backends serve requests.
type Mode string

const (
	// ModeLocal serves only the local filesystem tree
	ModeLocal Mode = "local"
	// ModeCloud serves only uploaded files held in object storage
	ModeCloud Mode = "cloud"
	// ModeHybrid serves both, local projects first
	ModeHybrid Mode = "hybrid"
)

// Remote backends understood by blob.Open.
const (
	BackendGCS        = "gcs"
	BackendFilesystem = "filesystem"
	BackendMemory     = "memory"
)

// Environment variables that override file configuration.
const (
	EnvMode      = "TRANSCRIPTS_MODE"
	EnvLocalRoot = "TRANSCRIPTS_LOCAL_ROOT"
	EnvBucket    = "TRANSCRIPTS_BUCKET"
	EnvProject   = "TRANSCRIPTS_GCP_PROJECT"
	EnvAddr      = "TRANSCRIPTS_ADDR"
)

// Config is the complete service configuration.
type Config struct {
	Mode    Mode          `yaml:"mode" json:"mode"`
	Local   LocalConfig   `yaml:"local" json:"local"`
	Remote  RemoteConfig  `yaml:"remote" json:"remote"`
	Uploads UploadConfig  `yaml:"uploads" json:"uploads"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// LocalConfig locates the local project tree.
type LocalConfig struct {
	// Root holds one directory per project. "~" is expanded.
	Root string `yaml:"root" json:"root"`
	// Ignore lists glob patterns of project directory names to hide.
	Ignore []string `yaml:"ignore" json:"ignore"`
}

// RemoteConfig describes the object storage holding uploaded files.
type RemoteConfig struct {
	Backend         string `yaml:"backend" json:"backend"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	ProjectID       string `yaml:"project_id" json:"project_id"`
	Location        string `yaml:"location" json:"location"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// Root is the directory used by the filesystem backend.
	Root string `yaml:"root" json:"root"`
}

// UploadConfig bounds uploaded files and their lifetime.
type UploadConfig struct {
	MaxSize       ByteSize      `yaml:"max_size" json:"max_size"`
	Retention     time.Duration `yaml:"retention" json:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string `yaml:"addr" json:"addr"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
	CookieSecure   bool   `yaml:"cookie_secure" json:"cookie_secure"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	Dir   string `yaml:"dir" json:"dir"`
}

// ByteSize is a size in bytes that accepts human strings ("50MB", "16 MiB") in YAML.
type ByteSize int64

// UnmarshalYAML parses either an integer or a humanized size.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	n, err := humanize.ParseBytes(value.Value)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", value.Value, err)
	}
	*b = ByteSize(n)
	return nil
}

// String renders the size for humans, e.g. "50 MB".
func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d B", int64(b))
	}
	return humanize.Bytes(uint64(b))
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Mode: ModeLocal,
		Local: LocalConfig{
			Root: filepath.Join("~", ".claude", "projects"),
		},
		Remote: RemoteConfig{
			Backend: BackendGCS,
		},
		Uploads: UploadConfig{
			MaxSize:       50 * 1000 * 1000,
			Retention:     24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Server: ServerConfig{
			Addr:           ":5000",
			MaxConnections: 256,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides, expands "~" and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from the environment using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvMode); ok && v != "" {
		c.Mode = Mode(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup(EnvLocalRoot); ok && v != "" {
		c.Local.Root = v
	}
	if v, ok := lookup(EnvBucket); ok && v != "" {
		c.Remote.Bucket = v
	}
	if v, ok := lookup(EnvProject); ok && v != "" {
		c.Remote.ProjectID = v
	}
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Addr = v
	}
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Local.Root, &c.Remote.Root, &c.Logging.Dir} {
		expanded, err := expandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand ~: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}

// Validate validates the configuration. An incomplete remote section is not
// an error: the service starts and reports "storage not configured" on upload.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLocal, ModeCloud, ModeHybrid:
	default:
		return fmt.Errorf("invalid mode: %s (must be 'local', 'cloud' or 'hybrid')", c.Mode)
	}

	if c.UsesLocal() && c.Local.Root == "" {
		return fmt.Errorf("local.root is required in %s mode", c.Mode)
	}

	if c.UsesRemote() {
		switch c.Remote.Backend {
		case BackendGCS, BackendFilesystem, BackendMemory:
		default:
			return fmt.Errorf("invalid remote.backend: %q (must be 'gcs', 'filesystem' or 'memory')", c.Remote.Backend)
		}
	}

	if c.Uploads.MaxSize <= 0 {
		return fmt.Errorf("uploads.max_size must be positive")
	}
	if c.Uploads.Retention <= 0 {
		return fmt.Errorf("uploads.retention must be positive")
	}
	if c.Uploads.SweepInterval < 0 {
		return fmt.Errorf("uploads.sweep_interval cannot be negative")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections cannot be negative")
	}

	return nil
}

// UsesLocal reports whether the local backend is active.
func (c *Config) UsesLocal() bool {
	return c.Mode == ModeLocal || c.Mode == ModeHybrid
}

// UsesRemote reports whether the remote backend is active.
func (c *Config) UsesRemote() bool {
	return c.Mode == ModeCloud || c.Mode == ModeHybrid
}

// RemoteConfigured reports whether enough remote settings exist to open a bucket.
func (c *Config) RemoteConfigured() bool {
	switch c.Remote.Backend {
	case BackendGCS:
		return c.Remote.Bucket != ""
	case BackendFilesystem:
		return c.Remote.Root != ""
	case BackendMemory:
		return true
	default:
		return false
	}
}

// Info is the introspection record served by the API.
type Info struct {
	Mode                 Mode    `json:"mode"`
	MaxUploadSize        int64   `json:"max_upload_size"`
	MaxUploadSizeDisplay string  `json:"max_upload_size_display"`
	RetentionHours       float64 `json:"retention_hours"`
}

// Info returns the current mode and upload limits.
func (c *Config) Info() Info {
	return Info{
		Mode:                 c.Mode,
		MaxUploadSize:        int64(c.Uploads.MaxSize),
		MaxUploadSizeDisplay: c.Uploads.MaxSize.String(),
		RetentionHours:       c.Uploads.Retention.Hours(),
	}
}
