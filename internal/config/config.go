// Package config provides YAML and environment based configuration for modelyard.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath             = "modelyard.yaml"
	DefaultDBPath           = "data/modelyard.db"
	DefaultArtifactsDir     = "artifacts"
	DefaultCurrentModelPath = "artifacts/models/current.json"
	DefaultModelName        = "default"
)

// Config is the top-level modelyard configuration.
type Config struct {
	Store            StoreConfig  `yaml:"store"`
	ArtifactsDir     string       `yaml:"artifacts_dir"`
	CurrentModelPath string       `yaml:"current_model_path"`
	ModelName        string       `yaml:"model_name"`
	Server           ServerConfig `yaml:"server"`
	Log              LogConfig    `yaml:"log"`
	Index            IndexConfig  `yaml:"index"`
	Notify           NotifyConfig `yaml:"notify"`
}

// StoreConfig selects the run store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite (default) or mysql
	Path   string `yaml:"path"`   // sqlite database file
	DSN    string `yaml:"dsn"`    // mysql data source name
}

// ServerConfig holds the serving endpoint bind address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
	File   string `yaml:"file"`   // optional rotating log file
}

// IndexConfig controls the manifest pointer index.
type IndexConfig struct {
	// ReconcileSchedule is a cron expression; when set, `yard serve`
	// periodically rebuilds missing pointers from the run store.
	ReconcileSchedule string `yaml:"reconcile_schedule"`
}

// NotifyConfig holds optional promotion notification targets.
type NotifyConfig struct {
	Slack   ChannelConfig `yaml:"slack"`
	Discord ChannelConfig `yaml:"discord"`
}

// ChannelConfig is a bot token plus the channel to post to.
type ChannelConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// Enabled reports whether both token and channel are set.
func (c ChannelConfig) Enabled() bool {
	return c.Token != "" && c.ChannelID != ""
}

// Load reads .env (if present), the YAML file at path (a missing file yields
// defaults), applies environment overrides and creates the directories the
// configured paths live in.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := parse(data, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse unmarshals YAML bytes into a validated Config, ignoring the process
// environment.
func Parse(data []byte) (*Config, error) {
	return parse(data, func(string) (string, bool) { return "", false })
}

func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with MODELYARD_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("MODELYARD_DB_DRIVER", &c.Store.Driver)
	str("MODELYARD_DB", &c.Store.Path)
	str("MODELYARD_DB_DSN", &c.Store.DSN)
	str("MODELYARD_ARTIFACTS", &c.ArtifactsDir)
	str("MODELYARD_CURRENT_MODEL", &c.CurrentModelPath)
	str("MODELYARD_MODEL_NAME", &c.ModelName)
	str("MODELYARD_HOST", &c.Server.Host)
	str("MODELYARD_LOG_LEVEL", &c.Log.Level)
	str("MODELYARD_LOG_FORMAT", &c.Log.Format)
	str("MODELYARD_LOG_FILE", &c.Log.File)
	str("MODELYARD_RECONCILE", &c.Index.ReconcileSchedule)
	str("MODELYARD_SLACK_TOKEN", &c.Notify.Slack.Token)
	str("MODELYARD_SLACK_CHANNEL", &c.Notify.Slack.ChannelID)
	str("MODELYARD_DISCORD_TOKEN", &c.Notify.Discord.Token)
	str("MODELYARD_DISCORD_CHANNEL", &c.Notify.Discord.ChannelID)

	if v, ok := lookup("MODELYARD_PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: MODELYARD_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		c.Store.Path = DefaultDBPath
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = DefaultArtifactsDir
	}
	if c.CurrentModelPath == "" {
		c.CurrentModelPath = DefaultCurrentModelPath
	}
	if c.ModelName == "" {
		c.ModelName = DefaultModelName
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Store.Driver {
	case "sqlite":
	case "mysql":
		if c.Store.DSN == "" {
			errs = append(errs, "store.dsn is required for the mysql driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (sqlite, mysql)", c.Store.Driver))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("log.format %q must be console or json", c.Log.Format))
	}
	if !ValidModelName(c.ModelName) {
		errs = append(errs, fmt.Sprintf("model_name %q is not a valid name", c.ModelName))
	}
	if c.Index.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.Index.ReconcileSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("index.reconcile_schedule: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EnsureDirs creates the parent directory of the database file, the
// artifacts directory and the parent directory of the current model path.
func (c *Config) EnsureDirs() error {
	dirs := []string{c.ArtifactsDir, filepath.Dir(c.CurrentModelPath)}
	if c.Store.Driver == "sqlite" && c.Store.Path != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", d, err)
		}
	}
	return nil
}

// CurrentModelPathFor returns the canonical on-disk location of the current
// model for name. The configured default name maps to CurrentModelPath;
// other names live in a subdirectory next to it.
func (c *Config) CurrentModelPathFor(name string) string {
	if name == "" || name == c.ModelName {
		return c.CurrentModelPath
	}
	return filepath.Join(filepath.Dir(c.CurrentModelPath), name, "current"+filepath.Ext(c.CurrentModelPath))
}

// ValidModelName reports whether name can be used as a single path
// element under the models directory.
func ValidModelName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// Addr returns host:port for the serving endpoint.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
