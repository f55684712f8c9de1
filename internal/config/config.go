// Package config loads ResaleTally configuration.
//
// Precedence, lowest first: built-in defaults, the YAML config file, a .env
// file, then RESALE_* environment variables. SUPABASE_URL and
// SUPABASE_ANON_KEY are accepted for the PostgREST backend.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "RESALE"

	// FileName is the config file name searched for without --config.
	FileName = "resaletally"

	defaultDirName = ".resaletally"
)

// Remote backends.
const (
	BackendMemory    = "memory"
	BackendPostgREST = "postgrest"
	BackendPostgres  = "postgres"
	BackendS3        = "s3"
)

// Config is the root configuration structure.
type Config struct {
	DataDir    string       `mapstructure:"data_dir" yaml:"data_dir"`
	ListenAddr string       `mapstructure:"listen_addr" yaml:"listen_addr"`
	Log        LogConfig    `mapstructure:"log" yaml:"log"`
	Remote     RemoteConfig `mapstructure:"remote" yaml:"remote"`
	Sync       SyncConfig   `mapstructure:"sync" yaml:"sync"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// RemoteConfig selects and configures the remote document store.
type RemoteConfig struct {
	Backend   string          `mapstructure:"backend" yaml:"backend"`
	Table     string          `mapstructure:"table" yaml:"table"`
	PostgREST PostgRESTConfig `mapstructure:"postgrest" yaml:"postgrest"`
	Postgres  PostgresConfig  `mapstructure:"postgres" yaml:"postgres"`
	S3        S3Config        `mapstructure:"s3" yaml:"s3"`
}

// PostgRESTConfig contains Supabase settings.
type PostgRESTConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// PostgresConfig contains direct PostgreSQL settings.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// S3Config contains object storage settings.
type S3Config struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	AccountID string `mapstructure:"account_id" yaml:"account_id"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
}

// SyncConfig contains scheduler and client settings.
type SyncConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	DebounceDelay    time.Duration `mapstructure:"debounce_delay" yaml:"debounce_delay"`
	PeriodicInterval time.Duration `mapstructure:"periodic_interval" yaml:"periodic_interval"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	MaxRetries       int           `mapstructure:"max_retries" yaml:"max_retries"`
	QueueMaxSize     int           `mapstructure:"queue_max_size" yaml:"queue_max_size"`
	TriggerWindow    time.Duration `mapstructure:"trigger_window" yaml:"trigger_window"`
	ProbeInterval    time.Duration `mapstructure:"probe_interval" yaml:"probe_interval"`
	BackupKeep       int           `mapstructure:"backup_keep" yaml:"backup_keep"`
}

// Options controls where Load looks for files.
type Options struct {
	ConfigFile string // Explicit config file; must exist when set
	EnvFile    string // Explicit .env file; must exist when set
	SearchDirs []string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:    filepath.Join(homeDir(), defaultDirName),
		ListenAddr: "127.0.0.1:8717",
		Log: LogConfig{
			Level: "INFO",
		},
		Remote: RemoteConfig{
			Backend: BackendMemory,
			Table:   "user_data",
			S3: S3Config{
				Provider: "minio",
				UseSSL:   true,
				Prefix:   "user_data/",
			},
		},
		Sync: SyncConfig{
			Enabled:          true,
			DebounceDelay:    3 * time.Second,
			PeriodicInterval: 30 * time.Minute,
			RetryBaseDelay:   2 * time.Second,
			MaxRetries:       3,
			QueueMaxSize:     100,
			TriggerWindow:    5 * time.Second,
			BackupKeep:       5,
		},
	}
}

// Load reads configuration with the precedence described in the package doc.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("remote.postgrest.url", EnvPrefix+"_REMOTE_POSTGREST_URL", "SUPABASE_URL")
	_ = v.BindEnv("remote.postgrest.api_key", EnvPrefix+"_REMOTE_POSTGREST_API_KEY", "SUPABASE_ANON_KEY")

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		dirs := opts.SearchDirs
		if len(dirs) == 0 {
			dirs = []string{".", filepath.Join(homeDir(), defaultDirName)}
		}
		for _, dir := range dirs {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Log.File = expandHome(cfg.Log.File)
	cfg.Remote.Backend = strings.ToLower(strings.TrimSpace(cfg.Remote.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("listen_addr", d.ListenAddr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)

	v.SetDefault("remote.backend", d.Remote.Backend)
	v.SetDefault("remote.table", d.Remote.Table)
	v.SetDefault("remote.postgrest.url", d.Remote.PostgREST.URL)
	v.SetDefault("remote.postgrest.api_key", d.Remote.PostgREST.APIKey)
	v.SetDefault("remote.postgres.dsn", d.Remote.Postgres.DSN)
	v.SetDefault("remote.s3.provider", d.Remote.S3.Provider)
	v.SetDefault("remote.s3.endpoint", d.Remote.S3.Endpoint)
	v.SetDefault("remote.s3.region", d.Remote.S3.Region)
	v.SetDefault("remote.s3.bucket", d.Remote.S3.Bucket)
	v.SetDefault("remote.s3.access_key", d.Remote.S3.AccessKey)
	v.SetDefault("remote.s3.secret_key", d.Remote.S3.SecretKey)
	v.SetDefault("remote.s3.account_id", d.Remote.S3.AccountID)
	v.SetDefault("remote.s3.use_ssl", d.Remote.S3.UseSSL)
	v.SetDefault("remote.s3.prefix", d.Remote.S3.Prefix)

	v.SetDefault("sync.enabled", d.Sync.Enabled)
	v.SetDefault("sync.debounce_delay", d.Sync.DebounceDelay)
	v.SetDefault("sync.periodic_interval", d.Sync.PeriodicInterval)
	v.SetDefault("sync.retry_base_delay", d.Sync.RetryBaseDelay)
	v.SetDefault("sync.max_retries", d.Sync.MaxRetries)
	v.SetDefault("sync.queue_max_size", d.Sync.QueueMaxSize)
	v.SetDefault("sync.trigger_window", d.Sync.TriggerWindow)
	v.SetDefault("sync.probe_interval", d.Sync.ProbeInterval)
	v.SetDefault("sync.backup_keep", d.Sync.BackupKeep)
}

// Validate checks value ranges and backend credentials.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}

	switch c.Remote.Backend {
	case BackendMemory:
	case BackendPostgREST:
		if c.Remote.PostgREST.URL == "" || c.Remote.PostgREST.APIKey == "" {
			return errors.New("remote.postgrest.url and remote.postgrest.api_key are required (or SUPABASE_URL and SUPABASE_ANON_KEY)")
		}
	case BackendPostgres:
		if c.Remote.Postgres.DSN == "" {
			return errors.New("remote.postgres.dsn is required")
		}
	case BackendS3:
		if c.Remote.S3.Bucket == "" {
			return errors.New("remote.s3.bucket is required")
		}
		if c.Remote.S3.AccessKey == "" || c.Remote.S3.SecretKey == "" {
			return errors.New("remote.s3.access_key and remote.s3.secret_key are required")
		}
	default:
		return fmt.Errorf("unknown remote.backend %q", c.Remote.Backend)
	}

	if c.Sync.DebounceDelay <= 0 {
		return fmt.Errorf("sync.debounce_delay must be positive, got %s", c.Sync.DebounceDelay)
	}
	if c.Sync.PeriodicInterval <= 0 {
		return fmt.Errorf("sync.periodic_interval must be positive, got %s", c.Sync.PeriodicInterval)
	}
	if c.Sync.RetryBaseDelay < 0 {
		return fmt.Errorf("sync.retry_base_delay cannot be negative, got %s", c.Sync.RetryBaseDelay)
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries cannot be negative, got %d", c.Sync.MaxRetries)
	}
	if c.Sync.QueueMaxSize <= 0 {
		return fmt.Errorf("sync.queue_max_size must be positive, got %d", c.Sync.QueueMaxSize)
	}
	if c.Sync.ProbeInterval < 0 {
		return fmt.Errorf("sync.probe_interval cannot be negative, got %s", c.Sync.ProbeInterval)
	}
	return nil
}

// WriteFile writes cfg as YAML to path. An existing file is only replaced
// when force is set.
func WriteFile(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// DefaultPath returns the config file path under the user's home.
func DefaultPath() string {
	return filepath.Join(homeDir(), defaultDirName, FileName+".yaml")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
