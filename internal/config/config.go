// Package config resolves daemon configuration from defaults, an optional
// workshop.yaml, WORKSHOP_* environment variables and command flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is prepended to every environment override.
	EnvPrefix = "WORKSHOP"

	// FileName is the config file looked up in the data directory.
	FileName = "workshop"

	// DefaultModel is the language model used for insights.
	DefaultModel = "claude-haiku-4-5-20251001"
)

// Config is the fully resolved daemon configuration. It is built once at
// startup and never mutated afterwards.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	Web       WebConfig       `mapstructure:"web"`
	Log       LogConfig       `mapstructure:"log"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	KV        KVConfig        `mapstructure:"kv"`
	Cloud     CloudConfig     `mapstructure:"cloud"`
	Sync      SyncConfig      `mapstructure:"sync"`
	NetStatus NetStatusConfig `mapstructure:"netstatus"`
	Inbox     InboxConfig     `mapstructure:"inbox"`
}

// WebConfig configures the HTTP listener.
type WebConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures the console and file loggers.
type LogConfig struct {
	Level         string `mapstructure:"level"`
	MaxFiles      int    `mapstructure:"max_files"`
	MaxFileSizeMB int    `mapstructure:"max_file_size_mb"`
}

// SummaryConfig configures insight generation and caching.
type SummaryConfig struct {
	// APIKey enables the in-process model call.
	APIKey string `mapstructure:"api_key"`

	Model string `mapstructure:"model"`

	// Endpoint, when set, sends summary requests to another daemon's
	// /api/summary instead of calling the model in-process.
	Endpoint string `mapstructure:"endpoint"`

	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// KVConfig configures the local key-value store.
type KVConfig struct {
	QuotaBytes int64 `mapstructure:"quota_bytes"`
}

// CloudConfig configures the remote sync backend and, optionally, hosting
// one.
type CloudConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`

	Serve      bool   `mapstructure:"serve"`
	ServeToken string `mapstructure:"serve_token"`
}

// SyncConfig configures the cloud sync coordinator.
type SyncConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// NetStatusConfig configures the connectivity probe.
type NetStatusConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

// InboxConfig configures the answer file watcher.
type InboxConfig struct {
	Dir string `mapstructure:"dir"`
}

// IsRemoteSummaryConfigured reports whether insights can be generated at
// all.
func (c *Config) IsRemoteSummaryConfigured() bool {
	return c.Summary.APIKey != "" || c.Summary.Endpoint != ""
}

// IsRemoteSyncConfigured reports whether a cloud backend is reachable in
// principle. Hosting one locally counts.
func (c *Config) IsRemoteSyncConfigured() bool {
	return (c.Cloud.URL != "" && c.Cloud.Token != "") || c.Cloud.Serve
}

// DBPath is the SQLite file backing local state.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "workshop.db")
}

// LogDir is where the rotating log file lives.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("data_dir", filepath.Join(home, ".workshop"))
	v.SetDefault("web.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_files", 10)
	v.SetDefault("log.max_file_size_mb", 20)
	v.SetDefault("summary.api_key", "")
	v.SetDefault("summary.model", DefaultModel)
	v.SetDefault("summary.endpoint", "")
	v.SetDefault("summary.cache_ttl", 24*time.Hour)
	v.SetDefault("summary.max_concurrent", 3)
	v.SetDefault("summary.timeout", 60*time.Second)
	v.SetDefault("kv.quota_bytes", int64(5<<20))
	v.SetDefault("cloud.url", "")
	v.SetDefault("cloud.token", "")
	v.SetDefault("cloud.serve", false)
	v.SetDefault("cloud.serve_token", "")
	v.SetDefault("sync.debounce", 5*time.Second)
	v.SetDefault("netstatus.probe_interval", 15*time.Second)
	v.SetDefault("netstatus.probe_timeout", 3*time.Second)
	v.SetDefault("inbox.dir", "")
}

// New returns a viper instance with defaults and environment binding in
// place. Flags can be bound onto it before Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The SDK's conventional variable also works.
	_ = v.BindEnv("summary.api_key", "WORKSHOP_SUMMARY_API_KEY",
		"ANTHROPIC_API_KEY")

	return v
}

// BindFlags binds the flags in fs whose names match config keys, with
// dashes standing in for dots (e.g. --web-addr for web.addr).
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", ".")
		if !isKnownKey(v, key) {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		if !isKnownKey(v, key) {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, err)
		}
	})

	return errors.Join(errs...)
}

func isKnownKey(v *viper.Viper, key string) bool {
	for _, k := range v.AllKeys() {
		if k == key {
			return true
		}
	}

	return false
}

// Load reads the optional config file and decodes everything into a
// Config. An explicit path that does not exist is an error; a missing
// default file is not.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(v.GetString("data_dir"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.New("data_dir must be set")
	case c.Summary.MaxConcurrent < 1:
		return fmt.Errorf("summary.max_concurrent must be positive, "+
			"got %d", c.Summary.MaxConcurrent)
	case c.Sync.Debounce <= 0:
		return fmt.Errorf("sync.debounce must be positive, got %v",
			c.Sync.Debounce)
	case c.Summary.CacheTTL <= 0:
		return fmt.Errorf("summary.cache_ttl must be positive, got %v",
			c.Summary.CacheTTL)
	case (c.Cloud.URL == "") != (c.Cloud.Token == ""):
		return errors.New("cloud.url and cloud.token must be set " +
			"together")
	case c.Cloud.Serve && c.Cloud.ServeToken == "":
		return errors.New("cloud.serve requires cloud.serve_token")
	}

	return nil
}
