package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/loykin/vmixpanel/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. VMIXPANEL_SERVER_PORT.
const EnvPrefix = "VMIXPANEL"

// PortEnv selects the listening port; VMIXPANEL_SERVER_PORT takes precedence.
const PortEnv = "PORT"

// Config represents the top-level TOML structure.
type Config struct {
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Storage  StorageConfig  `toml:"storage" mapstructure:"storage"`
	Instance InstanceConfig `toml:"instance" mapstructure:"instance"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
}

type ServerConfig struct {
	Host          string        `toml:"host" mapstructure:"host"`
	Port          int           `toml:"port" mapstructure:"port"`
	PublicDir     string        `toml:"public_dir" mapstructure:"public_dir"`
	DataDir       string        `toml:"data_dir" mapstructure:"data_dir"`
	BodyLimit     string        `toml:"body_limit" mapstructure:"body_limit"`
	ShutdownDelay time.Duration `toml:"shutdown_delay" mapstructure:"shutdown_delay"`
}

type StorageConfig struct {
	MaxRetries      int           `toml:"max_retries" mapstructure:"max_retries"`
	RetryDelay      time.Duration `toml:"retry_delay" mapstructure:"retry_delay"`
	Atomic          bool          `toml:"atomic" mapstructure:"atomic"`
	LockPerResource bool          `toml:"lock_per_resource" mapstructure:"lock_per_resource"`
}

type InstanceConfig struct {
	Interactive     bool          `toml:"interactive" mapstructure:"interactive"`
	SettleDelay     time.Duration `toml:"settle_delay" mapstructure:"settle_delay"`
	ReprobeAttempts int           `toml:"reprobe_attempts" mapstructure:"reprobe_attempts"`
	ReprobeInterval time.Duration `toml:"reprobe_interval" mapstructure:"reprobe_interval"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Path    string `toml:"path" mapstructure:"path"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 5173)
	v.SetDefault("server.public_dir", ".")
	v.SetDefault("server.data_dir", "JSONs")
	v.SetDefault("server.body_limit", "1MiB")
	v.SetDefault("server.shutdown_delay", "500ms")

	v.SetDefault("storage.max_retries", 3)
	v.SetDefault("storage.retry_delay", "100ms")
	v.SetDefault("storage.atomic", true)
	v.SetDefault("storage.lock_per_resource", true)

	v.SetDefault("instance.interactive", true)
	v.SetDefault("instance.settle_delay", "2s")
	v.SetDefault("instance.reprobe_attempts", 5)
	v.SetDefault("instance.reprobe_interval", "200ms")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", "sqlite://history.db")
}

// Default returns the configuration used when no file or environment is given.
func Default() *Config {
	cfg, err := load(viper.New(), "")
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfig reads an optional TOML file and applies environment overrides.
// Precedence: environment, then file, then defaults. PORT is honored for
// server.port, VMIXPANEL_SERVER_PORT wins over it.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", PortEnv); err != nil {
		return nil, err
	}
	return load(v, path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(filepath.Clean(path))
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
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

// Validate checks ranges and formats that decoding cannot catch.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range 1..65535", c.Server.Port))
	}
	if c.Server.DataDir == "" {
		errs = append(errs, errors.New("server.data_dir required"))
	}
	if _, err := c.Server.BodyLimitBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.ShutdownDelay < 0 {
		errs = append(errs, errors.New("server.shutdown_delay must not be negative"))
	}
	if c.Storage.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("storage.max_retries must be >= 1, got %d", c.Storage.MaxRetries))
	}
	if c.Storage.RetryDelay < 0 {
		errs = append(errs, errors.New("storage.retry_delay must not be negative"))
	}
	if c.Instance.SettleDelay < 0 || c.Instance.ReprobeInterval < 0 {
		errs = append(errs, errors.New("instance delays must not be negative"))
	}
	if c.Instance.ReprobeAttempts < 0 {
		errs = append(errs, errors.New("instance.reprobe_attempts must not be negative"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path))
	}
	if c.History.Enabled && c.History.DSN == "" {
		errs = append(errs, errors.New("history.dsn required when history is enabled"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address, e.g. ":5173".
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DataPath resolves DataDir against PublicDir unless it is absolute.
func (s ServerConfig) DataPath() string {
	if filepath.IsAbs(s.DataDir) {
		return filepath.Clean(s.DataDir)
	}
	return filepath.Join(s.PublicDir, s.DataDir)
}

// BodyLimitBytes parses BodyLimit, e.g. "1MiB" or "512KiB".
func (s ServerConfig) BodyLimitBytes() (int64, error) {
	n, err := humanize.ParseBytes(s.BodyLimit)
	if err != nil {
		return 0, fmt.Errorf("server.body_limit %q: %w", s.BodyLimit, err)
	}
	if n == 0 || n > 1<<40 {
		return 0, fmt.Errorf("server.body_limit %q out of range", s.BodyLimit)
	}
	return int64(n), nil
}

// Logger converts the log section to a logger.Config.
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:      l.Level,
		Format:     l.Format,
		Color:      l.Color,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

// LoadEnvFile parses a simple .env file and exports every KEY=VALUE that is
// not already set in the process environment. Lines starting with # are ignored.
func LoadEnvFile(path string) error {
	m, err := loadEnvFile(path)
	if err != nil {
		return err
	}
	for k, v := range m {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

// loadEnvFile parses KEY=VALUE lines (no export, no quotes).
func loadEnvFile(path string) (map[string]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			if k != "" {
				m[k] = v
			}
		}
	}
	return m, nil
}
