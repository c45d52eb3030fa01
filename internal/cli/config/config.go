package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/entitycore/internal/orm/session"
	"github.com/conduit-lang/entitycore/internal/orm/validation"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "ENTITYCORE"

// Snapshot store kinds
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config represents the entitycore configuration
type Config struct {
	Model      ModelConfig      `mapstructure:"model"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Validation ValidationConfig `mapstructure:"validation"`
	Session    SessionConfig    `mapstructure:"session"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
}

// ModelConfig locates the model document
type ModelConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

// LoggingConfig represents logger configuration
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Development bool   `mapstructure:"development"`
}

// ValidationConfig represents model validation configuration. An entry of
// "all" escalates every warning.
type ValidationConfig struct {
	WarningsAsErrors []string `mapstructure:"warnings_as_errors"`
}

// SessionConfig represents unit of work configuration
type SessionConfig struct {
	SensitiveDataLogging bool          `mapstructure:"sensitive_data_logging"`
	AutoDetectChanges    bool          `mapstructure:"auto_detect_changes"`
	SaveTimeout          time.Duration `mapstructure:"save_timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryBackoff         time.Duration `mapstructure:"retry_backoff"`
}

// SnapshotConfig selects where precomputed models are kept
type SnapshotConfig struct {
	Store string      `mapstructure:"store"`
	Dir   string      `mapstructure:"dir"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig represents the Redis snapshot store configuration
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// Load reads entitycore.yaml (or the file at path when given), environment
// variables prefixed with ENTITYCORE_, and defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("entitycore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.name", "model")
	v.SetDefault("model.path", "model.yaml")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.development", false)
	v.SetDefault("validation.warnings_as_errors", []string{})
	v.SetDefault("session.sensitive_data_logging", false)
	v.SetDefault("session.auto_detect_changes", true)
	v.SetDefault("session.save_timeout", 30*time.Second)
	v.SetDefault("session.max_retries", session.DefaultMaxRetries)
	v.SetDefault("session.retry_backoff", session.DefaultBaseBackoff)
	v.SetDefault("snapshot.store", StoreFile)
	v.SetDefault("snapshot.dir", filepath.Join(".entitycore", "snapshots"))
	v.SetDefault("snapshot.redis.addr", "localhost:6379")
	v.SetDefault("snapshot.redis.db", 0)
	v.SetDefault("snapshot.redis.key_prefix", "entitycore:snapshot:")
	v.SetDefault("snapshot.redis.ttl", time.Duration(0))
}

// Warnings converts the configured warning names for the validator.
// escalateAll is true when every warning is escalated.
func (c ValidationConfig) Warnings() (ids []validation.WarningID, escalateAll bool) {
	for _, name := range c.WarningsAsErrors {
		if name == "all" {
			return nil, true
		}
		ids = append(ids, validation.WarningID(name))
	}
	return ids, false
}

// ValidatorOptions returns the validator options selected by the configuration
func (c ValidationConfig) ValidatorOptions() []validation.Option {
	ids, all := c.Warnings()
	if all {
		return []validation.Option{validation.WithWarningsAsErrors()}
	}
	if len(ids) == 0 {
		return nil
	}
	return []validation.Option{validation.WithWarningsAsErrors(ids...)}
}

// Retry returns the session retry policy
func (c SessionConfig) Retry() session.RetryConfig {
	return session.RetryConfig{MaxRetries: c.MaxRetries, BaseBackoff: c.RetryBackoff}
}

// FindConfigFile walks up from the working directory looking for entitycore.yaml
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range []string{"entitycore.yaml", "entitycore.yml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no entitycore.yaml found")
		}
		dir = parent
	}
}

var knownWarnings = map[string]bool{
	string(validation.WarningRedundantIndex):           true,
	string(validation.WarningMaxLengthIgnored):         true,
	string(validation.WarningUnnecessaryDiscriminator): true,
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got: %s", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got: %s", cfg.Logging.Format)
	}
	for _, name := range cfg.Validation.WarningsAsErrors {
		if name != "all" && !knownWarnings[name] {
			return fmt.Errorf("validation.warnings_as_errors: unknown warning %s", name)
		}
	}
	if cfg.Session.SaveTimeout < 0 {
		return fmt.Errorf("session.save_timeout must not be negative, got: %v", cfg.Session.SaveTimeout)
	}
	if cfg.Session.MaxRetries < 0 {
		return fmt.Errorf("session.max_retries must not be negative, got: %d", cfg.Session.MaxRetries)
	}
	switch cfg.Snapshot.Store {
	case StoreFile:
		if cfg.Snapshot.Dir == "" {
			return fmt.Errorf("snapshot.dir is required for the file store")
		}
	case StoreRedis:
		if cfg.Snapshot.Redis.Addr == "" {
			return fmt.Errorf("snapshot.redis.addr is required for the redis store")
		}
	default:
		return fmt.Errorf("snapshot.store must be file or redis, got: %s", cfg.Snapshot.Store)
	}
	return nil
}
