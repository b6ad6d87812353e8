package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "EXTLOAD"

// Config holds all configuration for extload.
type Config struct {
	// Log configures the logger.
	Log LogConfig `mapstructure:"log" json:"log" yaml:"log" toml:"log"`
	// Extensions configures discovery and loading.
	Extensions ExtensionsConfig `mapstructure:"extensions" json:"extensions" yaml:"extensions" toml:"extensions"`
	// Host describes the process extensions are loaded into.
	Host HostConfig `mapstructure:"host" json:"host" yaml:"host" toml:"host"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" default:"info" json:"level" yaml:"level" toml:"level"`
	// Format is json, console, or auto (console on a terminal).
	Format string `mapstructure:"format" default:"auto" json:"format" yaml:"format" toml:"format"`
}

// ExtensionsConfig configures extension discovery and loading.
type ExtensionsConfig struct {
	// Paths are directories searched for extensions, in priority order.
	Paths []string `mapstructure:"paths" json:"paths" yaml:"paths" toml:"paths"`
	// Main is the main module id used when an extension declares none.
	Main string `mapstructure:"main" default:"main" json:"main" yaml:"main" toml:"main"`
	// InitTimeout bounds each init hook.
	InitTimeout time.Duration `mapstructure:"init_timeout" default:"10s" json:"init_timeout" yaml:"init_timeout" toml:"init_timeout"`
	// Concurrency bounds how many extensions load at once.
	Concurrency int `mapstructure:"concurrency" default:"4" json:"concurrency" yaml:"concurrency" toml:"concurrency"`
	// Aliases are host-level module paths visible to every extension.
	Aliases map[string]string `mapstructure:"aliases" json:"aliases,omitempty" yaml:"aliases,omitempty" toml:"aliases,omitempty"`
}

// HostConfig describes the host.
type HostConfig struct {
	// Version is checked against extensions' engines.extload constraint.
	Version string `mapstructure:"version" default:"1.0.0" json:"version" yaml:"version" toml:"version"`
}

// Validation errors.
var (
	ErrInvalidLogLevel    = errors.New("config: invalid log level")
	ErrInvalidLogFormat   = errors.New("config: log format must be auto, json or console")
	ErrInvalidTimeout     = errors.New("config: init timeout must be positive")
	ErrInvalidConcurrency = errors.New("config: concurrency must not be negative")
	ErrInvalidVersion     = errors.New("config: host version must be valid semver")
	ErrInvalidAlias       = errors.New("config: alias targets must be absolute paths")
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	switch c.Log.Format {
	case "auto", "json", "console":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}
	if c.Extensions.InitTimeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Extensions.InitTimeout)
	}
	if c.Extensions.Concurrency < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, c.Extensions.Concurrency)
	}
	if _, err := semver.NewVersion(c.Host.Version); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, c.Host.Version)
	}
	for alias, target := range c.Extensions.Aliases {
		if !filepath.IsAbs(target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidAlias, alias, target)
		}
	}
	return nil
}

// HostVersion returns the parsed host version.
func (c *Config) HostVersion() *semver.Version {
	v, err := semver.NewVersion(c.Host.Version)
	if err != nil {
		return nil
	}
	return v
}

// Options controls where configuration is read from.
type Options struct {
	// File is an explicit configuration file. It must exist if set.
	File string
	// EnvFile is a dotenv file loaded before reading the environment.
	// Missing files are ignored.
	EnvFile string
	// SearchDirs are directories checked for config.{toml,yaml,json}, lowest
	// priority first. Nil uses DefaultSearchDirs.
	SearchDirs []string
	// Viper, if set, is used instead of a fresh instance so callers can
	// bind flags before loading.
	Viper *viper.Viper
}

// DefaultSearchDirs returns the user and project configuration directories.
func DefaultSearchDirs() []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "extload"))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, filepath.Join(cwd, ".extload"))
	}
	return dirs
}

// Load reads configuration from every layer and validates it.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// Ignore error if the file doesn't exist.
	_ = godotenv.Overload(envFile)

	v := opts.Viper
	if v == nil {
		v = viper.New()
	}
	bindValues(v, Config{}, "")

	dirs := opts.SearchDirs
	if dirs == nil {
		dirs = DefaultSearchDirs()
	}
	for _, dir := range dirs {
		if err := mergeDir(v, dir); err != nil {
			return nil, err
		}
	}
	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeDir merges the first config.{toml,yaml,yml,json} found in dir.
func mergeDir(v *viper.Viper, dir string) error {
	for _, ext := range []string{"toml", "yaml", "yml", "json"} {
		path := filepath.Join(dir, "config."+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	return nil
}

// bindValues uses reflection to register every mapstructure key with its
// 'default' tag, so AutomaticEnv can find it during Unmarshal.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}
		if field.Type.Kind() == reflect.Map {
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}
