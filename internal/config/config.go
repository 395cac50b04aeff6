// Package config loads relq settings from a YAML config file, RELQ_*
// environment variables and a .env file.
//
// Precedence, highest first: environment, .env, config file, defaults.
// Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/roach88/relq/internal/querysql"
)

// EnvPrefix prefixes every environment variable relq reads.
const EnvPrefix = "RELQ"

// Config keys.
const (
	KeyDriver   = "driver"
	KeyDSN      = "dsn"
	KeyDialect  = "dialect"
	KeyLogLevel = "log_level"
	KeyFormat   = "format"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds the resolved settings.
type Config struct {
	// Driver is the executor dialect: sqlite, postgres or mysql.
	Driver querysql.Dialect

	// DSN is the connection string, or a SQLite path.
	DSN string

	// Dialect is the dialect render prints. Defaults to Driver.
	Dialect querysql.Dialect

	LogLevel slog.Level

	// Format is text or json.
	Format string

	// File is the config file that was read, if any.
	File string
}

// Option configures Load.
type Option func(*loader)

type loader struct {
	fs      afero.Fs
	file    string
	workDir string
	homeDir string
}

// WithFs sets the filesystem config and .env files are read from.
func WithFs(fs afero.Fs) Option {
	return func(l *loader) { l.fs = fs }
}

// WithConfigFile reads exactly this file. A leading "~" is expanded. The
// file must exist.
func WithConfigFile(path string) Option {
	return func(l *loader) { l.file = path }
}

// WithWorkDir sets the directory searched for .relq.yaml and .env.
// Defaults to ".".
func WithWorkDir(dir string) Option {
	return func(l *loader) { l.workDir = dir }
}

// WithHomeDir overrides the home directory searched for .relq.yaml.
func WithHomeDir(dir string) Option {
	return func(l *loader) { l.homeDir = dir }
}

// Load resolves the configuration.
func Load(opts ...Option) (*Config, error) {
	l := &loader{fs: afero.NewOsFs(), workDir: "."}
	for _, opt := range opts {
		opt(l)
	}

	v := viper.New()
	v.SetFs(l.fs)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault(KeyDriver, string(querysql.SQLite))
	v.SetDefault(KeyDSN, ":memory:")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyFormat, FormatText)

	if l.file != "" {
		path, err := homedir.Expand(l.file)
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		home := l.homeDir
		if home == "" {
			dir, err := homedir.Dir()
			if err != nil {
				return nil, fmt.Errorf("home directory: %w", err)
			}
			home = dir
		}
		v.SetConfigName(".relq")
		v.AddConfigPath(l.workDir)
		v.AddConfigPath(home)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := l.loadDotEnv(v); err != nil {
		return nil, err
	}

	return decode(v)
}

// loadDotEnv applies RELQ_* entries from .env that the real environment
// does not already set.
func (l *loader) loadDotEnv(v *viper.Viper) error {
	path := filepath.Join(l.workDir, ".env")
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	env, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	prefix := EnvPrefix + "_"
	for name, value := range env {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		v.Set(strings.ToLower(strings.TrimPrefix(name, prefix)), value)
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	driver, err := querysql.ParseDialect(v.GetString(KeyDriver))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", KeyDriver, err)
	}

	dialect := driver
	if s := v.GetString(KeyDialect); s != "" {
		if dialect, err = querysql.ParseDialect(s); err != nil {
			return nil, fmt.Errorf("config %s: %w", KeyDialect, err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return nil, fmt.Errorf("config %s: %w", KeyLogLevel, err)
	}

	format := strings.ToLower(v.GetString(KeyFormat))
	if format != FormatText && format != FormatJSON {
		return nil, fmt.Errorf("config %s: must be %s or %s, got %q", KeyFormat, FormatText, FormatJSON, format)
	}

	return &Config{
		Driver:   driver,
		DSN:      v.GetString(KeyDSN),
		Dialect:  dialect,
		LogLevel: level,
		Format:   format,
		File:     v.ConfigFileUsed(),
	}, nil
}
