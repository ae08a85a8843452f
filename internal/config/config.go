// Package config loads tickit's settings from defaults, an optional YAML
// file, a .env file and TICKIT_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key: api.base_url is read
// from TICKIT_API_BASE_URL.
const EnvPrefix = "TICKIT"

// Config is the resolved configuration.
type Config struct {
	// DataDir holds the database, session file and lock file.
	DataDir string `mapstructure:"data_dir" validate:"required"`

	// Token, when set, is used instead of the stored session.
	Token string `mapstructure:"token"`

	Verbose bool `mapstructure:"verbose"`

	API       APIConfig       `mapstructure:"api"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`

	// File is the config file that was read, or "".
	File string `mapstructure:"-"`
}

// APIConfig configures the remote gateway.
type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url" validate:"required,url"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"min=1s"`
	PageSize int           `mapstructure:"page_size" validate:"min=1,max=200"`
}

// SyncConfig configures the background scheduler.
type SyncConfig struct {
	Interval    time.Duration `mapstructure:"interval" validate:"min=1s"`
	PassTimeout time.Duration `mapstructure:"pass_timeout" validate:"min=1s"`
}

// DashboardConfig configures the local dashboard server.
type DashboardConfig struct {
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// LogConfig configures the log file. An empty File disables it.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit config file. It must exist when set.
	// Otherwise <data_dir>/config.yaml is read if present.
	ConfigFile string

	// EnvFile is the dotenv file to load (default ".env"). Variables
	// already in the environment win.
	EnvFile string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load resolves the configuration.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := opts.ConfigFile
	if file == "" {
		dataDir, err := expandHome(v.GetString("data_dir"))
		if err != nil {
			return nil, err
		}
		candidate := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			file = candidate
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = file

	dataDir, err := expandHome(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir
	if cfg.Log.File != "" {
		if cfg.Log.File, err = expandHome(cfg.Log.File); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid config: %s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("invalid config: %w", err)
}

// DBPath is the local database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "tickit.db")
}

// SessionPath is the stored session file.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.json")
}

// LockPath is the file that serialises sync passes across processes.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "sync.lock")
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
