package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/logging"
)

// Config holds runtime settings for the fintrack CLI.
type Config struct {
	DSN            string        `env:"DSN"`
	CachePath      string        `env:"CACHE_PATH"`
	Secret         string        `env:"SECRET"`
	SessionTimeout time.Duration `env:"SESSION_TIMEOUT"`
	LogFormat      string        `env:"LOG_FORMAT"`
	LogLevel       string        `env:"LOG_LEVEL"`

	// EnvFile is the dotenv file consulted before the environment. It can
	// only be set by flag.
	EnvFile string `env:"-"`
}

const defaultEnvFile = ".env"

// LoadDefaults populates c with defaults suitable for a local install.
func (c *Config) LoadDefaults() {
	c.DSN = "file:fintrack.db"
	c.CachePath = "fintrack-cache.db"
	c.Secret = ""
	c.SessionTimeout = 60 * time.Minute
	c.LogFormat = logging.FormatText
	c.LogLevel = "info"
	c.EnvFile = defaultEnvFile
}

// LoadConfig builds a Config from defaults, the JSON file, the dotenv file,
// the environment and finally args (usually os.Args[1:]). Later sources
// take precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, args, os.Environ()); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work. An empty Secret is allowed;
// the caller decides what to do about it.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DSN) == "" {
		errs = append(errs, errors.New("dsn is required"))
	}
	if strings.TrimSpace(c.CachePath) == "" {
		errs = append(errs, errors.New("cache path is required"))
	}
	if c.SessionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session timeout must be positive, got %s", c.SessionTimeout))
	}
	switch strings.ToLower(c.LogFormat) {
	case logging.FormatText, logging.FormatJSON, logging.FormatZap:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
