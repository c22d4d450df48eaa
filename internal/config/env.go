package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/fintrack/internal/flagx"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name, e.g. FINTRACK_DSN.
const EnvPrefix = "FINTRACK_"

// parseEnv overlays cfg with the dotenv file and then environ. A missing
// dotenv file is only an error when it was named explicitly.
func parseEnv(cfg *Config, args, environ []string) error {
	explicit := flagx.LookupString(args, "env-file")
	if explicit != "" {
		cfg.EnvFile = explicit
	}

	vars := map[string]string{}
	if cfg.EnvFile != "" {
		fileVars, err := godotenv.Read(cfg.EnvFile)
		switch {
		case err == nil:
			vars = fileVars
		case errors.Is(err, fs.ErrNotExist) && explicit == "":
		default:
			return fmt.Errorf("failed to read env file %s: %w", cfg.EnvFile, err)
		}
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: vars}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}
