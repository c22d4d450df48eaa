package config

import (
	"flag"
	"io"
)

// parseFlags overlays cfg with command-line flags. -c, -config and
// -env-file are accepted here too so the full argument list parses, but
// they were already applied by the earlier stages.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("fintrack", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DSN, "d", cfg.DSN, "record database DSN (file:... or postgres://...)")
	fs.StringVar(&cfg.CachePath, "cache", cfg.CachePath, "path of the session cache database")
	fs.StringVar(&cfg.Secret, "secret", cfg.Secret, "secret for session tokens and the cache key")
	fs.DurationVar(&cfg.SessionTimeout, "session-timeout", cfg.SessionTimeout, "fallback session lifetime")
	fs.StringVar(&cfg.LogFormat, "log", cfg.LogFormat, "log format: text, json or zap")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")

	var ignored string
	fs.StringVar(&ignored, "c", "", "path to JSON config file")
	fs.StringVar(&ignored, "config", "", "path to JSON config file")
	fs.StringVar(&ignored, "env-file", "", "path to dotenv file")

	return fs.Parse(args)
}
