// Package config loads runtime configuration for the fintrack CLI.
//
// # Sources and precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Optional dotenv file (-env-file, default ".env"), read without
//     touching the process environment.
//  4. Environment variables prefixed with FINTRACK_. Real variables win
//     over the dotenv file.
//  5. Command-line flags.
//
// # Flags
//
//	-d string               record database DSN (file:... or postgres://...)
//	-cache string           path of the session cache database
//	-secret string          secret for session tokens and the cache key
//	-session-timeout dur    fallback session lifetime, e.g. 60m
//	-log string             log format: text, json or zap
//	-log-level string       debug, info, warn or error
//
// # JSON schema
//
// Durations use timex.Duration, so they may be strings like "45m" or
// integer nanoseconds:
//
//	{
//	  "dsn": "file:fintrack.db",
//	  "cache_path": "fintrack-cache.db",
//	  "session_timeout": "60m",
//	  "log_format": "text"
//	}
package config
