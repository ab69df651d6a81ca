// Package config provides environment configuration helpers for
// voxprep commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Env returns the value of an environment variable, falling back to
// the provided default when unset.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvInt returns an integer environment variable or the fallback when
// unset or unparseable.
func EnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// EnvDuration returns a duration environment variable ("30s", "2m") or
// the fallback when unset or unparseable.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
