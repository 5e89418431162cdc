// Package config loads the controller's environment-driven configuration.
package config

import (
	"os"
	"strconv"

	"github.com/airmettle/go-nvme-kv/internal/constants"
)

// Config is the runtime configuration resolved at bring-up.
type Config struct {
	// BaseDir is the object store root (KV_BASE_DIR, default ".").
	BaseDir string

	// NumThreads is the task worker count (KV_NUM_THREADS, default 5,
	// out-of-range values fall back to the default).
	NumThreads int

	// NumDBConns is the query connection pool size (KV_NUM_DB_CONNS,
	// default 5, out-of-range values fall back to the default).
	NumDBConns int
}

// Load reads the environment and applies defaults and clamps.
func Load() Config {
	cfg := Config{
		BaseDir:    os.Getenv(constants.EnvBaseDir),
		NumThreads: clampedEnvInt(constants.EnvNumThreads, constants.DefaultNumThreads, constants.MaxNumThreads),
		NumDBConns: clampedEnvInt(constants.EnvNumDBConns, constants.DefaultNumDBConns, constants.MaxNumDBConns),
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = "."
	}
	return cfg
}

// clampedEnvInt parses an integer env var; unset, unparsable, or
// out-of-range [1, max] values yield the default.
func clampedEnvInt(name string, def, max int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}
