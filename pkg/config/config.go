// Package config loads process-wide configuration for binaries that embed
// the storage and indexing core. The core packages themselves never read
// files or environment variables; only a cmd/ entrypoint does.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pagestore/pagestore/pkg/logger"
	"github.com/pagestore/pagestore/pkg/telemetry"
)

// Config is the top-level configuration for a demo binary wiring up the
// buffer pool and B+-tree index.
type Config struct {
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`

	DBFile          string `yaml:"db_file"`
	PageSize        int    `yaml:"page_size"`
	PoolSize        int    `yaml:"pool_size"`
	ReplacerK       int    `yaml:"replacer_k"`
	LeafMaxSize     int    `yaml:"leaf_max_size"`
	InternalMaxSize int    `yaml:"internal_max_size"`

	// DiskRateLimitBytesPerSec throttles the reference disk manager's
	// throughput; 0 disables throttling.
	DiskRateLimitBytesPerSec int64 `yaml:"disk_rate_limit_bytes_per_sec"`
}

// Default returns sane defaults for running the storage stack standalone.
func Default() Config {
	return Config{
		Logger:          logger.Config{Level: "info", Format: "console", OutputFile: "stdout"},
		Telemetry:       telemetry.Config{Enabled: false, ServiceName: "pagestore"},
		DBFile:          "pagestore.db",
		PageSize:        4096,
		PoolSize:        64,
		ReplacerK:       2,
		LeafMaxSize:     leafDefaultMaxSize,
		InternalMaxSize: internalDefaultMaxSize,
	}
}

const (
	leafDefaultMaxSize     = 128
	internalDefaultMaxSize = 128
)

// Load reads a YAML config file, falling back to Default() for any field
// that has no corresponding key in the file.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
