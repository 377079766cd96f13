package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig is the optional tuning overlay layered on top of the
// XML session declarations: queue size, worker count, and cleanup
// cadence, mirroring internal/scheduler's GlobalConfig style.
type RuntimeConfig struct {
	QueueSize       int           `yaml:"queue_size"`
	Workers         int           `yaml:"workers"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	StaleAfter      time.Duration `yaml:"stale_after"`
	LogLevel        string        `yaml:"log_level"`
}

// DefaultRuntimeConfig matches the spec's own defaults (§5 MAX_QUEUESIZE,
// §6 10s cleanup cadence).
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		QueueSize:       100000,
		Workers:         1,
		CleanupInterval: 10 * time.Second,
		StaleAfter:      30 * time.Second,
		LogLevel:        "info",
	}
}

// LoadRuntimeConfig reads a YAML overlay file, falling back to
// DefaultRuntimeConfig's values for any zero field left unset.
func LoadRuntimeConfig(path string) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read runtime config %s: %w", path, err)
	}

	var overlay RuntimeConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return cfg, fmt.Errorf("parse runtime config %s: %w", path, err)
	}

	if overlay.QueueSize != 0 {
		cfg.QueueSize = overlay.QueueSize
	}
	if overlay.Workers != 0 {
		cfg.Workers = overlay.Workers
	}
	if overlay.CleanupInterval != 0 {
		cfg.CleanupInterval = overlay.CleanupInterval
	}
	if overlay.StaleAfter != 0 {
		cfg.StaleAfter = overlay.StaleAfter
	}
	if overlay.LogLevel != "" {
		cfg.LogLevel = overlay.LogLevel
	}
	return cfg, nil
}
