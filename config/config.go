// Package config loads the merge engine's configuration, in the shape
// and with the library (gopkg.in/yaml.v3) the teacher's config package
// uses, trimmed to this subsystem's own concerns: where partition data
// lives, whether to override the platform's mmap page size, how many
// O3 copy workers to run, the default bitmap index block capacity, and
// the optional debug/metrics HTTP surface (§10).
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the O3 merge engine's own configuration, the
// surviving subset of the teacher's EngineConfig.
type EngineConfig struct {
	// DataDir is the root directory holding column partition files.
	DataDir string `yaml:"data_dir"`
	// MapPageSizeOverride is loaded from the config file but not read by
	// any code in this module; sys.Facade always uses the platform's
	// page size.
	MapPageSizeOverride int `yaml:"map_page_size_override"`
	// WorkerCount is the number of O3 copy workers draining the ring
	// (§5, §6.3). Zero, or any value below one, runs a single worker:
	// o3merge.NewWorkerPool clamps it to 1.
	WorkerCount int `yaml:"worker_count"`
	// RingCapacity bounds how many copy tasks may be in flight at once.
	RingCapacity int `yaml:"ring_capacity"`
}

// BitmapIndexConfig holds the bitmap index writer's defaults.
type BitmapIndexConfig struct {
	// DefaultBlockValueCount is B (§3.5) for new indexes; must be a
	// power of two. Load fills it in, but nothing in this module reads
	// it: bitmapindex.Open takes B as an argument.
	DefaultBlockValueCount int64 `yaml:"default_block_value_count"`
}

// LoggingConfig mirrors the teacher's LoggingConfig.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// TracingConfig mirrors the teacher's TracingConfig.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
}

// DebugConfig holds the optional debug/metrics HTTP surface toggles
// (§10's "Observability endpoint"), consumed by the obs package.
type DebugConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ListenAddress    string `yaml:"listen_address"`
	PProfEnabled     bool   `yaml:"pprof_enabled"`
	MetricsEnabled   bool   `yaml:"metrics_enabled"`
	MonitorUIEnabled bool   `yaml:"monitor_ui_enabled"`
}

// Config is the top-level configuration struct.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	BitmapIndex BitmapIndexConfig `yaml:"bitmap_index"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Debug       DebugConfig       `yaml:"debug"`
}

// ParseDuration parses a duration string, returning defaultDuration if
// the string is empty or invalid, and logging a warning in the invalid
// (but non-empty) case. Kept from the teacher's config package; nothing
// else in this module calls it.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader, applying defaults first
// so a partial or empty document still produces a usable Config.
func Load(r io.Reader) (*Config, error) {
	cfg := &Config{
		Engine: EngineConfig{
			DataDir:      "./data",
			WorkerCount:  0,
			RingCapacity: 64,
		},
		BitmapIndex: BitmapIndexConfig{
			DefaultBlockValueCount: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Debug: DebugConfig{
			Enabled:          true,
			ListenAddress:    "0.0.0.0:6060",
			PProfEnabled:     true,
			MetricsEnabled:   true,
			MonitorUIEnabled: true,
		},
	}

	if r == nil {
		return cfg, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path, falling
// back to defaults if the file does not exist.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()
	return Load(file)
}
