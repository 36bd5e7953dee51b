// Package config holds the pipeline configuration, read from the
// environment with defaults matching the project layout.
package config

import (
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full pipeline configuration. Command-line flags
// override the environment values.
type Config struct {
	// Port is the serial device; empty means auto-detect.
	Port string `env:"FWPIPE_PORT" env-default:""`
	// Baud is the symbol rate used by both ends.
	Baud int `env:"FWPIPE_BAUD" env-default:"115200"`
	// MonitorTimeout is seconds before the monitor auto-stops.
	// Zero or negative means run until interrupted.
	MonitorTimeout int `env:"FWPIPE_MONITOR_TIMEOUT" env-default:"60"`

	ProjectDir string `env:"FWPIPE_PROJECT_DIR" env-default:"."`
	BuildDir   string `env:"FWPIPE_BUILD_DIR" env-default:".pio/build/esp32p4"`
	ReleaseDir string `env:"FWPIPE_RELEASE_DIR" env-default:"release"`
	Output     string `env:"FWPIPE_OUTPUT" env-default:"firmware-merged.bin"`

	Verbose bool `env:"FWPIPE_VERBOSE" env-default:"false"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Timeout returns the monitor timeout as a duration. Non-positive
// values stay non-positive, meaning unbounded.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.MonitorTimeout) * time.Second
}

// BuildPath returns the absolute build directory.
func (c *Config) BuildPath() string {
	return filepath.Join(c.ProjectDir, c.BuildDir)
}

// OutputPath returns where the merged image is written.
func (c *Config) OutputPath() string {
	return filepath.Join(c.ProjectDir, c.ReleaseDir, c.Output)
}
