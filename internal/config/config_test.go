package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Port)
	assert.Equal(t, 115200, cfg.Baud)
	assert.Equal(t, 60, cfg.MonitorTimeout)
	assert.Equal(t, filepath.Join(".", ".pio/build/esp32p4"), cfg.BuildPath())
	assert.Equal(t, filepath.Join(".", "release", "firmware-merged.bin"), cfg.OutputPath())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FWPIPE_PORT", "/dev/ttyACM0")
	t.Setenv("FWPIPE_BAUD", "921600")
	t.Setenv("FWPIPE_MONITOR_TIMEOUT", "-1")
	t.Setenv("FWPIPE_PROJECT_DIR", "/work/fw")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Port)
	assert.Equal(t, 921600, cfg.Baud)
	assert.Equal(t, filepath.Join("/work/fw", "release", "firmware-merged.bin"), cfg.OutputPath())

	// Negative timeout means run until interrupted.
	assert.LessOrEqual(t, cfg.Timeout(), time.Duration(0))
}

func TestTimeout(t *testing.T) {
	cfg := &Config{MonitorTimeout: 5}
	assert.Equal(t, 5*time.Second, cfg.Timeout())

	cfg.MonitorTimeout = 0
	assert.Equal(t, time.Duration(0), cfg.Timeout())
}
