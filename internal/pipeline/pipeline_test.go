package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbag/fwpipe/internal/config"
	"github.com/bigbag/fwpipe/internal/locate"
	"github.com/bigbag/fwpipe/internal/merge"
)

type call struct {
	name string
	args []string
	dir  string
}

// fakeRunner records invocations and fails on demand.
type fakeRunner struct {
	calls []call
	err   error
}

func (r *fakeRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) error {
	r.calls = append(r.calls, call{name: name, args: args, dir: dir})
	return r.err
}

func fakeTool() locate.Tool {
	return locate.Tool{
		Name:  "pio",
		Probe: func(cmd string) error { return nil },
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		ProjectDir: dir,
		BuildDir:   "build",
		ReleaseDir: "release",
		Output:     "merged.bin",
	}

	buildDir := cfg.BuildPath()
	require.NoError(t, os.MkdirAll(buildDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "bootloader.bin"), []byte{0xE9, 0x01}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "partitions.bin"), []byte{0xAA}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "firmware.bin"), []byte{0x10, 0x20}, 0o644))
	return cfg
}

func TestBuild_RunsThenMerges(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}

	p := New(cfg, runner)
	p.Tool = fakeTool()
	p.ToolchainPatterns = []string{filepath.Join(t.TempDir(), "none", "bin")}

	result, err := p.Build(context.Background(), merge.New())
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "pio", runner.calls[0].name)
	assert.Equal(t, []string{"run"}, runner.calls[0].args)
	assert.Equal(t, cfg.ProjectDir, runner.calls[0].dir)

	assert.Equal(t, cfg.OutputPath(), result.Path)
	assert.True(t, result.MagicOK)
	assert.FileExists(t, result.Path)
}

func TestBuild_ShortCircuitsOnRunnerFailure(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{err: errors.New("compile error")}

	p := New(cfg, runner)
	p.Tool = fakeTool()
	p.ToolchainPatterns = []string{filepath.Join(t.TempDir(), "none", "bin")}

	_, err := p.Build(context.Background(), merge.New())
	require.Error(t, err)

	// Build failed, so no merge output may exist.
	assert.NoFileExists(t, cfg.OutputPath())
}

func TestBuild_ToolUnavailable(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}

	p := New(cfg, runner)
	p.Tool = locate.Tool{
		Name:  "pio",
		Probe: func(cmd string) error { return errors.New("not installed") },
	}

	_, err := p.Build(context.Background(), merge.New())
	var notFound *locate.NotFoundError
	require.ErrorAs(t, err, &notFound)

	// The runner must never be invoked when the tool is missing.
	assert.Empty(t, runner.calls)
}

func TestUpload_PassesPort(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = "/dev/ttyACM0"
	runner := &fakeRunner{}

	p := New(cfg, runner)
	p.Tool = fakeTool()

	require.NoError(t, p.Upload(context.Background()))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"run", "-t", "upload", "--upload-port", "/dev/ttyACM0"}, runner.calls[0].args)
}

func TestUpload_NoPortConfigured(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}

	p := New(cfg, runner)
	p.Tool = fakeTool()

	require.NoError(t, p.Upload(context.Background()))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"run", "-t", "upload"}, runner.calls[0].args)
}

func TestUploadMerged(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = "/dev/ttyACM0"
	runner := &fakeRunner{}

	p := New(cfg, runner)
	p.Esptool = locate.Tool{
		Name:  "esptool",
		Probe: func(cmd string) error { return nil },
	}

	// No merged image yet: must fail before locating or running anything.
	require.Error(t, p.UploadMerged(context.Background()))
	assert.Empty(t, runner.calls)

	_, err := p.Merge(merge.New())
	require.NoError(t, err)

	require.NoError(t, p.UploadMerged(context.Background()))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "esptool", runner.calls[0].name)
	assert.Equal(t,
		[]string{"--chip", "esp32p4", "--port", "/dev/ttyACM0", "write_flash", "0x0", cfg.OutputPath()},
		runner.calls[0].args)
}

func TestMerge_MissingBuildProducts(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.Remove(filepath.Join(cfg.BuildPath(), "firmware.bin")))

	p := New(cfg, &fakeRunner{})

	_, err := p.Merge(merge.New())
	var missing *merge.MissingSegmentError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"firmware"}, missing.Names)
}
