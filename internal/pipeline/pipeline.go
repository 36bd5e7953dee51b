// Package pipeline sequences the build, merge and upload phases,
// short-circuiting on the first failure. The monitor phase lives in
// package monitor; the command layer runs it after upload.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bigbag/fwpipe/internal/config"
	"github.com/bigbag/fwpipe/internal/locate"
	"github.com/bigbag/fwpipe/internal/merge"
	"github.com/bigbag/fwpipe/internal/toolchain"
)

// Pipeline drives the external build runner and the in-process merge.
type Pipeline struct {
	cfg    *config.Config
	runner Runner

	// Tool locates the build runner. Overridable in tests.
	Tool locate.Tool
	// Esptool locates esptool for flashing a merged image directly.
	Esptool locate.Tool
	// ToolchainPatterns are the compiler search globs.
	ToolchainPatterns []string
}

// New creates a pipeline over the given config and command runner.
func New(cfg *config.Config, runner Runner) *Pipeline {
	return &Pipeline{
		cfg:               cfg,
		runner:            runner,
		Tool:              locate.BuildRunner(),
		Esptool:           locate.Esptool(),
		ToolchainPatterns: toolchain.DefaultPatterns(),
	}
}

// Build compiles the firmware with the external runner, then merges the
// build products into the release image. A merge failure aborts; the
// toolchain only matters here, never for merge or monitor.
func (p *Pipeline) Build(ctx context.Context, merger *merge.Merger) (*merge.Result, error) {
	runnerPath, err := p.Tool.Find()
	if err != nil {
		return nil, err
	}

	env := p.buildEnv()
	if err := p.runner.Run(ctx, p.cfg.ProjectDir, env, runnerPath, "run"); err != nil {
		return nil, err
	}

	return p.Merge(merger)
}

// Upload flashes the firmware via the external runner.
func (p *Pipeline) Upload(ctx context.Context) error {
	runnerPath, err := p.Tool.Find()
	if err != nil {
		return err
	}

	args := []string{"run", "-t", "upload"}
	if p.cfg.Port != "" {
		args = append(args, "--upload-port", p.cfg.Port)
	}
	return p.runner.Run(ctx, p.cfg.ProjectDir, nil, runnerPath, args...)
}

// UploadMerged flashes the merged release image in one esptool write
// instead of going through the build runner. The image must have been
// merged first.
func (p *Pipeline) UploadMerged(ctx context.Context) error {
	image := p.cfg.OutputPath()
	if _, err := os.Stat(image); err != nil {
		return fmt.Errorf("merged image %s not found, run merge first: %w", image, err)
	}

	esptool, err := p.Esptool.Find()
	if err != nil {
		return err
	}

	args := []string{"--chip", "esp32p4"}
	if p.cfg.Port != "" {
		args = append(args, "--port", p.cfg.Port)
	}
	args = append(args, "write_flash", "0x0", image)
	return p.runner.Run(ctx, p.cfg.ProjectDir, nil, esptool, args...)
}

// Merge composes the release image from the build directory.
func (p *Pipeline) Merge(merger *merge.Merger) (*merge.Result, error) {
	spec := merge.DefaultSpec(p.cfg.BuildPath(), p.cfg.OutputPath())
	return merger.Merge(spec)
}

// buildEnv returns the environment for the build runner, with the cross
// toolchain prepended to PATH when one is installed. A missing toolchain
// is only a warning: the runner may manage its own.
func (p *Pipeline) buildEnv() []string {
	dir, err := toolchain.FindCompiler(p.ToolchainPatterns)
	if err != nil {
		logrus.Warnf("proceeding without cross toolchain: %v", err)
		fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
		return nil
	}

	env := os.Environ()
	for i, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			env[i] = "PATH=" + toolchain.PrependPath(kv[len("PATH="):], dir)
			return env
		}
	}
	return append(env, "PATH="+dir)
}
