// Package locate finds external tools by trying a ranked list of
// strategies: explicit filesystem candidates first, then a PATH probe
// that runs the tool with --version.
package locate

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// NotFoundError reports a tool that matched no candidate and answered no
// probe. Every location tried is listed so the environment can be fixed
// without reading source.
type NotFoundError struct {
	Name  string
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found; tried:\n  %s", e.Name, strings.Join(e.Tried, "\n  "))
}

// Prober checks whether a command answers on PATH. The default runs
// `<cmd> --version` and reports whether it exited cleanly.
type Prober func(cmd string) error

func defaultProber(cmd string) error {
	return exec.Command(cmd, "--version").Run()
}

// Tool describes one external tool to locate.
type Tool struct {
	// Name is the primary command name, used for PATH probing and in
	// error messages.
	Name string
	// Candidates are explicit filesystem locations checked first, in
	// order. A leading ~ expands to the home directory.
	Candidates []string
	// AltNames are additional command names to probe on PATH.
	AltNames []string

	// Probe overrides the PATH probe, for tests.
	Probe Prober
}

// Find returns the first usable location for the tool, or a
// *NotFoundError listing everything tried.
func (t Tool) Find() (string, error) {
	probe := t.Probe
	if probe == nil {
		probe = defaultProber
	}

	var tried []string

	for _, candidate := range t.Candidates {
		path := expandHome(candidate)
		tried = append(tried, path)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			logrus.Debugf("found %s at %s", t.Name, path)
			return path, nil
		}
	}

	for _, cmd := range append([]string{t.Name}, t.AltNames...) {
		tried = append(tried, cmd+" (PATH)")
		if err := probe(cmd); err == nil {
			logrus.Debugf("found %s on PATH as %s", t.Name, cmd)
			return cmd, nil
		}
	}

	return "", &NotFoundError{Name: t.Name, Tried: tried}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// BuildRunner returns the Tool definition for the PlatformIO runner that
// drives build and upload.
func BuildRunner() Tool {
	return Tool{
		Name: "pio",
		Candidates: []string{
			"~/.platformio/penv/bin/pio",
			"/usr/local/bin/pio",
			"/opt/homebrew/bin/pio",
		},
		AltNames: []string{"platformio"},
	}
}

// Esptool returns the Tool definition for esptool, used when flashing a
// merged image directly.
func Esptool() Tool {
	return Tool{
		Name: "esptool",
		Candidates: []string{
			"~/.platformio/packages/tool-esptoolpy/esptool.py",
			"/opt/homebrew/bin/esptool.py",
			"/opt/homebrew/bin/esptool",
			"/usr/local/bin/esptool.py",
			"/usr/local/bin/esptool",
		},
		AltNames: []string{"esptool.py"},
	}
}
