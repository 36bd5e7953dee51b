// Package toolchain resolves the cross-compilation toolchain installed
// under the PlatformIO packages directory.
package toolchain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// CompilerName is the cross compiler executable looked for inside each
// candidate bin directory.
const CompilerName = "riscv32-esp-elf-g++"

// NotFoundError reports that no pattern matched a directory containing
// the compiler.
type NotFoundError struct {
	Patterns []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cross toolchain not found; searched patterns:\n  %s",
		strings.Join(e.Patterns, "\n  "))
}

// DefaultPatterns returns the glob patterns searched in order. Versioned
// installs are preferred over the bare package name.
func DefaultPatterns() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	packages := filepath.Join(home, ".platformio", "packages")
	return []string{
		filepath.Join(packages, "toolchain-riscv32-esp@14*", "bin"),
		filepath.Join(packages, "toolchain-riscv32-esp@src-*", "bin"),
		filepath.Join(packages, "toolchain-riscv32-esp", "bin"),
	}
}

// FindCompiler globs each pattern in order and returns the first
// directory that contains a working compiler executable.
func FindCompiler(patterns []string) (string, error) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			// Only malformed patterns error here; treat as no match.
			logrus.Debugf("bad toolchain pattern %q: %v", pattern, err)
			continue
		}
		for _, dir := range matches {
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				continue
			}
			compiler := filepath.Join(dir, CompilerName)
			if fi, err := os.Stat(compiler); err == nil && !fi.IsDir() {
				logrus.Debugf("toolchain: %s", dir)
				return dir, nil
			}
		}
	}
	return "", &NotFoundError{Patterns: patterns}
}

// PrependPath returns pathVar with dir prepended, for handing the
// toolchain to the build runner's environment.
func PrependPath(pathVar, dir string) string {
	if pathVar == "" {
		return dir
	}
	return dir + string(os.PathListSeparator) + pathVar
}
