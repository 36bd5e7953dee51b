package toolchain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeToolchain(t *testing.T, root, pkg string, withCompiler bool) string {
	t.Helper()
	bin := filepath.Join(root, pkg, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	if withCompiler {
		require.NoError(t, os.WriteFile(filepath.Join(bin, CompilerName), []byte("#!/bin/sh\n"), 0o755))
	}
	return bin
}

func TestFindCompiler_PrefersEarlierPattern(t *testing.T) {
	root := t.TempDir()
	versioned := makeToolchain(t, root, "toolchain-riscv32-esp@14.2.0", true)
	makeToolchain(t, root, "toolchain-riscv32-esp", true)

	patterns := []string{
		filepath.Join(root, "toolchain-riscv32-esp@14*", "bin"),
		filepath.Join(root, "toolchain-riscv32-esp", "bin"),
	}

	dir, err := FindCompiler(patterns)
	require.NoError(t, err)
	assert.Equal(t, versioned, dir)
}

func TestFindCompiler_SkipsDirsWithoutCompiler(t *testing.T) {
	root := t.TempDir()
	makeToolchain(t, root, "toolchain-riscv32-esp@14.2.0", false)
	bare := makeToolchain(t, root, "toolchain-riscv32-esp", true)

	patterns := []string{
		filepath.Join(root, "toolchain-riscv32-esp@14*", "bin"),
		filepath.Join(root, "toolchain-riscv32-esp", "bin"),
	}

	dir, err := FindCompiler(patterns)
	require.NoError(t, err)
	assert.Equal(t, bare, dir)
}

func TestFindCompiler_NotFound(t *testing.T) {
	root := t.TempDir()
	patterns := []string{filepath.Join(root, "toolchain-*", "bin")}

	_, err := FindCompiler(patterns)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, patterns, notFound.Patterns)
	assert.Contains(t, err.Error(), "toolchain-*")
}

func TestPrependPath(t *testing.T) {
	sep := string(os.PathListSeparator)
	assert.Equal(t, "/tc/bin"+sep+"/usr/bin", PrependPath("/usr/bin", "/tc/bin"))
	assert.Equal(t, "/tc/bin", PrependPath("", "/tc/bin"))
}
