package internal

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// TestGolangciLint runs golangci-lint over the whole module, formatting
// checks included. It is skipped when golangci-lint is not installed.
func TestGolangciLint(t *testing.T) {
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		t.Skip("golangci-lint not found in PATH, skipping test")
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}

	// go test runs from internal/; the module root is one level up.
	moduleRoot := wd
	if filepath.Base(wd) == "internal" {
		moduleRoot = filepath.Dir(wd)
	}

	cmd := exec.Command("golangci-lint", "run", "--allow-parallel-runners", "./...")
	cmd.Dir = moduleRoot
	// Sandboxed runners may not have a writable default build cache.
	cmd.Env = append(os.Environ(), "GOCACHE="+t.TempDir())

	if output, err := cmd.CombinedOutput(); err != nil {
		t.Errorf("golangci-lint found issues:\n%s\nRun 'golangci-lint run' to see all issues.", output)
	}
}
