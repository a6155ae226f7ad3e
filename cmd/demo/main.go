// Command demo runs a colorized, self-contained walkthrough of smithers: it
// shells out to a built smithers binary and exercises scaffolding, planning,
// running against the mock adapter, and inspecting the result.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dotcommander/smithers/internal/demo"
)

func main() {
	var binPath string
	var continueOnError bool
	var fast bool
	flag.StringVar(&binPath, "bin", "", "Path to smithers binary (default: builds from source)")
	flag.BoolVar(&continueOnError, "continue-on-error", false, "Continue after step failures")
	flag.BoolVar(&fast, "fast", false, "Skip 2s pause after each successful step")
	flag.Parse()

	if binPath == "" {
		tmpDir, err := os.MkdirTemp("", "smithers-demo-bin-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create temp dir: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = os.RemoveAll(tmpDir) }()

		binPath = filepath.Join(tmpDir, "smithers")
		fmt.Fprintln(os.Stderr, "Building smithers binary...")
		buildCmd := exec.Command("go", "build", "-o", binPath, "./cmd/smithers")
		buildCmd.Stdout = os.Stderr
		buildCmd.Stderr = os.Stderr
		if err := buildCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to build smithers: %v\n", err)
			os.Exit(1)
		}
	}

	dbDir, err := os.MkdirTemp("", "smithers-demo-db-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create DB dir: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = os.RemoveAll(dbDir) }()
	dbPath := filepath.Join(dbDir, "smithers-demo.db")

	r := demo.NewRunner(binPath, dbPath, os.Stdout, fast)
	passed, failed := r.RunAll(continueOnError)

	_, _ = fmt.Fprintf(os.Stdout, "\n%d passed, %d failed, %d total\n", passed, failed, passed+failed)
	if failed > 0 {
		os.Exit(1)
	}
}
