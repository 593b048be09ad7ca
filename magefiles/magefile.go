//go:build mage

// Package main contains Mage build targets for tmfk-stix developer tooling.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the pipeline writes to.
var projectDirs = []string{
	"build",
	"build/index",
}

// Init creates the output directory structure for the pipeline.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "tmfk-stix"
	cmdPkg  = "./cmd/tmfk-stix"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	if err := sh.RunV("go", "build", "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Generate builds both bundles from the checkout named by TMFK_REPO
// (default: the current directory).
func Generate() error {
	mg.Deps(Init, Build)

	repo := os.Getenv("TMFK_REPO")
	if repo == "" {
		repo = "."
	}
	return sh.RunV(filepath.Join(binDir, binName), "build", "--mode", "all", "--repo", repo, "--out", "build")
}

// Index ingests the stable bundles written by Generate into build/index.
func Index() error {
	mg.Deps(Generate)

	bundles, err := filepath.Glob(filepath.Join("build", "tmfk_*.json"))
	if err != nil {
		return err
	}
	var stable []string
	for _, b := range bundles {
		if isStableBundle(filepath.Base(b)) {
			stable = append(stable, b)
		}
	}
	if len(stable) == 0 {
		return fmt.Errorf("no bundles in build/")
	}

	args := append([]string{"index", "store", "--index-dir", "build/index"}, stable...)
	return sh.RunV(filepath.Join(binDir, binName), args...)
}

// isStableBundle reports whether name is <prefix>_<mode>.json rather than
// the hash-suffixed copy.
func isStableBundle(name string) bool {
	switch name {
	case "tmfk_strict.json", "tmfk_attack_compatible.json":
		return true
	}
	return false
}
