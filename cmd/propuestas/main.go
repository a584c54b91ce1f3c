package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// baseDirEnv overrides the default ~/.propuestas base directory.
const baseDirEnv = "PROPUESTAS_HOME"

// resolveBaseDir returns the directory holding config.json, the session
// database and exported transcripts.
func resolveBaseDir(getenv func(string) string) (string, error) {
	if dir := getenv(baseDirEnv); dir != "" {
		return filepath.Abs(dir)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".propuestas"), nil
}

func main() {
	baseDir, err := resolveBaseDir(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	workDir, err := os.Getwd()
	if err != nil {
		workDir = "."
	}

	app := newCLIApp(&appEnv{baseDir: baseDir, workDir: workDir})
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if exitErr, ok := err.(cli.ExitCoder); ok && exitErr.ExitCode() != 0 {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}
