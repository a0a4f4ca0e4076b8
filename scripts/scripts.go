// Package scripts embeds the interpreter programs that drive each engine.
package scripts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed *.py
var files embed.FS

// Names of the embedded runner programs.
const (
	Chatterbox = "chatterbox_runner.py"
	Kokoro     = "kokoro_runner.py"
	Coqui      = "coqui_runner.py"
)

// Read returns the source of an embedded runner.
func Read(name string) ([]byte, error) {
	return files.ReadFile(name)
}

// Materialize writes the named runner into dir and returns its path. An
// existing file with identical content is left untouched.
func Materialize(dir, name string) (string, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("unknown script %q: %w", name, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create script directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if current, err := os.ReadFile(path); err == nil && string(current) == string(data) {
		return path, nil
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to install script: %w", err)
	}
	return path, nil
}
