package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/lifeline/examples"
)

// runInit writes an example config and host hook settings into dir.
// Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Lifeline in %s\n", dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	files := []struct {
		name    string
		content []byte
		perm    os.FileMode
	}{
		// The config may carry broker credentials.
		{"lifeline.yaml", examples.ConfigYAML, 0o600},
		{"hooks.json", examples.HooksJSON, 0o644},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		written, err := writeIfMissing(path, f.content, f.perm)
		if err != nil {
			return err
		}
		if written {
			fmt.Fprintf(w, "  ✓ %s\n", path)
		} else {
			fmt.Fprintf(w, "  - %s (exists, skipped)\n", path)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit lifeline.yaml to customize your installation, then merge")
	fmt.Fprintln(w, "hooks.json into your assistant's settings to route its hooks here.")
	return nil
}

// writeIfMissing writes content to path only if the file does not already
// exist. It reports whether the file was written.
func writeIfMissing(path string, content []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
