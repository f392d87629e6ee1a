// Package workflow reads a project's workflow state from disk so it can
// be captured in checkpoints. Lifeline does not interpret the state; it
// only validates that it is JSON.
//
// Layout under the project's working directory:
//
//	<dir>/active/<session>/workflow-session.json   one per active session
//	<dir>/project-tech.json                        project memory context
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DefaultDir is the workflow directory name relative to the project root.
const DefaultDir = ".workflow"

const (
	sessionFile = "workflow-session.json"
	contextFile = "project-tech.json"
)

// Provider reads workflow state files relative to a working directory.
type Provider struct {
	dir string
}

// NewProvider creates a provider for the given workflow directory name.
// An empty dir uses [DefaultDir]. An absolute dir is used as-is instead
// of being joined to the working directory.
func NewProvider(dir string) *Provider {
	if dir == "" {
		dir = DefaultDir
	}
	return &Provider{dir: dir}
}

func (p *Provider) root(cwd string) string {
	if filepath.IsAbs(p.dir) {
		return p.dir
	}
	return filepath.Join(cwd, p.dir)
}

// WorkflowState returns the active workflow sessions under cwd as a JSON
// array, ordered by session directory name. It returns nil when there
// are no active sessions.
func (p *Provider) WorkflowState(ctx context.Context, cwd string) (json.RawMessage, error) {
	if cwd == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(p.root(cwd), "active", "*", sessionFile))
	if err != nil {
		return nil, fmt.Errorf("glob sessions: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Strings(matches)

	sessions := make([]json.RawMessage, 0, len(matches))
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := readJSON(path)
		if err != nil {
			return nil, err
		}
		if raw != nil {
			sessions = append(sessions, raw)
		}
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	out, err := json.Marshal(sessions)
	if err != nil {
		return nil, fmt.Errorf("marshal sessions: %w", err)
	}
	return out, nil
}

// MemoryContext returns the project context document under cwd, or nil
// when it does not exist.
func (p *Provider) MemoryContext(ctx context.Context, cwd string) (json.RawMessage, error) {
	if cwd == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readJSON(filepath.Join(p.root(cwd), contextFile))
}

// readJSON returns the compacted contents of path. A missing or empty
// file yields nil.
func readJSON(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return buf.Bytes(), nil
}
