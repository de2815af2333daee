// Package workflow reads the host's workflow state for a session. The state
// is owned and written by the host; this side only ever reads it, so every
// accessor treats a missing or unreadable file as "no workflow".
package workflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/omchq/omc/cmd/omc/cli/paths"
)

// Provider supplies workflow state. Snapshot returns the raw document for
// embedding into checkpoints; Status returns the parsed progress view.
type Provider interface {
	Snapshot(ctx context.Context, sessionID string) (json.RawMessage, error)
	Status(ctx context.Context, sessionID string) (*StateInfo, error)
}

// StateInfo is the progress view of a workflow document.
type StateInfo struct {
	Name       string
	Step       int
	TotalSteps int
	InProgress bool
}

// envelope is the on-disk document shape written by the host.
type envelope struct {
	Workflow   string `json:"workflow"`
	Step       int    `json:"step"`
	TotalSteps int    `json:"total_steps"`
	Status     string `json:"status"`
}

// FileProvider reads one JSON document per session from a directory.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a provider reading from dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

// NewFileProviderForProject creates a provider reading from the project's
// workflow state directory.
func NewFileProviderForProject(projectPath string) *FileProvider {
	return NewFileProvider(paths.WorkflowDir(projectPath))
}

func (p *FileProvider) path(sessionID string) string {
	return filepath.Join(p.dir, paths.SafeComponent(sessionID)+".json")
}

// Snapshot returns the raw workflow document for the session, or nil when
// there is none.
func (p *FileProvider) Snapshot(_ context.Context, sessionID string) (json.RawMessage, error) {
	data, err := os.ReadFile(p.path(sessionID)) //nolint:gosec // path is under the workflow dir
	if err != nil {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// Status returns the parsed progress view, or nil when no workflow exists.
func (p *FileProvider) Status(_ context.Context, sessionID string) (*StateInfo, error) {
	data, err := os.ReadFile(p.path(sessionID)) //nolint:gosec // path is under the workflow dir
	if err != nil {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil
	}
	if env.Workflow == "" {
		return nil, nil
	}
	return &StateInfo{
		Name:       env.Workflow,
		Step:       env.Step,
		TotalSteps: env.TotalSteps,
		InProgress: env.Status == "running" || env.Status == "in_progress",
	}, nil
}
