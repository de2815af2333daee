// Package todo summarizes the host's todo list for a session. Like the
// workflow state, the underlying file is host-owned and read-only here.
package todo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/omchq/omc/cmd/omc/cli/paths"
)

// Summary counts todo items by status.
type Summary struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// Total returns the number of items across all statuses.
func (s Summary) Total() int {
	return s.Pending + s.InProgress + s.Completed
}

// Provider supplies the session's todo summary.
type Provider interface {
	Summary(ctx context.Context, sessionID string) (Summary, error)
}

// item is one entry of the on-disk todo array.
type item struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

// FileProvider reads one JSON array per session from a directory.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a provider reading from dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

// NewFileProviderForProject creates a provider reading from the project's
// todo state directory.
func NewFileProviderForProject(projectPath string) *FileProvider {
	return NewFileProvider(paths.TodosDir(projectPath))
}

// Summary counts the session's todos. A missing or unreadable file yields
// the zero summary; an unknown status counts as pending, which keeps an item
// visible rather than silently dropped.
func (p *FileProvider) Summary(_ context.Context, sessionID string) (Summary, error) {
	path := filepath.Join(p.dir, paths.SafeComponent(sessionID)+".json")
	data, err := os.ReadFile(path) //nolint:gosec // path is under the todos dir
	if err != nil {
		return Summary{}, nil
	}
	var items []item
	if err := json.Unmarshal(data, &items); err != nil {
		return Summary{}, nil
	}
	var sum Summary
	for _, it := range items {
		switch it.Status {
		case "completed":
			sum.Completed++
		case "in_progress":
			sum.InProgress++
		default:
			sum.Pending++
		}
	}
	return sum, nil
}
