// Package paths centralizes the on-disk layout of omc state.
//
// All state lives under a single .omc directory at the project root. Hooks
// receive the project path from the host agent; when it is absent we fall
// back to the enclosing git repository root, and finally to the current
// directory, so the tooling still works in bare folders.
package paths

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Directory and file names under the project root.
const (
	OmcDir                = ".omc"
	SettingsFileName      = "settings.json"
	LocalSettingsFileName = "settings.local.json"
	ModesDirName          = "modes"
	CheckpointsDirName    = "checkpoints"
	WorkflowDirName       = "workflow"
	TodosDirName          = "todos"
	LogsDirName           = "logs"
	LogFileName           = "omc.log"
	CurrentSessionName    = "current_session"
	ReadmeFileName        = "README.md"
)

// OmcDirReadme is written into a freshly created .omc directory so people
// browsing the repo know what the files are.
const OmcDirReadme = `# omc state directory

This directory is managed by the omc CLI. It holds mode activation markers,
session checkpoints, and logs for agent sessions in this project.

It is safe to delete; active sessions will simply lose their recovery state.
`

// RepoRoot returns the git repository root for the current directory.
// Uses 'git rev-parse --show-toplevel' so it works from any subdirectory.
func RepoRoot() (string, error) {
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("not inside a git repository: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// StateRoot resolves the directory that anchors the .omc state tree.
// Preference order: explicit project path, git repository root, current
// directory. It never fails; hooks must be able to run anywhere.
func StateRoot(projectPath string) string {
	if projectPath != "" {
		return projectPath
	}
	if root, err := RepoRoot(); err == nil {
		return root
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// Dir returns the .omc directory for the given project path.
func Dir(projectPath string) string {
	return filepath.Join(StateRoot(projectPath), OmcDir)
}

// SettingsFile returns the project settings file path.
func SettingsFile(projectPath string) string {
	return filepath.Join(Dir(projectPath), SettingsFileName)
}

// LocalSettingsFile returns the local (gitignored) settings overlay path.
func LocalSettingsFile(projectPath string) string {
	return filepath.Join(Dir(projectPath), LocalSettingsFileName)
}

// ModesDir returns the directory holding mode activation markers.
func ModesDir(projectPath string) string {
	return filepath.Join(Dir(projectPath), ModesDirName)
}

// CheckpointsDir returns the directory holding session checkpoints.
func CheckpointsDir(projectPath string) string {
	return filepath.Join(Dir(projectPath), CheckpointsDirName)
}

// WorkflowDir returns the directory where workflow engines drop their state.
func WorkflowDir(projectPath string) string {
	return filepath.Join(Dir(projectPath), WorkflowDirName)
}

// TodosDir returns the directory where todo lists are published.
func TodosDir(projectPath string) string {
	return filepath.Join(Dir(projectPath), TodosDirName)
}

// LogFile returns the hook log file path.
func LogFile(projectPath string) string {
	return filepath.Join(Dir(projectPath), LogsDirName, LogFileName)
}

// CurrentSessionFile returns the path of the file recording the most recent
// session id seen by a session-start hook.
func CurrentSessionFile(projectPath string) string {
	return filepath.Join(Dir(projectPath), CurrentSessionName)
}

// EnsureStateDirs creates the .omc tree for a project, including a README in
// the top directory. Existing files are left alone.
func EnsureStateDirs(projectPath string) error {
	dirs := []string{
		Dir(projectPath),
		ModesDir(projectPath),
		CheckpointsDir(projectPath),
		filepath.Join(Dir(projectPath), LogsDirName),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return fmt.Errorf("creating state directory %s: %w", d, err)
		}
	}
	readme := filepath.Join(Dir(projectPath), ReadmeFileName)
	if _, err := os.Stat(readme); os.IsNotExist(err) {
		if err := os.WriteFile(readme, []byte(OmcDirReadme), 0o600); err != nil {
			return fmt.Errorf("writing state README: %w", err)
		}
	}
	return nil
}

// ReadCurrentSession returns the recorded session id, or "" when none has
// been recorded yet. A missing file is not an error.
func ReadCurrentSession(projectPath string) (string, error) {
	data, err := os.ReadFile(CurrentSessionFile(projectPath)) //nolint:gosec // path is under the project state dir
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading current session: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteCurrentSession records the session id for later CLI invocations that
// run without a hook payload (status, recover, checkpoints create).
func WriteCurrentSession(projectPath, sessionID string) error {
	if err := EnsureStateDirs(projectPath); err != nil {
		return err
	}
	if err := os.WriteFile(CurrentSessionFile(projectPath), []byte(sessionID+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing current session: %w", err)
	}
	return nil
}

var unsafeComponent = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeComponent sanitizes an identifier for use as a file name component.
// Session ids come from the host agent and cannot be trusted to be
// path-safe. Empty input maps to "unknown".
func SafeComponent(s string) string {
	cleaned := unsafeComponent.ReplaceAllString(s, "-")
	cleaned = strings.Trim(cleaned, "-.")
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}
