// Package settings loads and persists omc configuration.
//
// Configuration lives in .omc/settings.json with an optional
// .omc/settings.local.json overlay for per-machine overrides. Both files are
// decoded strictly: unknown keys are an error so typos surface instead of
// being silently ignored.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/omchq/omc/cmd/omc/cli/paths"
)

// FailMode controls how a hook handler failure is reported to the host agent.
type FailMode string

const (
	// FailSilent hides the failure entirely.
	FailSilent FailMode = "silent"
	// FailLog hides the failure from the agent but records it in the log.
	FailLog FailMode = "log"
	// FailFail reflects the failure in the hook response.
	FailFail FailMode = "fail"
)

// Default hook budgets. Pre-compact gets a larger budget because it snapshots
// workflow state and prunes old checkpoints in one pass.
const (
	DefaultTimeout           = 5 * time.Second
	DefaultPreCompactTimeout = 10 * time.Second
)

// DefaultRetention is the maximum number of checkpoints kept per session.
const DefaultRetention = 10

// HookSettings configures a single hook event. Zero values mean "use the
// default": a nil Enabled is enabled, a zero Timeout is the event default.
type HookSettings struct {
	Enabled  *bool    `json:"enabled,omitempty"`
	Timeout  int      `json:"timeout,omitempty"` // seconds
	FailMode FailMode `json:"fail_mode,omitempty"`
	Async    bool     `json:"async,omitempty"`
}

// Settings is the on-disk configuration document.
type Settings struct {
	Enabled             bool                    `json:"enabled"`
	LogLevel            string                  `json:"log_level,omitempty"`
	KeywordRulesPath    string                  `json:"keyword_rules_path,omitempty"`
	CheckpointRetention int                     `json:"checkpoint_retention,omitempty"`
	Hooks               map[string]HookSettings `json:"hooks,omitempty"`
}

// Default returns the settings used when no file exists yet.
func Default() *Settings {
	return &Settings{Enabled: true}
}

// Retention returns the effective checkpoint retention cap. The configured
// value can only lower the cap; anything above the default (or unset) uses
// the default.
func (s *Settings) Retention() int {
	if s.CheckpointRetention > 0 && s.CheckpointRetention < DefaultRetention {
		return s.CheckpointRetention
	}
	return DefaultRetention
}

// ResolvedHook is the effective configuration for one hook event after
// defaults and overrides are applied.
type ResolvedHook struct {
	Enabled  bool
	Timeout  time.Duration
	FailMode FailMode
	Async    bool
}

// Event names with special resolution rules. These mirror the hook package
// constants; plain strings avoid an import cycle.
const (
	eventStop             = "stop"
	eventUserPromptSubmit = "user-prompt-submit"
	eventPreCompact       = "pre-compact"
)

// ForHook resolves the configuration for a hook event name.
//
// Stop and user-prompt-submit always resolve to silent failure handling:
// those two hooks sit directly in the agent's conversational loop, and a
// surfaced failure there would interrupt the very turn they coordinate.
func (s *Settings) ForHook(event string) ResolvedHook {
	resolved := ResolvedHook{
		Enabled:  s.Enabled,
		Timeout:  DefaultTimeout,
		FailMode: FailLog,
	}
	if event == eventPreCompact {
		resolved.Timeout = DefaultPreCompactTimeout
	}

	if hs, ok := s.Hooks[event]; ok {
		if hs.Enabled != nil {
			resolved.Enabled = s.Enabled && *hs.Enabled
		}
		if hs.Timeout > 0 {
			resolved.Timeout = time.Duration(hs.Timeout) * time.Second
		}
		switch hs.FailMode {
		case FailSilent, FailLog, FailFail:
			resolved.FailMode = hs.FailMode
		}
		resolved.Async = hs.Async
	}

	if event == eventStop || event == eventUserPromptSubmit {
		resolved.FailMode = FailSilent
	}
	return resolved
}

// Load reads the settings for a project, applying the local overlay when
// present. A missing settings file yields defaults; a malformed or unknown
// key yields an error.
func Load(projectPath string) (*Settings, error) {
	s := Default()

	if err := decodeInto(paths.SettingsFile(projectPath), s); err != nil {
		return nil, err
	}
	if err := decodeInto(paths.LocalSettingsFile(projectPath), s); err != nil {
		return nil, err
	}
	return s, nil
}

// decodeInto strictly decodes the JSON file at path over s. Missing files
// are skipped.
func decodeInto(path string, s *Settings) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is under the project state dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading settings %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		return fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return nil
}

// Save writes the project settings file.
func Save(projectPath string, s *Settings) error {
	return write(paths.SettingsFile(projectPath), s)
}

// SaveLocal writes the local settings overlay.
func SaveLocal(projectPath string, s *Settings) error {
	return write(paths.LocalSettingsFile(projectPath), s)
}

func write(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing settings %s: %w", path, err)
	}
	return nil
}
