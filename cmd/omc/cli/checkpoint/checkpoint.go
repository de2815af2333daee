// Package checkpoint persists point-in-time session snapshots: which modes
// are active, where the workflow stands, how the todo list looks, and where
// the repository HEAD is. Snapshots are written on compaction, mode
// switches, and session end, and read back by recovery when a session
// resumes.
package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/omchq/omc/cmd/omc/cli/mode"
	"github.com/omchq/omc/cmd/omc/cli/todo"
)

// Trigger records why a checkpoint was taken.
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerAuto       Trigger = "auto"
	TriggerCompact    Trigger = "compact"
	TriggerModeSwitch Trigger = "mode-switch"
	TriggerSessionEnd Trigger = "session-end"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerAuto, TriggerCompact, TriggerModeSwitch, TriggerSessionEnd:
		return true
	default:
		return false
	}
}

// Checkpoint is one snapshot document. Instances are immutable once
// written; only retention pruning ever removes them.
type Checkpoint struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	ProjectPath   string          `json:"project_path,omitempty"`
	Trigger       Trigger         `json:"trigger"`
	CreatedAt     time.Time       `json:"created_at"`
	ModeStates    []*mode.State   `json:"mode_states,omitempty"`
	WorkflowState json.RawMessage `json:"workflow_state,omitempty"`
	MemoryContext json.RawMessage `json:"memory_context,omitempty"`
	TodoSummary   todo.Summary    `json:"todo_summary"`
	GitHead       string          `json:"git_head,omitempty"`
	GitBranch     string          `json:"git_branch,omitempty"`
}

// ActiveModeNames returns the names of the modes captured in the snapshot.
func (c *Checkpoint) ActiveModeNames() []string {
	var names []string
	for _, state := range c.ModeStates {
		if state != nil && state.Active {
			names = append(names, string(state.Mode))
		}
	}
	return names
}
