// Package decision classifies why a session is stopping and whether to
// nudge it onward. Enforcement is soft: the verdict always permits the stop
// and at most attaches an advisory continuation message, so nothing here can
// ever wedge the host.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/omchq/omc/cmd/omc/cli/logging"
	"github.com/omchq/omc/cmd/omc/cli/mode"
	"github.com/omchq/omc/cmd/omc/cli/workflow"
)

// Reason says which detector in the chain matched.
type Reason string

const (
	ReasonContextLimit   Reason = "context-limit"
	ReasonUserAbort      Reason = "user-abort"
	ReasonActiveWorkflow Reason = "active-workflow"
	ReasonActiveMode     Reason = "active-mode"
	ReasonNone           Reason = "none"
)

// Decision is the verdict for one stop event. Continue is always true;
// Message, when set, is the continuation prompt to surface to the agent.
type Decision struct {
	Continue bool    `json:"continue"`
	Mode     Reason  `json:"mode"`
	Message  *string `json:"message"`
}

// stopPayload is the slice of the host's stop event this engine reads.
type stopPayload struct {
	StopReason    string `json:"stop_reason"`
	EndTurnReason string `json:"end_turn_reason"`
	UserRequested bool   `json:"user_requested"`
}

// ModeLister is the slice of the mode registry the engine needs.
type ModeLister interface {
	ActiveModes(ctx context.Context, sessionID string) ([]*mode.State, error)
}

// WorkflowStatus is the slice of the workflow provider the engine needs.
type WorkflowStatus interface {
	Status(ctx context.Context, sessionID string) (*workflow.StateInfo, error)
}

// Engine evaluates the detector chain. Detectors are ordered; the first
// match wins.
type Engine struct {
	modes    ModeLister
	workflow WorkflowStatus
}

// NewEngine creates an engine over the given providers. Either may be nil,
// which disables its detector.
func NewEngine(modes ModeLister, wf WorkflowStatus) *Engine {
	return &Engine{modes: modes, workflow: wf}
}

// continuationPrompts are the per-mode nudges. When several modes are
// active, the most recently activated one speaks.
var continuationPrompts = map[mode.Mode]string{
	mode.Autopilot: "Autopilot is active. Continue executing the plan without waiting for confirmation.",
	mode.Swarm:     "Swarm is active. Keep the sub-agents working until every task is claimed and finished.",
	mode.Pipeline:  "Pipeline is active. Proceed to the next stage; do not stop between stages.",
	mode.Ralph:     "Ralph is active. Keep iterating on the task list until nothing is left.",
	mode.Ultrawork: "Ultrawork is active. Continue working through the remaining items at full depth.",
	mode.Team:      "Team is active. Coordinate outstanding work with the other agents before stopping.",
	mode.Ultraqa:   "UltraQA is active. Keep verifying; stop only when the checks come back clean.",
}

// Decide runs the detector chain over a stop event. It is total: malformed
// payloads and provider failures degrade toward ReasonNone instead of
// erroring, and Continue is true on every path.
func (e *Engine) Decide(ctx context.Context, sessionID string, payload []byte) Decision {
	var p stopPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			logging.Debug(ctx, "unreadable stop payload", slog.String("error", err.Error()))
			p = stopPayload{}
		}
	}

	if reason := classifyPayload(p); reason != ReasonNone {
		return Decision{Continue: true, Mode: reason}
	}

	if e.workflow != nil {
		st, err := e.workflow.Status(ctx, sessionID)
		if err != nil {
			logging.Debug(ctx, "workflow status unavailable", slog.String("error", err.Error()))
		} else if st != nil && st.InProgress {
			msg := fmt.Sprintf("Workflow %q is in progress (step %d/%d). Continue with the next step.",
				st.Name, st.Step, st.TotalSteps)
			return Decision{Continue: true, Mode: ReasonActiveWorkflow, Message: &msg}
		}
	}

	if e.modes != nil {
		states, err := e.modes.ActiveModes(ctx, sessionID)
		if err != nil {
			logging.Debug(ctx, "active modes unavailable", slog.String("error", err.Error()))
		} else if len(states) > 0 {
			// ActiveModes is oldest first; the newest activation wins.
			newest := states[len(states)-1]
			if prompt, ok := continuationPrompts[newest.Mode]; ok {
				return Decision{Continue: true, Mode: ReasonActiveMode, Message: &prompt}
			}
			return Decision{Continue: true, Mode: ReasonActiveMode}
		}
	}

	return Decision{Continue: true, Mode: ReasonNone}
}

// classifyPayload handles the two detectors that look only at the event
// itself. Context exhaustion outranks a user abort when both apply.
func classifyPayload(p stopPayload) Reason {
	switch p.StopReason {
	case "context_limit_reached", "end_turn_limit", "max_context":
		return ReasonContextLimit
	}
	if p.EndTurnReason == "max_tokens" {
		return ReasonContextLimit
	}
	if p.UserRequested {
		return ReasonUserAbort
	}
	switch p.StopReason {
	case "user_cancel", "cancel":
		return ReasonUserAbort
	}
	return ReasonNone
}
