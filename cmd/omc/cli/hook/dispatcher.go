package hook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/omchq/omc/cmd/omc/cli/checkpoint"
	"github.com/omchq/omc/cmd/omc/cli/decision"
	"github.com/omchq/omc/cmd/omc/cli/keyword"
	"github.com/omchq/omc/cmd/omc/cli/logging"
	"github.com/omchq/omc/cmd/omc/cli/mode"
	"github.com/omchq/omc/cmd/omc/cli/paths"
	"github.com/omchq/omc/cmd/omc/cli/recovery"
	"github.com/omchq/omc/cmd/omc/cli/settings"
	"github.com/omchq/omc/cmd/omc/cli/todo"
	"github.com/omchq/omc/cmd/omc/cli/workflow"
)

// Dispatcher fans host events out to the coordination components. Any
// component may be nil; the handlers that need it degrade to empty replies.
type Dispatcher struct {
	Settings    *settings.Settings
	Modes       *mode.Registry
	Keywords    *keyword.Detector
	Actions     *keyword.Applier
	Decisions   *decision.Engine
	Checkpoints *checkpoint.Service
	Recovery    *recovery.Handler
}

// NewDispatcher wires a dispatcher from its components.
func NewDispatcher(st *settings.Settings, modes *mode.Registry, keywords *keyword.Detector, decisions *decision.Engine, checkpoints *checkpoint.Service, rec *recovery.Handler) *Dispatcher {
	return &Dispatcher{
		Settings:    st,
		Modes:       modes,
		Keywords:    keywords,
		Actions:     keyword.NewApplier(modes),
		Decisions:   decisions,
		Checkpoints: checkpoints,
		Recovery:    rec,
	}
}

// NewDispatcherForProject wires the full stack against the project's state
// directory. Wiring is best-effort: unreadable settings or rule files fall
// back to the builtins so a hook invocation always gets a dispatcher.
func NewDispatcherForProject(projectPath string) *Dispatcher {
	ctx := logging.WithComponent(context.Background(), "hooks")

	st, err := settings.Load(projectPath)
	if err != nil {
		logging.Warn(ctx, "settings unreadable, using defaults", slog.String("error", err.Error()))
		st = settings.Default()
	}

	detector := keyword.Default()
	if st.KeywordRulesPath != "" {
		rules, err := keyword.LoadRules(st.KeywordRulesPath)
		if err != nil {
			logging.Warn(ctx, "keyword rules unreadable, using builtin table",
				slog.String("path", st.KeywordRulesPath),
				slog.String("error", err.Error()))
		} else {
			detector = keyword.NewDetector(rules)
		}
	}

	modes := mode.NewRegistry(mode.NewFileStoreForProject(projectPath))
	wf := workflow.NewFileProviderForProject(projectPath)
	todos := todo.NewFileProviderForProject(projectPath)
	checkpoints := checkpoint.NewServiceForProject(projectPath, modes, wf, todos)
	checkpoints.Retention = st.Retention()

	engine := decision.NewEngine(modes, wf)
	return NewDispatcher(st, modes, detector, engine, checkpoints, recovery.NewHandler(checkpoints))
}

func (d *Dispatcher) settings() *settings.Settings {
	if d.Settings == nil {
		return settings.Default()
	}
	return d.Settings
}

// Dispatch handles one event and always returns a printable response.
// Unknown event types come back {success:false} without an error.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Response {
	ctx = logging.WithComponent(ctx, "hooks")
	if !ev.Type.Valid() {
		logging.Warn(ctx, "unknown hook event", slog.String("event", string(ev.Type)))
		return Response{Success: false, Type: ev.Type}
	}
	if ev.SessionID == "" {
		// The response echoes the generated id so the host can adopt it.
		ev.SessionID = uuid.NewString()
		logging.Debug(ctx, "generated session id", slog.String("session_id", ev.SessionID))
	}
	ctx = logging.WithSession(ctx, ev.SessionID)

	resolved := d.settings().ForHook(string(ev.Type))
	if !resolved.Enabled {
		return Response{Success: true, Type: ev.Type, SessionID: ev.SessionID}
	}

	ctx, cancel := context.WithTimeout(ctx, resolved.Timeout)
	defer cancel()

	resp, err := d.handle(ctx, ev)
	if err != nil {
		d.logFailure(ctx, ev, resolved.FailMode, err)
		if resolved.Async || resolved.FailMode != settings.FailFail {
			return Response{Success: true, Type: ev.Type, SessionID: ev.SessionID}
		}
		return Response{Success: false, Type: ev.Type, SessionID: ev.SessionID}
	}
	if resolved.Async {
		// Async hooks promise the host nothing beyond receipt.
		return Response{Success: true, Type: ev.Type, SessionID: ev.SessionID}
	}
	resp.Success = true
	resp.Type = ev.Type
	resp.SessionID = ev.SessionID
	return resp
}

func (d *Dispatcher) logFailure(ctx context.Context, ev Event, fm settings.FailMode, err error) {
	attrs := []slog.Attr{
		slog.String("event", string(ev.Type)),
		slog.String("error", err.Error()),
	}
	switch fm {
	case settings.FailSilent:
		logging.Debug(ctx, "hook handler failed", attrs...)
	case settings.FailFail:
		logging.Error(ctx, "hook handler failed", attrs...)
	default:
		logging.Warn(ctx, "hook handler failed", attrs...)
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) (Response, error) {
	switch ev.Type {
	case SessionStart:
		return d.sessionStart(ctx, ev)
	case UserPromptSubmit:
		return d.promptSubmit(ctx, ev)
	case Stop:
		return d.stop(ctx, ev)
	case PreCompact:
		return d.preCompact(ctx, ev)
	case SessionEnd:
		return d.sessionEnd(ctx, ev)
	case FileModified:
		return d.fileModified(ctx, ev)
	default:
		return Response{}, fmt.Errorf("no handler for event %q", ev.Type)
	}
}

// sessionStart records the session as current and surfaces a resume message
// when a previous checkpoint exists.
func (d *Dispatcher) sessionStart(ctx context.Context, ev Event) (Response, error) {
	if ev.ProjectPath != "" {
		if err := paths.WriteCurrentSession(ev.ProjectPath, ev.SessionID); err != nil {
			logging.Debug(ctx, "current session marker not written", slog.String("error", err.Error()))
		}
	}
	resp := Response{Format: FormatMarkdown}
	if d.Recovery == nil {
		return resp, nil
	}
	msg, err := d.Recovery.CheckRecovery(ctx, ev.SessionID)
	if err != nil {
		return Response{}, fmt.Errorf("recovery check: %w", err)
	}
	if msg != nil {
		resp.Content = msg.Markdown
	}
	return resp, nil
}

type promptPayload struct {
	Prompt string `json:"prompt"`
}

// promptSubmit scans the prompt for keywords and applies what it finds.
func (d *Dispatcher) promptSubmit(ctx context.Context, ev Event) (Response, error) {
	resp := Response{Format: FormatJSON}
	if d.Keywords == nil {
		return resp, nil
	}
	var p promptPayload
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			logging.Debug(ctx, "unreadable prompt payload", slog.String("error", err.Error()))
		}
	}
	if p.Prompt == "" {
		return resp, nil
	}
	matches := d.Keywords.Detect(p.Prompt)
	if len(matches) == 0 {
		return resp, nil
	}

	before := d.activeSet(ctx, ev.SessionID)
	resp.Content = d.Actions.Apply(ctx, ev.SessionID, matches)

	// Checkpoint only when the prompt actually changed the mode set;
	// re-mentioning an active mode is not a switch.
	if d.Checkpoints != nil && !maps.Equal(before, d.activeSet(ctx, ev.SessionID)) {
		if _, err := d.Checkpoints.Create(ctx, checkpoint.TriggerModeSwitch, ev.SessionID, ev.ProjectPath); err != nil {
			logging.Debug(ctx, "mode switch checkpoint skipped", slog.String("error", err.Error()))
		}
	}
	return resp, nil
}

func (d *Dispatcher) activeSet(ctx context.Context, sessionID string) map[mode.Mode]bool {
	set := map[mode.Mode]bool{}
	if d.Modes == nil {
		return set
	}
	states, err := d.Modes.ActiveModes(ctx, sessionID)
	if err != nil {
		return set
	}
	for _, st := range states {
		set[st.Mode] = true
	}
	return set
}

// stop asks the decision engine whether the agent should be nudged onward.
func (d *Dispatcher) stop(ctx context.Context, ev Event) (Response, error) {
	if d.Decisions == nil {
		return Response{Format: FormatJSON, Content: decision.Decision{Continue: true, Mode: decision.ReasonNone}}, nil
	}
	return Response{Format: FormatJSON, Content: d.Decisions.Decide(ctx, ev.SessionID, ev.Payload)}, nil
}

type compactPayload struct {
	Memory json.RawMessage `json:"memory"`
}

// preCompact snapshots the session before the host compacts its context.
// A lock timeout degrades to null content; compaction must not wait on us.
func (d *Dispatcher) preCompact(ctx context.Context, ev Event) (Response, error) {
	resp := Response{Format: FormatJSON}
	if d.Checkpoints == nil {
		return resp, nil
	}
	var p compactPayload
	if len(ev.Payload) > 0 {
		_ = json.Unmarshal(ev.Payload, &p)
	}
	cp, err := d.Checkpoints.CreateWithMemory(ctx, checkpoint.TriggerCompact, ev.SessionID, ev.ProjectPath, p.Memory)
	if err != nil {
		if errors.Is(err, checkpoint.ErrLockTimeout) {
			logging.Warn(ctx, "pre-compact checkpoint lock timed out", slog.String("error", err.Error()))
			return resp, nil
		}
		return Response{}, fmt.Errorf("pre-compact checkpoint: %w", err)
	}
	if cp != nil {
		resp.Content = newReceipt(cp)
	}
	return resp, nil
}

// sessionEnd deactivates every mode the session held, then takes a final
// checkpoint of the (now empty) state.
func (d *Dispatcher) sessionEnd(ctx context.Context, ev Event) (Response, error) {
	resp := Response{Format: FormatJSON}
	summary := sessionEndSummary{}
	if d.Modes != nil {
		n, err := d.Modes.DeactivateAll(ctx, ev.SessionID)
		if err != nil {
			logging.Warn(ctx, "session-end mode cleanup failed", slog.String("error", err.Error()))
		}
		summary.Deactivated = n
	}
	if d.Checkpoints == nil {
		resp.Content = summary
		return resp, nil
	}
	cp, err := d.Checkpoints.Create(ctx, checkpoint.TriggerSessionEnd, ev.SessionID, ev.ProjectPath)
	if err != nil {
		if errors.Is(err, checkpoint.ErrLockTimeout) {
			logging.Warn(ctx, "session-end checkpoint lock timed out", slog.String("error", err.Error()))
			resp.Content = summary
			return resp, nil
		}
		return Response{}, fmt.Errorf("session-end checkpoint: %w", err)
	}
	if cp != nil {
		summary.CheckpointID = cp.ID
	}
	resp.Content = summary
	return resp, nil
}

// fileModified takes a throttled auto checkpoint.
func (d *Dispatcher) fileModified(ctx context.Context, ev Event) (Response, error) {
	resp := Response{Format: FormatJSON}
	if d.Checkpoints == nil {
		return resp, nil
	}
	cp, err := d.Checkpoints.Create(ctx, checkpoint.TriggerAuto, ev.SessionID, ev.ProjectPath)
	if err != nil {
		if errors.Is(err, checkpoint.ErrLockTimeout) {
			logging.Debug(ctx, "auto checkpoint lock timed out", slog.String("error", err.Error()))
			return resp, nil
		}
		return Response{}, fmt.Errorf("auto checkpoint: %w", err)
	}
	// Throttled creates come back nil; the host sees null content.
	if cp != nil {
		resp.Content = newReceipt(cp)
	}
	return resp, nil
}

// receipt is the json content for checkpoint-producing events.
type receipt struct {
	CheckpointID string             `json:"checkpoint_id"`
	Trigger      checkpoint.Trigger `json:"trigger"`
	Modes        []string           `json:"modes,omitempty"`
	Todos        todo.Summary       `json:"todos"`
}

func newReceipt(cp *checkpoint.Checkpoint) receipt {
	return receipt{
		CheckpointID: cp.ID,
		Trigger:      cp.Trigger,
		Modes:        cp.ActiveModeNames(),
		Todos:        cp.TodoSummary,
	}
}

type sessionEndSummary struct {
	Deactivated  int    `json:"deactivated"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}
