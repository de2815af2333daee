// Package recovery turns the most recent checkpoint into a resume message
// for a session that is starting up again. It only ever reads; consuming a
// checkpoint does not delete it.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omchq/omc/cmd/omc/cli/checkpoint"
	"github.com/omchq/omc/cmd/omc/cli/logging"
)

// Message is a formatted resume context.
type Message struct {
	CheckpointID string
	Trigger      checkpoint.Trigger
	CreatedAt    time.Time
	Markdown     string
}

// Handler formats recovery messages from stored checkpoints.
type Handler struct {
	Checkpoints *checkpoint.Service
}

// NewHandler creates a handler reading from svc.
func NewHandler(svc *checkpoint.Service) *Handler {
	return &Handler{Checkpoints: svc}
}

// CheckRecovery returns the resume message for the session's latest
// checkpoint, or nil when the session has none to resume from.
func (h *Handler) CheckRecovery(ctx context.Context, sessionID string) (*Message, error) {
	latest, err := h.Checkpoints.Latest(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	logging.Debug(ctx, "recovery checkpoint found",
		slog.String("checkpoint", latest.ID),
		slog.String("trigger", string(latest.Trigger)))
	return format(latest), nil
}

// LatestAcrossSessions returns the resume message for the most recently
// checkpointed session in the whole state directory, or nil when there are
// no checkpoints at all.
func (h *Handler) LatestAcrossSessions(ctx context.Context) (*Message, error) {
	all, err := h.Checkpoints.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return format(all[0]), nil
}

func format(cp *checkpoint.Checkpoint) *Message {
	var b strings.Builder
	b.WriteString("## Session checkpoint found\n\n")
	fmt.Fprintf(&b, "Resuming from checkpoint `%s` (trigger: %s, saved %s).\n\n",
		cp.ID, cp.Trigger, cp.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	if names := cp.ActiveModeNames(); len(names) > 0 {
		fmt.Fprintf(&b, "- Active modes: %s\n", strings.Join(names, ", "))
	} else {
		b.WriteString("- Active modes: none\n")
	}

	if len(cp.WorkflowState) > 0 {
		b.WriteString("- Workflow: state captured; pick up where it left off\n")
	}

	sum := cp.TodoSummary
	if sum.Total() > 0 {
		fmt.Fprintf(&b, "- Todos: %d pending, %d in progress, %d completed\n",
			sum.Pending, sum.InProgress, sum.Completed)
	}

	if cp.GitHead != "" {
		short := cp.GitHead
		if len(short) > 7 {
			short = short[:7]
		}
		if cp.GitBranch != "" {
			fmt.Fprintf(&b, "- Git: %s on %s\n", short, cp.GitBranch)
		} else {
			fmt.Fprintf(&b, "- Git: %s (detached)\n", short)
		}
	}

	return &Message{
		CheckpointID: cp.ID,
		Trigger:      cp.Trigger,
		CreatedAt:    cp.CreatedAt,
		Markdown:     b.String(),
	}
}
