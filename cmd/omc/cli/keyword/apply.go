package keyword

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omchq/omc/cmd/omc/cli/logging"
	"github.com/omchq/omc/cmd/omc/cli/mode"
)

// Outcome reports what applying one match did. Applied means the request
// took effect (or already held); Note carries the detail for skips and
// failures.
type Outcome struct {
	Keyword string    `json:"keyword"`
	Action  Action    `json:"action"`
	Mode    mode.Mode `json:"mode,omitempty"`
	Target  string    `json:"target,omitempty"`
	Applied bool      `json:"applied"`
	Note    string    `json:"note,omitempty"`
}

// Applier executes detected matches against the mode registry.
type Applier struct {
	modes *mode.Registry
}

// NewApplier creates an applier over the registry.
func NewApplier(modes *mode.Registry) *Applier {
	return &Applier{modes: modes}
}

// Apply executes matches in the order they appeared in the prompt. It never
// fails the prompt flow: exclusivity conflicts lose to whatever is already
// active and come back as skipped outcomes, other errors are logged and
// reported the same way.
func (a *Applier) Apply(ctx context.Context, sessionID string, matches []Match) []Outcome {
	if a == nil || a.modes == nil || len(matches) == 0 {
		return nil
	}
	outcomes := make([]Outcome, 0, len(matches))
	for _, m := range matches {
		out := Outcome{Keyword: m.Keyword, Action: m.Action, Mode: m.Mode, Target: m.Target}
		switch m.Action {
		case ActionActivate:
			_, err := a.modes.ActivateMode(ctx, sessionID, m.Mode)
			var conflict *mode.ConflictError
			switch {
			case err == nil:
				out.Applied = true
			case errors.As(err, &conflict):
				out.Note = fmt.Sprintf("skipped: %s is already active", conflict.Active)
				logging.Debug(ctx, "keyword activation skipped",
					slog.String("keyword", m.Keyword),
					slog.String("requested", string(m.Mode)),
					slog.String("active", string(conflict.Active)))
			default:
				out.Note = "activation failed"
				logging.Warn(ctx, "keyword activation failed",
					slog.String("keyword", m.Keyword),
					slog.String("mode", string(m.Mode)),
					slog.String("error", err.Error()))
			}
		case ActionCancel:
			n, err := a.modes.DeactivateAll(ctx, sessionID)
			if err != nil {
				out.Note = "cancel failed"
				logging.Warn(ctx, "keyword cancel failed", slog.String("error", err.Error()))
				break
			}
			out.Applied = true
			out.Note = fmt.Sprintf("deactivated %d modes", n)
		case ActionDelegate:
			// Delegation is the host's job; the outcome is the report.
			out.Applied = true
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}
