package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/omchq/omc/cmd/omc/cli/mode"
	"github.com/omchq/omc/cmd/omc/cli/paths"
	"github.com/omchq/omc/cmd/omc/cli/settings"
	"github.com/omchq/omc/cmd/omc/cli/workflow"
)

// Styles for status output
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	enabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))

	disabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	modeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	exclusiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
)

func newStatusCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show active modes and the latest checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), sessionID)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (defaults to the last session seen by hooks)")

	return cmd
}

func runStatus(ctx context.Context, w io.Writer, sessionID string) error {
	st, err := settings.Load("")
	if err != nil {
		fmt.Fprintf(w, "Warning: settings unreadable (%v), showing defaults\n\n", err)
		st = settings.Default()
	}

	if st.Enabled {
		fmt.Fprintln(w, titleStyle.Render("omc")+" "+enabledStyle.Render("enabled"))
	} else {
		fmt.Fprintln(w, titleStyle.Render("omc")+" "+disabledStyle.Render("disabled"))
	}
	fmt.Fprintln(w)

	if sessionID == "" {
		sessionID, _ = paths.ReadCurrentSession("")
	}
	if sessionID == "" {
		fmt.Fprintln(w, "No session recorded yet. Hooks record the session id on session-start.")
		return printAllActiveModes(ctx, w)
	}

	fmt.Fprintln(w, "Session: "+sessionID)

	registry := mode.NewRegistry(mode.NewFileStoreForProject(""))
	states, err := registry.ActiveModes(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reading active modes: %w", err)
	}
	fmt.Fprintln(w, "Modes:")
	if len(states) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  none"))
	}
	for _, s := range states {
		fmt.Fprintln(w, "  "+renderModeLine(s))
	}

	wf, err := workflow.NewFileProviderForProject("").Status(ctx, sessionID)
	if err == nil && wf != nil {
		progress := ""
		if wf.TotalSteps > 0 {
			progress = fmt.Sprintf(" (step %d/%d)", wf.Step, wf.TotalSteps)
		}
		state := "idle"
		if wf.InProgress {
			state = "in progress"
		}
		fmt.Fprintf(w, "Workflow: %s%s, %s\n", wf.Name, progress, state)
	}

	svc := newCheckpointService("")
	latest, err := svc.Latest(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reading checkpoints: %w", err)
	}
	fmt.Fprintln(w, "Latest checkpoint:")
	if latest == nil {
		fmt.Fprintln(w, dimStyle.Render("  none"))
		return nil
	}
	line := fmt.Sprintf("  %s  %s  %s", latest.ID, latest.Trigger, humanizeSince(latest.CreatedAt))
	if names := latest.ActiveModeNames(); len(names) > 0 {
		line += "  modes: " + strings.Join(names, ", ")
	}
	if total := latest.TodoSummary.Total(); total > 0 {
		line += fmt.Sprintf("  todos: %d/%d done", latest.TodoSummary.Completed, total)
	}
	fmt.Fprintln(w, line)
	return nil
}

// printAllActiveModes lists live markers across every session, used when no
// current session is recorded.
func printAllActiveModes(ctx context.Context, w io.Writer) error {
	registry := mode.NewRegistry(mode.NewFileStoreForProject(""))
	states, err := registry.AllActive(ctx)
	if err != nil {
		return fmt.Errorf("reading active modes: %w", err)
	}
	if len(states) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nActive modes across sessions:")
	for _, s := range states {
		fmt.Fprintf(w, "  %s  %s\n", renderModeLine(s), dimStyle.Render("session "+s.SessionID))
	}
	return nil
}

func renderModeLine(s *mode.State) string {
	line := modeStyle.Render(string(s.Mode))
	if s.Exclusive {
		line += " " + exclusiveStyle.Render("[exclusive]")
	}
	return line + "  " + dimStyle.Render(humanizeSince(s.ActivatedAt))
}
