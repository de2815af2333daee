package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omchq/omc/cmd/omc/cli/checkpoint"
)

func newCheckpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect and create session checkpoints",
	}

	cmd.AddCommand(newCheckpointsListCmd())
	cmd.AddCommand(newCheckpointsShowCmd())
	cmd.AddCommand(newCheckpointsCreateCmd())

	return cmd
}

func newCheckpointsListCmd() *cobra.Command {
	var sessionID string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheckpointsList(cmd.Context(), cmd.OutOrStdout(), sessionID, all)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (defaults to the last session seen by hooks)")
	cmd.Flags().BoolVar(&all, "all", false, "List checkpoints for every session")

	return cmd
}

func runCheckpointsList(ctx context.Context, w io.Writer, sessionFlag string, all bool) error {
	svc := newCheckpointService("")

	var cps []*checkpoint.Checkpoint
	if all {
		var err error
		cps, err = svc.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("listing checkpoints: %w", err)
		}
	} else {
		sessionID, err := resolveSession(sessionFlag)
		if err != nil {
			return err
		}
		cps, err = svc.List(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("listing checkpoints: %w", err)
		}
	}

	if len(cps) == 0 {
		fmt.Fprintln(w, "No checkpoints found.")
		return nil
	}
	for _, cp := range cps {
		line := fmt.Sprintf("%s  %-12s  %s", cp.ID, cp.Trigger, humanizeSince(cp.CreatedAt))
		if names := cp.ActiveModeNames(); len(names) > 0 {
			line += "  modes: " + strings.Join(names, ", ")
		}
		if all {
			line += "  " + dimStyle.Render("session "+cp.SessionID)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func newCheckpointsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one checkpoint as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointsShow(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
	return cmd
}

func runCheckpointsShow(ctx context.Context, w io.Writer, id string) error {
	svc := newCheckpointService("")
	cp, err := svc.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("loading checkpoint %s: %w", id, err)
	}
	if cp == nil {
		return fmt.Errorf("checkpoint %s not found", id)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func newCheckpointsCreateCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Take a checkpoint of the current session state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheckpointsCreate(cmd.Context(), cmd.OutOrStdout(), sessionID)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (defaults to the last session seen by hooks)")

	return cmd
}

func runCheckpointsCreate(ctx context.Context, w io.Writer, sessionFlag string) error {
	sessionID, err := resolveSession(sessionFlag)
	if err != nil {
		return err
	}

	svc := newCheckpointService("")
	cp, err := svc.Create(ctx, checkpoint.TriggerManual, sessionID, "")
	if err != nil {
		return fmt.Errorf("creating checkpoint: %w", err)
	}

	fmt.Fprintf(w, "✓ checkpoint %s created\n", cp.ID)
	if names := cp.ActiveModeNames(); len(names) > 0 {
		fmt.Fprintln(w, "  modes: "+strings.Join(names, ", "))
	}
	if total := cp.TodoSummary.Total(); total > 0 {
		fmt.Fprintf(w, "  todos: %d/%d done\n", cp.TodoSummary.Completed, total)
	}
	return nil
}
