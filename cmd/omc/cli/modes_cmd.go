package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omchq/omc/cmd/omc/cli/checkpoint"
	"github.com/omchq/omc/cmd/omc/cli/logging"
	"github.com/omchq/omc/cmd/omc/cli/mode"
	"github.com/omchq/omc/cmd/omc/cli/paths"
)

func newModesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modes",
		Short: "Inspect and manage workflow modes",
	}

	cmd.AddCommand(newModesListCmd())
	cmd.AddCommand(newModesActivateCmd())
	cmd.AddCommand(newModesDeactivateCmd())
	cmd.AddCommand(newModesCleanupCmd())

	return cmd
}

// resolveSession returns the session to operate on: the --session flag when
// given, otherwise the id recorded by the last session-start hook.
func resolveSession(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	id, err := paths.ReadCurrentSession("")
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("no session recorded yet; pass --session")
	}
	return id, nil
}

func newModesListCmd() *cobra.Command {
	var sessionID string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active modes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModesList(cmd.Context(), cmd.OutOrStdout(), sessionID, all)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (defaults to the last session seen by hooks)")
	cmd.Flags().BoolVar(&all, "all", false, "List modes for every session")

	return cmd
}

func runModesList(ctx context.Context, w io.Writer, sessionID string, all bool) error {
	registry := mode.NewRegistry(mode.NewFileStoreForProject(""))

	if all || sessionID == "" {
		// With no recorded session a scoped list would be empty anyway,
		// so fall back to the cross-session view.
		if sessionID == "" {
			if current, _ := paths.ReadCurrentSession(""); current != "" && !all {
				return printSessionModes(ctx, w, registry, current)
			}
		}
		states, err := registry.AllActive(ctx)
		if err != nil {
			return fmt.Errorf("listing modes: %w", err)
		}
		if len(states) == 0 {
			fmt.Fprintln(w, "No active modes.")
			return nil
		}
		for _, s := range states {
			fmt.Fprintf(w, "%s  %s\n", renderModeLine(s), dimStyle.Render("session "+s.SessionID))
		}
		return nil
	}

	return printSessionModes(ctx, w, registry, sessionID)
}

func printSessionModes(ctx context.Context, w io.Writer, registry *mode.Registry, sessionID string) error {
	states, err := registry.ActiveModes(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("listing modes: %w", err)
	}
	if len(states) == 0 {
		fmt.Fprintf(w, "No active modes for session %s.\n", sessionID)
		return nil
	}
	for _, s := range states {
		fmt.Fprintln(w, renderModeLine(s))
	}
	return nil
}

func newModesActivateCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "activate <mode>",
		Short: "Activate a mode for the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModesActivate(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), sessionID, args[0])
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (defaults to the last session seen by hooks)")

	return cmd
}

func runModesActivate(ctx context.Context, w, errW io.Writer, sessionFlag, modeName string) error {
	m, err := mode.Parse(modeName)
	if err != nil {
		fmt.Fprintf(errW, "Unknown mode %q. Valid modes: %s\n", modeName, joinModes(mode.All()))
		return NewSilentError(err)
	}
	sessionID, err := resolveSession(sessionFlag)
	if err != nil {
		return err
	}

	// An already active mode is a no-op, and taking a checkpoint for it
	// would just churn retention.
	already, err := isModeActive(ctx, sessionID, m)
	if err != nil {
		return err
	}
	if already {
		fmt.Fprintf(w, "%s is already active.\n", m)
		return nil
	}

	registry := mode.NewRegistry(mode.NewFileStoreForProject(""))
	state, err := registry.ActivateMode(ctx, sessionID, m)
	if err != nil {
		var conflict *mode.ConflictError
		if errors.As(err, &conflict) {
			fmt.Fprintf(errW, "Cannot activate %s: %s is already active and exclusive.\n", conflict.Requested, conflict.Active)
			fmt.Fprintf(errW, "Deactivate it first: omc modes deactivate %s\n", conflict.Active)
			return NewSilentError(NewExitCodeError(err, ExitCodeConflict))
		}
		return fmt.Errorf("activating %s: %w", m, err)
	}

	if state.Exclusive {
		fmt.Fprintf(w, "✓ %s activated (exclusive)\n", state.Mode)
	} else {
		fmt.Fprintf(w, "✓ %s activated\n", state.Mode)
	}

	// The mode set changed; snapshot it so recovery sees the new shape.
	svc := newCheckpointService("")
	if _, err := svc.Create(ctx, checkpoint.TriggerModeSwitch, sessionID, ""); err != nil {
		logging.Debug(ctx, "mode switch checkpoint skipped", slog.String("error", err.Error()))
	}
	return nil
}

func isModeActive(ctx context.Context, sessionID string, m mode.Mode) (bool, error) {
	registry := mode.NewRegistry(mode.NewFileStoreForProject(""))
	states, err := registry.ActiveModes(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("reading active modes: %w", err)
	}
	for _, s := range states {
		if s.Mode == m {
			return true, nil
		}
	}
	return false, nil
}

func newModesDeactivateCmd() *cobra.Command {
	var sessionID string
	var all bool

	cmd := &cobra.Command{
		Use:   "deactivate [mode]",
		Short: "Deactivate a mode (or all modes) for the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return runModesDeactivateAll(cmd.Context(), cmd.OutOrStdout(), sessionID)
			}
			if len(args) == 0 {
				return errors.New("specify a mode or use --all")
			}
			return runModesDeactivate(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), sessionID, args[0])
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (defaults to the last session seen by hooks)")
	cmd.Flags().BoolVar(&all, "all", false, "Deactivate every mode the session holds")

	return cmd
}

func runModesDeactivate(ctx context.Context, w, errW io.Writer, sessionFlag, modeName string) error {
	m, err := mode.Parse(modeName)
	if err != nil {
		fmt.Fprintf(errW, "Unknown mode %q. Valid modes: %s\n", modeName, joinModes(mode.All()))
		return NewSilentError(err)
	}
	sessionID, err := resolveSession(sessionFlag)
	if err != nil {
		return err
	}

	registry := mode.NewRegistry(mode.NewFileStoreForProject(""))
	if err := registry.DeactivateMode(ctx, sessionID, m); err != nil {
		return fmt.Errorf("deactivating %s: %w", m, err)
	}
	fmt.Fprintf(w, "✓ %s deactivated\n", m)
	return nil
}

func runModesDeactivateAll(ctx context.Context, w io.Writer, sessionFlag string) error {
	sessionID, err := resolveSession(sessionFlag)
	if err != nil {
		return err
	}

	registry := mode.NewRegistry(mode.NewFileStoreForProject(""))
	n, err := registry.DeactivateAll(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("deactivating modes: %w", err)
	}
	if n == 0 {
		fmt.Fprintln(w, "No active modes.")
		return nil
	}
	fmt.Fprintf(w, "✓ deactivated %d modes\n", n)
	return nil
}

func newModesCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale mode markers",
		Long:  "Remove activation markers older than one hour. Hooks run the same sweep before every mode operation; this command forces one by hand.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModesCleanup(cmd.Context(), cmd.OutOrStdout())
		},
	}
	return cmd
}

func runModesCleanup(ctx context.Context, w io.Writer) error {
	registry := mode.NewRegistry(mode.NewFileStoreForProject(""))
	n, err := registry.CleanupStale(ctx)
	if err != nil {
		return fmt.Errorf("sweeping stale markers: %w", err)
	}
	if n == 0 {
		fmt.Fprintln(w, "No stale markers.")
		return nil
	}
	fmt.Fprintf(w, "✓ removed stale markers (%d)\n", n)
	return nil
}

func joinModes(modes []mode.Mode) string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}
