package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/omchq/omc/cmd/omc/cli/paths"
	"github.com/omchq/omc/cmd/omc/cli/recovery"
)

func newRecoverCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Show the resume context from the latest checkpoint",
		Long: `Print the recovery context a resumed session would receive: active modes,
workflow position, and todo counts from the latest checkpoint.

Reading is side-effect free. The checkpoint store is not modified.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecover(cmd.Context(), cmd.OutOrStdout(), sessionID)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (defaults to the last session seen by hooks)")

	return cmd
}

func runRecover(ctx context.Context, w io.Writer, sessionFlag string) error {
	handler := recovery.NewHandler(newCheckpointService(""))

	sessionID := sessionFlag
	if sessionID == "" {
		sessionID, _ = paths.ReadCurrentSession("")
	}

	var msg *recovery.Message
	var err error
	if sessionID != "" {
		msg, err = handler.CheckRecovery(ctx, sessionID)
	} else {
		// No session to scope by; fall back to the newest checkpoint anywhere.
		msg, err = handler.LatestAcrossSessions(ctx)
	}
	if err != nil {
		return fmt.Errorf("reading checkpoints: %w", err)
	}
	if msg == nil {
		fmt.Fprintln(w, "Nothing to recover: no checkpoints found.")
		return nil
	}

	fmt.Fprintln(w, msg.Markdown)
	return nil
}
