package cli

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/omchq/omc/cmd/omc/cli/hook"
	"github.com/omchq/omc/cmd/omc/cli/logging"
	"github.com/omchq/omc/cmd/omc/cli/paths"
	"github.com/omchq/omc/cmd/omc/cli/settings"
)

// hookLogCleanup stores the cleanup function for hook logging.
// Set by PersistentPreRunE, called by PersistentPostRunE.
var hookLogCleanup func()

// initHookLogging routes log output to the project log file for the duration
// of a hook invocation. The level comes from settings (log_level), with
// OMC_DEBUG=1 forcing debug. Returns a cleanup that closes the file.
func initHookLogging() func() {
	level := slog.LevelInfo
	if st, err := settings.Load(""); err == nil {
		level = logging.ParseLevel(st.LogLevel)
	}
	if os.Getenv("OMC_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return logging.InitFile(paths.LogFile(""), level)
}

// newHooksCmd creates the hidden parent for the hook wrappers the host agent
// calls. One subcommand per lifecycle event.
func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hooks",
		Short:  "Lifecycle hook handlers",
		Hidden: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			hookLogCleanup = initHookLogging()
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if hookLogCleanup != nil {
				hookLogCleanup()
			}
			return nil
		},
	}

	for _, eventType := range hook.Types() {
		cmd.AddCommand(newHookVerbCmd(eventType))
	}

	return cmd
}

// newHookVerbCmd creates the wrapper command for one hook event. The wrapper
// reads the host payload from stdin, dispatches, and prints the response as
// JSON. It always exits 0: a coordination failure must never break the
// agent's session, and the response body already says what happened.
func newHookVerbCmd(eventType hook.EventType) *cobra.Command {
	return &cobra.Command{
		Use:   string(eventType),
		Short: "Called on " + string(eventType),
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			ctx := logging.WithComponent(cmd.Context(), "hooks")

			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				logging.Warn(ctx, "hook payload unreadable", slog.String("error", err.Error()))
				raw = nil
			}
			ev := hook.ParseEvent(eventType, raw)

			logging.Debug(ctx, "hook invoked",
				slog.String("hook", string(eventType)),
				slog.Int("payload_bytes", len(raw)),
			)

			resp := hook.NewDispatcherForProject(ev.ProjectPath).Dispatch(ctx, ev)

			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(resp); err != nil {
				logging.Error(ctx, "hook response not written", slog.String("error", err.Error()))
			}

			logging.LogDuration(ctx, slog.LevelDebug, "hook completed", start,
				slog.String("hook", string(eventType)),
				slog.Bool("success", resp.Success),
			)

			return nil
		},
	}
}
