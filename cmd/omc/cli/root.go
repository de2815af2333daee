// Package cli implements the omc command tree.
//
// Two kinds of commands live here: hidden hook wrappers invoked by the host
// agent (omc hooks <event>), and management commands people run by hand
// (enable, status, modes, checkpoints, recover). Hook wrappers never fail
// the process; management commands report errors through main.go.
package cli

import (
	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// NewRootCmd builds the omc command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "omc",
		Short: "Session coordination for agent workflows",
		Long: `omc coordinates agent sessions: workflow modes, keyword triggers,
stop decisions, and session checkpoints.

The host agent drives omc through lifecycle hooks (omc hooks <event>).
The commands below inspect and manage the same state by hand.`,
		Version: version,
		// main.go prints errors exactly once; keep cobra quiet.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(newEnableCmd())
	rootCmd.AddCommand(newDisableCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newModesCmd())
	rootCmd.AddCommand(newCheckpointsCmd())
	rootCmd.AddCommand(newRecoverCmd())
	rootCmd.AddCommand(newHooksCmd())

	return rootCmd
}
