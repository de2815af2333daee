package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/omchq/omc/cmd/omc/cli/checkpoint"
	"github.com/omchq/omc/cmd/omc/cli/mode"
	"github.com/omchq/omc/cmd/omc/cli/paths"
	"github.com/omchq/omc/cmd/omc/cli/settings"
	"github.com/omchq/omc/cmd/omc/cli/todo"
	"github.com/omchq/omc/cmd/omc/cli/workflow"
)

// stateGitignore keeps per-machine session state out of the repository while
// leaving settings.json committable.
const stateGitignore = `# Managed by omc. Local session state; safe to delete.
settings.local.json
current_session
logs/
checkpoints/
modes/
workflow/
todos/
`

func newEnableCmd() *cobra.Command {
	var useLocalSettings bool
	var useProjectSettings bool
	var force bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable omc",
		Long: `Enable omc for this project: create the .omc state directory and write
default settings so the host agent's hooks start coordinating sessions.

Settings normally go to .omc/settings.json. When a project settings file
already exists, updates are redirected to .omc/settings.local.json unless
--project is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateSetupFlags(useLocalSettings, useProjectSettings); err != nil {
				return err
			}
			if !yes {
				confirmed, err := confirmEnable(paths.Dir(""))
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "Enable cancelled.")
					return nil
				}
			}
			return runEnable(cmd.OutOrStdout(), useLocalSettings, useProjectSettings, force)
		},
	}

	cmd.Flags().BoolVar(&useLocalSettings, "local", false, "Write settings to settings.local.json instead of settings.json")
	cmd.Flags().BoolVar(&useProjectSettings, "project", false, "Write settings to settings.json even if it already exists")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reset settings to defaults instead of preserving existing options")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func newDisableCmd() *cobra.Command {
	var useProjectSettings bool
	var uninstall bool
	var force bool

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable omc",
		Long: `Disable omc temporarily. Hooks become no-ops; session state stays on disk.

Use --uninstall to completely remove omc from this project, including:
  - .omc/ directory (settings, logs)
  - Mode activation markers
  - Session checkpoints`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uninstall {
				return runUninstall(cmd.OutOrStdout(), cmd.ErrOrStderr(), force)
			}
			return runDisable(cmd.OutOrStdout(), useProjectSettings)
		},
	}

	cmd.Flags().BoolVar(&useProjectSettings, "project", false, "Update settings.json instead of settings.local.json")
	cmd.Flags().BoolVar(&uninstall, "uninstall", false, "Completely remove omc from this project")
	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt (use with --uninstall)")

	return cmd
}

// confirmEnable asks before touching the project. Returns the user's choice.
func confirmEnable(stateDir string) (bool, error) {
	confirmed := true
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable omc in this project?").
				Description("Creates " + stateDir + " and writes default settings.").
				Affirmative("Yes").
				Negative("No").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirmation cancelled: %w", err)
	}
	return confirmed, nil
}

func runEnable(w io.Writer, useLocalSettings, useProjectSettings, force bool) error {
	dirCreated, err := setupStateDirectory()
	if err != nil {
		return fmt.Errorf("failed to setup .omc directory: %w", err)
	}
	if dirCreated {
		fmt.Fprintln(w, "✓ .omc directory created")
	} else {
		fmt.Fprintln(w, "✓ .omc directory verified")
	}

	// Preserve existing options (hook overrides, keyword rules) unless the
	// user asked for a clean slate.
	st := settings.Default()
	if !force {
		loaded, err := settings.Load("")
		if err == nil {
			st = loaded
		}
	}
	st.Enabled = true

	shouldUseLocal, showNotification := determineSettingsTarget(paths.Dir(""), useLocalSettings, useProjectSettings)
	if showNotification {
		fmt.Fprintln(w, "Info: Project settings exist. Saving to settings.local.json instead.")
		fmt.Fprintln(w, "  Use --project to update the project settings file.")
	}

	if shouldUseLocal {
		if err := settings.SaveLocal("", st); err != nil {
			return fmt.Errorf("failed to save local settings: %w", err)
		}
		fmt.Fprintln(w, "✓ Local settings saved (.omc/settings.local.json)")
	} else {
		if err := settings.Save("", st); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Fprintln(w, "✓ Project settings saved (.omc/settings.json)")
	}

	fmt.Fprintln(w, "\n✓ omc enabled")
	return nil
}

func runDisable(w io.Writer, useProjectSettings bool) error {
	st, err := settings.Load("")
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	st.Enabled = false

	// Default to the local overlay so disabling one checkout does not edit
	// the committed settings file.
	if useProjectSettings {
		if err := settings.Save("", st); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
	} else {
		if err := settings.SaveLocal("", st); err != nil {
			return fmt.Errorf("failed to save local settings: %w", err)
		}
	}

	fmt.Fprintln(w, "omc is now disabled.")
	return nil
}

// runUninstall completely removes omc state from the project.
func runUninstall(w, errW io.Writer, force bool) error {
	stateDir := paths.Dir("")
	stateDirExists := fileExists(stateDir)

	activeModes := countActiveModes()
	checkpoints := countCheckpoints()

	if !stateDirExists {
		fmt.Fprintln(w, "omc is not installed in this project.")
		return nil
	}

	if !force {
		fmt.Fprintln(w, "\nThis will completely remove omc from this project:")
		fmt.Fprintln(w, "  - .omc/ directory (settings, logs)")
		if activeModes > 0 {
			fmt.Fprintf(w, "  - Active mode markers (%d)\n", activeModes)
		}
		if checkpoints > 0 {
			fmt.Fprintf(w, "  - Session checkpoints (%d)\n", checkpoints)
		}
		fmt.Fprintln(w)

		var confirmed bool
		form := NewAccessibleForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Are you sure you want to uninstall omc?").
					Affirmative("Yes, uninstall").
					Negative("Cancel").
					Value(&confirmed),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("confirmation cancelled: %w", err)
		}
		if !confirmed {
			fmt.Fprintln(w, "Uninstall cancelled.")
			return nil
		}
	}

	fmt.Fprintln(w, "\nUninstalling omc...")

	if err := os.RemoveAll(stateDir); err != nil {
		fmt.Fprintf(errW, "Warning: failed to remove %s: %v\n", stateDir, err)
		return NewSilentError(errors.New("uninstall incomplete"))
	}
	fmt.Fprintln(w, "  Removed .omc directory")

	fmt.Fprintln(w, "\nomc uninstalled successfully.")
	return nil
}

// validateSetupFlags checks that --local and --project are not both given.
func validateSetupFlags(useLocal, useProject bool) error {
	if useLocal && useProject {
		return errors.New("cannot specify both --project and --local")
	}
	return nil
}

// determineSettingsTarget decides whether to write to settings.local.json:
// explicit flags win; without flags an existing settings.json redirects the
// write to the local overlay, with a notification.
func determineSettingsTarget(stateDir string, useLocal, useProject bool) (shouldUseLocal, showNotification bool) {
	if useLocal {
		return true, false
	}
	if useProject {
		return false, false
	}
	if fileExists(filepath.Join(stateDir, paths.SettingsFileName)) {
		return true, true
	}
	return false, false
}

// setupStateDirectory creates the .omc tree and its gitignore.
// Returns true if the directory was created, false if it already existed.
func setupStateDirectory() (bool, error) {
	created := !fileExists(paths.Dir(""))

	if err := paths.EnsureStateDirs(""); err != nil {
		return false, err
	}

	gitignore := filepath.Join(paths.Dir(""), ".gitignore")
	if !fileExists(gitignore) {
		if err := os.WriteFile(gitignore, []byte(stateGitignore), 0o600); err != nil {
			return false, fmt.Errorf("failed to write %s: %w", gitignore, err)
		}
	}

	return created, nil
}

// countActiveModes returns the number of live mode markers, for the
// uninstall summary. Errors read as zero.
func countActiveModes() int {
	registry := mode.NewRegistry(mode.NewFileStoreForProject(""))
	states, err := registry.AllActive(context.Background())
	if err != nil {
		return 0
	}
	return len(states)
}

// countCheckpoints returns the number of stored checkpoints across sessions.
func countCheckpoints() int {
	svc := newCheckpointService("")
	cps, err := svc.ListAll(context.Background())
	if err != nil {
		return 0
	}
	return len(cps)
}

// newCheckpointService wires the checkpoint service the way the hook
// dispatcher does, honoring the configured retention cap.
func newCheckpointService(projectPath string) *checkpoint.Service {
	modes := mode.NewRegistry(mode.NewFileStoreForProject(projectPath))
	wf := workflow.NewFileProviderForProject(projectPath)
	todos := todo.NewFileProviderForProject(projectPath)
	svc := checkpoint.NewServiceForProject(projectPath, modes, wf, todos)
	if st, err := settings.Load(projectPath); err == nil {
		svc.Retention = st.Retention()
	}
	return svc
}
