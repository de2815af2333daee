package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/omchq/omc/cmd/omc/cli/checkpoint"
	"github.com/omchq/omc/cmd/omc/cli/mode"
	"github.com/omchq/omc/cmd/omc/cli/paths"
)

func TestRunModesActivate_ActivatesAndCheckpoints(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)
	ctx := context.Background()

	if err := paths.WriteCurrentSession("", "s1"); err != nil {
		t.Fatalf("recording session: %v", err)
	}

	var out, errOut bytes.Buffer
	if err := runModesActivate(ctx, &out, &errOut, "", "autopilot"); err != nil {
		t.Fatalf("runModesActivate() error = %v", err)
	}
	if !strings.Contains(out.String(), "✓ autopilot activated (exclusive)") {
		t.Errorf("output = %q", out.String())
	}

	cps, err := newCheckpointService("").List(ctx, "s1")
	if err != nil {
		t.Fatalf("listing checkpoints: %v", err)
	}
	if len(cps) != 1 || cps[0].Trigger != checkpoint.TriggerModeSwitch {
		t.Errorf("expected one mode-switch checkpoint, got %+v", cps)
	}
}

func TestRunModesActivate_SecondExclusiveConflicts(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)
	ctx := context.Background()

	if err := paths.WriteCurrentSession("", "s1"); err != nil {
		t.Fatalf("recording session: %v", err)
	}

	var out, errOut bytes.Buffer
	if err := runModesActivate(ctx, &out, &errOut, "", "autopilot"); err != nil {
		t.Fatalf("activating autopilot: %v", err)
	}

	err := runModesActivate(ctx, &out, &errOut, "", "swarm")
	if err == nil {
		t.Fatal("expected a conflict error")
	}

	var silent *SilentError
	if !errors.As(err, &silent) {
		t.Error("conflict should be silent; the command already printed it")
	}
	var exitErr *ExitCodeError
	if !errors.As(err, &exitErr) || exitErr.ExitCode != ExitCodeConflict {
		t.Errorf("expected exit code %d, got %v", ExitCodeConflict, err)
	}
	if !strings.Contains(errOut.String(), "autopilot is already active and exclusive") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRunModesActivate_AlreadyActiveIsNoOp(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)
	ctx := context.Background()

	if err := paths.WriteCurrentSession("", "s1"); err != nil {
		t.Fatalf("recording session: %v", err)
	}

	var out, errOut bytes.Buffer
	if err := runModesActivate(ctx, &out, &errOut, "", "ralph"); err != nil {
		t.Fatalf("first activation: %v", err)
	}
	out.Reset()
	if err := runModesActivate(ctx, &out, &errOut, "", "ralph"); err != nil {
		t.Fatalf("second activation: %v", err)
	}
	if !strings.Contains(out.String(), "already active") {
		t.Errorf("output = %q", out.String())
	}

	// Reactivation is not a mode switch; only the first activation snapshots.
	cps, err := newCheckpointService("").List(ctx, "s1")
	if err != nil {
		t.Fatalf("listing checkpoints: %v", err)
	}
	if len(cps) != 1 {
		t.Errorf("checkpoint count = %d, want 1", len(cps))
	}
}

func TestRunModesActivate_UnknownMode(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)

	var out, errOut bytes.Buffer
	err := runModesActivate(context.Background(), &out, &errOut, "s1", "warp")
	if err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
	var silent *SilentError
	if !errors.As(err, &silent) {
		t.Errorf("expected SilentError, got %v", err)
	}
	if !strings.Contains(errOut.String(), "Valid modes:") {
		t.Errorf("stderr = %q, want the valid mode list", errOut.String())
	}
}

func TestRunModesDeactivate_Idempotent(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)
	ctx := context.Background()

	var out, errOut bytes.Buffer
	if err := runModesActivate(ctx, &out, &errOut, "s1", "team"); err != nil {
		t.Fatalf("activating team: %v", err)
	}

	for range 2 {
		out.Reset()
		if err := runModesDeactivate(ctx, &out, &errOut, "s1", "team"); err != nil {
			t.Fatalf("runModesDeactivate() error = %v", err)
		}
		if !strings.Contains(out.String(), "✓ team deactivated") {
			t.Errorf("output = %q", out.String())
		}
	}
}

func TestRunModesDeactivateAll(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)
	ctx := context.Background()

	var out, errOut bytes.Buffer
	if err := runModesActivate(ctx, &out, &errOut, "s1", "ralph"); err != nil {
		t.Fatalf("activating ralph: %v", err)
	}
	if err := runModesActivate(ctx, &out, &errOut, "s1", "team"); err != nil {
		t.Fatalf("activating team: %v", err)
	}

	out.Reset()
	if err := runModesDeactivateAll(ctx, &out, "s1"); err != nil {
		t.Fatalf("runModesDeactivateAll() error = %v", err)
	}
	if !strings.Contains(out.String(), "deactivated 2 modes") {
		t.Errorf("output = %q", out.String())
	}

	states, err := mode.NewRegistry(mode.NewFileStoreForProject("")).ActiveModes(ctx, "s1")
	if err != nil {
		t.Fatalf("listing modes: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("expected no active modes, got %+v", states)
	}
}

func TestRunModesCleanup_SweepsStale(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)
	ctx := context.Background()

	store := mode.NewFileStoreForProject("")
	stale := &mode.State{
		SessionID:   "old",
		Mode:        mode.Ralph,
		Active:      true,
		ActivatedAt: time.Now().Add(-2 * time.Hour),
	}
	if err := store.Save(ctx, stale); err != nil {
		t.Fatalf("seeding stale marker: %v", err)
	}
	fresh := &mode.State{
		SessionID:   "new",
		Mode:        mode.Team,
		Active:      true,
		ActivatedAt: time.Now(),
	}
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatalf("seeding fresh marker: %v", err)
	}

	var out bytes.Buffer
	if err := runModesCleanup(ctx, &out); err != nil {
		t.Fatalf("runModesCleanup() error = %v", err)
	}
	if !strings.Contains(out.String(), "stale markers (1)") {
		t.Errorf("output = %q", out.String())
	}

	states, err := mode.NewRegistry(store).AllActive(ctx)
	if err != nil {
		t.Fatalf("listing modes: %v", err)
	}
	if len(states) != 1 || states[0].Mode != mode.Team {
		t.Errorf("expected only the fresh marker to survive, got %+v", states)
	}
}

func TestRunModesList_ScopedAndAll(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)
	ctx := context.Background()

	registry := mode.NewRegistry(mode.NewFileStoreForProject(""))
	if _, err := registry.ActivateMode(ctx, "s1", mode.Ralph); err != nil {
		t.Fatalf("activating ralph: %v", err)
	}
	if _, err := registry.ActivateMode(ctx, "s2", mode.Team); err != nil {
		t.Fatalf("activating team: %v", err)
	}

	var out bytes.Buffer
	if err := runModesList(ctx, &out, "s1", false); err != nil {
		t.Fatalf("runModesList() error = %v", err)
	}
	if !strings.Contains(out.String(), "ralph") || strings.Contains(out.String(), "team") {
		t.Errorf("scoped list = %q", out.String())
	}

	out.Reset()
	if err := runModesList(ctx, &out, "", true); err != nil {
		t.Fatalf("runModesList(all) error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "ralph") || !strings.Contains(got, "team") {
		t.Errorf("all list = %q", got)
	}
	if !strings.Contains(got, "session s1") || !strings.Contains(got, "session s2") {
		t.Errorf("all list missing session labels: %q", got)
	}
}
