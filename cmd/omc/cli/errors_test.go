package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestSilentError(t *testing.T) {
	t.Parallel()

	t.Run("carries message and unwraps", func(t *testing.T) {
		t.Parallel()

		inner := errors.New("not inside a project")
		silent := NewSilentError(inner)

		if silent.Error() != "not inside a project" {
			t.Errorf("Error() = %q, want %q", silent.Error(), "not inside a project")
		}
		if !errors.Is(silent, inner) {
			t.Error("expected errors.Is to reach the inner error")
		}
	})

	t.Run("detectable with errors.As", func(t *testing.T) {
		t.Parallel()

		silent := NewSilentError(errors.New("already printed"))

		var target *SilentError
		if !errors.As(silent, &target) {
			t.Error("expected errors.As to find SilentError")
		}
	})
}

func TestExitCodeError(t *testing.T) {
	t.Parallel()

	t.Run("carries code and message", func(t *testing.T) {
		t.Parallel()

		exitErr := NewExitCodeError(errors.New("swarm blocked by autopilot"), ExitCodeConflict)

		if exitErr.ExitCode != ExitCodeConflict {
			t.Errorf("ExitCode = %d, want %d", exitErr.ExitCode, ExitCodeConflict)
		}
		if exitErr.Error() != "swarm blocked by autopilot" {
			t.Errorf("Error() = %q", exitErr.Error())
		}
	})

	t.Run("detectable through SilentError", func(t *testing.T) {
		t.Parallel()

		// A conflict prints its own message, so commands wrap the exit code
		// error in a SilentError. main.go must still see the code.
		exitErr := NewExitCodeError(errors.New("conflict"), ExitCodeConflict)
		silent := NewSilentError(exitErr)

		var target *ExitCodeError
		if !errors.As(silent, &target) {
			t.Fatal("expected errors.As to find ExitCodeError through SilentError")
		}
		if target.ExitCode != ExitCodeConflict {
			t.Errorf("ExitCode = %d, want %d", target.ExitCode, ExitCodeConflict)
		}
	})

	t.Run("detectable through fmt.Errorf wrapping", func(t *testing.T) {
		t.Parallel()

		exitErr := NewExitCodeError(errors.New("root cause"), 3)
		wrapped := fmt.Errorf("activate: %w", exitErr)

		var target *ExitCodeError
		if !errors.As(wrapped, &target) {
			t.Fatal("expected errors.As to find ExitCodeError through fmt.Errorf")
		}
		if target.ExitCode != 3 {
			t.Errorf("ExitCode = %d, want 3", target.ExitCode)
		}
	})
}
