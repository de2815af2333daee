package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
)

// IsAccessibleMode returns true if accessibility mode should be enabled.
// Set ACCESSIBLE=1 (or any non-empty value) to get simpler prompts that
// work better with screen readers.
func IsAccessibleMode() bool {
	return os.Getenv("ACCESSIBLE") != ""
}

// omcTheme returns the Dracula theme for consistent styling.
func omcTheme() *huh.Theme {
	return huh.ThemeDracula()
}

// NewAccessibleForm creates a huh form with accessibility mode enabled if
// the ACCESSIBLE environment variable is set. WithAccessible() is only
// available on forms, not individual fields, so confirmations always go
// through a form.
func NewAccessibleForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...).WithTheme(omcTheme())
	if IsAccessibleMode() {
		form = form.WithAccessible(true)
	}
	return form
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// humanizeSince renders how long ago t was, coarsely. Anything under a
// minute reads "just now".
func humanizeSince(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
