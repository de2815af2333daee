package cli

// SilentError marks an error whose message was already printed by the
// command. main.go checks for it so the user does not see the same failure
// twice.
type SilentError struct {
	Err error
}

func (e *SilentError) Error() string {
	return e.Err.Error()
}

func (e *SilentError) Unwrap() error {
	return e.Err
}

// NewSilentError wraps err for commands that print their own message.
func NewSilentError(err error) *SilentError {
	return &SilentError{Err: err}
}

// Exit codes beyond the generic 1. Scripts driving omc distinguish a mode
// exclusivity conflict from an ordinary failure by the exit code.
const ExitCodeConflict = 2

// ExitCodeError carries a specific process exit code up to main.go.
// Without it every failed command exits 1.
type ExitCodeError struct {
	Err      error
	ExitCode int
}

func (e *ExitCodeError) Error() string {
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// NewExitCodeError wraps err with the exit code main.go should use.
func NewExitCodeError(err error, code int) *ExitCodeError {
	return &ExitCodeError{Err: err, ExitCode: code}
}
