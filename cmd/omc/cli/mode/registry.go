package mode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omchq/omc/cmd/omc/cli/logging"
)

// ErrModeConflict is returned when an exclusive mode is requested while a
// different exclusive mode holds the session.
var ErrModeConflict = errors.New("exclusive mode already active")

// ConflictError reports which mode blocked an exclusive activation.
type ConflictError struct {
	SessionID string
	Requested Mode
	Active    Mode
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot activate %s for session %s: %s is already active", e.Requested, e.SessionID, e.Active)
}

func (e *ConflictError) Unwrap() error {
	return ErrModeConflict
}

// Registry coordinates mode activation on top of a Store. Exclusivity is
// enforced through the store's slot so the guarantee holds across processes,
// not just within one.
type Registry struct {
	store Store
	now   func() time.Time
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// ActivateMode activates m for the session and returns the resulting state.
//
// Activating an already-active mode is a no-op that returns the existing
// state unchanged. Activating an exclusive mode while a different exclusive
// mode holds the session returns a *ConflictError wrapping ErrModeConflict.
func (r *Registry) ActivateMode(ctx context.Context, sessionID string, m Mode) (*State, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, m)
	}
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	// Expired markers must not block new activations, so sweep before
	// looking at the current set. Failure here is logged, not fatal.
	if _, err := r.store.Sweep(ctx, r.now().Add(-StaleAfter)); err != nil {
		logging.Debug(ctx, "stale mode sweep failed", slog.String("error", err.Error()))
	}

	existing, err := r.store.Load(ctx, sessionID, m)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Active {
		return existing, nil
	}

	if m.Exclusive() {
		holder, err := r.store.AcquireSlot(ctx, sessionID, m)
		if err != nil {
			return nil, err
		}
		if holder != m {
			return nil, &ConflictError{SessionID: sessionID, Requested: m, Active: holder}
		}
	}

	state := &State{
		SessionID:   sessionID,
		Mode:        m,
		Exclusive:   m.Exclusive(),
		Active:      true,
		ActivatedAt: r.now().UTC(),
	}
	if err := r.store.Save(ctx, state); err != nil {
		if m.Exclusive() {
			// Keep the slot consistent with the (absent) marker.
			_ = r.store.ReleaseSlot(ctx, sessionID, m)
		}
		return nil, err
	}
	logging.Info(ctx, "mode activated",
		slog.String("mode", string(m)), slog.Bool("exclusive", m.Exclusive()))
	return state, nil
}

// DeactivateMode deactivates m for the session. Deactivating a mode that is
// not active is a no-op.
func (r *Registry) DeactivateMode(ctx context.Context, sessionID string, m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, m)
	}
	if err := r.store.Delete(ctx, sessionID, m); err != nil {
		return err
	}
	logging.Info(ctx, "mode deactivated", slog.String("mode", string(m)))
	return nil
}

// DeactivateAll deactivates every active mode for the session and returns
// how many were active.
func (r *Registry) DeactivateAll(ctx context.Context, sessionID string) (int, error) {
	states, err := r.store.List(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	for _, state := range states {
		if err := r.store.Delete(ctx, sessionID, state.Mode); err != nil {
			return 0, err
		}
	}
	if len(states) > 0 {
		logging.Info(ctx, "all modes deactivated", slog.Int("count", len(states)))
	}
	return len(states), nil
}

// ActiveModes returns the session's active modes, oldest activation first.
// Markers past the staleness window are swept, not reported.
func (r *Registry) ActiveModes(ctx context.Context, sessionID string) ([]*State, error) {
	if _, err := r.store.Sweep(ctx, r.now().Add(-StaleAfter)); err != nil {
		logging.Debug(ctx, "stale mode sweep failed", slog.String("error", err.Error()))
	}
	states, err := r.store.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var out []*State
	for _, state := range states {
		if state.Active {
			out = append(out, state)
		}
	}
	return out, nil
}

// AllActive returns active modes across every session, oldest first.
func (r *Registry) AllActive(ctx context.Context) ([]*State, error) {
	if _, err := r.store.Sweep(ctx, r.now().Add(-StaleAfter)); err != nil {
		logging.Debug(ctx, "stale mode sweep failed", slog.String("error", err.Error()))
	}
	states, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*State
	for _, state := range states {
		if state.Active {
			out = append(out, state)
		}
	}
	return out, nil
}

// CanStart reports whether m could activate for the session right now,
// without activating it.
func (r *Registry) CanStart(ctx context.Context, sessionID string, m Mode) (bool, error) {
	if !m.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownMode, m)
	}
	if !m.Exclusive() {
		return true, nil
	}
	states, err := r.ActiveModes(ctx, sessionID)
	if err != nil {
		return false, err
	}
	for _, state := range states {
		if state.Exclusive && state.Mode != m {
			return false, nil
		}
	}
	return true, nil
}

// CleanupStale removes markers older than the staleness window across all
// sessions and returns how many were removed.
func (r *Registry) CleanupStale(ctx context.Context) (int, error) {
	return r.store.Sweep(ctx, r.now().Add(-StaleAfter))
}
