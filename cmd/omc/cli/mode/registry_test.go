package mode

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registryStores returns one registry per store implementation so every case
// runs against both the file-backed and the in-memory store.
func registryStores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"file":   NewFileStore(filepath.Join(t.TempDir(), "modes")),
		"memory": NewMemoryStore(),
	}
}

func TestRegistry_ActivateMode(t *testing.T) {
	t.Parallel()

	for storeName, store := range registryStores(t) {
		t.Run(storeName, func(t *testing.T) {
			r := NewRegistry(store)
			ctx := context.Background()

			state, err := r.ActivateMode(ctx, "s1", Ralph)
			require.NoError(t, err)
			require.NotNil(t, state)
			assert.Equal(t, Ralph, state.Mode)
			assert.True(t, state.Active)
			assert.False(t, state.Exclusive)
			assert.False(t, state.ActivatedAt.IsZero())

			active, err := r.ActiveModes(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, Ralph, active[0].Mode)
		})
	}
}

func TestRegistry_ActivateMode_Idempotent(t *testing.T) {
	t.Parallel()

	for storeName, store := range registryStores(t) {
		t.Run(storeName, func(t *testing.T) {
			r := NewRegistry(store)
			ctx := context.Background()

			first, err := r.ActivateMode(ctx, "s1", Autopilot)
			require.NoError(t, err)

			second, err := r.ActivateMode(ctx, "s1", Autopilot)
			require.NoError(t, err)
			assert.True(t, second.ActivatedAt.Equal(first.ActivatedAt),
				"re-activation must not refresh the timestamp")

			active, err := r.ActiveModes(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, active, 1)
		})
	}
}

func TestRegistry_ActivateMode_RejectsUnknown(t *testing.T) {
	t.Parallel()

	r := NewRegistry(NewMemoryStore())
	_, err := r.ActivateMode(context.Background(), "s1", Mode("warp"))
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = r.ActivateMode(context.Background(), "", Ralph)
	assert.Error(t, err)
}

func TestRegistry_ExclusiveConflict(t *testing.T) {
	t.Parallel()

	for storeName, store := range registryStores(t) {
		t.Run(storeName, func(t *testing.T) {
			r := NewRegistry(store)
			ctx := context.Background()

			_, err := r.ActivateMode(ctx, "s1", Autopilot)
			require.NoError(t, err)

			_, err = r.ActivateMode(ctx, "s1", Swarm)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrModeConflict)

			var conflict *ConflictError
			require.True(t, errors.As(err, &conflict))
			assert.Equal(t, Swarm, conflict.Requested)
			assert.Equal(t, Autopilot, conflict.Active)

			// The losing activation leaves no marker behind.
			active, err := r.ActiveModes(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, Autopilot, active[0].Mode)
		})
	}
}

func TestRegistry_ExclusiveAndNonExclusiveCoexist(t *testing.T) {
	t.Parallel()

	for storeName, store := range registryStores(t) {
		t.Run(storeName, func(t *testing.T) {
			r := NewRegistry(store)
			ctx := context.Background()

			_, err := r.ActivateMode(ctx, "s1", Pipeline)
			require.NoError(t, err)
			_, err = r.ActivateMode(ctx, "s1", Ultrawork)
			require.NoError(t, err)
			_, err = r.ActivateMode(ctx, "s1", Ultraqa)
			require.NoError(t, err)

			active, err := r.ActiveModes(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, active, 3)
		})
	}
}

func TestRegistry_ExclusiveIsPerSession(t *testing.T) {
	t.Parallel()

	for storeName, store := range registryStores(t) {
		t.Run(storeName, func(t *testing.T) {
			r := NewRegistry(store)
			ctx := context.Background()

			_, err := r.ActivateMode(ctx, "s1", Autopilot)
			require.NoError(t, err)
			_, err = r.ActivateMode(ctx, "s2", Swarm)
			require.NoError(t, err, "a different session must not be blocked")
		})
	}
}

func TestRegistry_DeactivateFreesExclusiveSlot(t *testing.T) {
	t.Parallel()

	for storeName, store := range registryStores(t) {
		t.Run(storeName, func(t *testing.T) {
			r := NewRegistry(store)
			ctx := context.Background()

			_, err := r.ActivateMode(ctx, "s1", Autopilot)
			require.NoError(t, err)
			require.NoError(t, r.DeactivateMode(ctx, "s1", Autopilot))

			_, err = r.ActivateMode(ctx, "s1", Swarm)
			require.NoError(t, err, "slot must be free after deactivation")

			// Deactivating an inactive mode is a no-op.
			require.NoError(t, r.DeactivateMode(ctx, "s1", Autopilot))
		})
	}
}

func TestRegistry_DeactivateAll(t *testing.T) {
	t.Parallel()

	for storeName, store := range registryStores(t) {
		t.Run(storeName, func(t *testing.T) {
			r := NewRegistry(store)
			ctx := context.Background()

			for _, m := range []Mode{Swarm, Ralph, Team} {
				_, err := r.ActivateMode(ctx, "s1", m)
				require.NoError(t, err)
			}
			_, err := r.ActivateMode(ctx, "s2", Ultraqa)
			require.NoError(t, err)

			count, err := r.DeactivateAll(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 3, count)

			active, err := r.ActiveModes(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, active)

			other, err := r.ActiveModes(ctx, "s2")
			require.NoError(t, err)
			assert.Len(t, other, 1, "other sessions must be untouched")

			count, err = r.DeactivateAll(ctx, "s1")
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestRegistry_CanStart(t *testing.T) {
	t.Parallel()

	for storeName, store := range registryStores(t) {
		t.Run(storeName, func(t *testing.T) {
			r := NewRegistry(store)
			ctx := context.Background()

			ok, err := r.CanStart(ctx, "s1", Autopilot)
			require.NoError(t, err)
			assert.True(t, ok)

			_, err = r.ActivateMode(ctx, "s1", Autopilot)
			require.NoError(t, err)

			ok, err = r.CanStart(ctx, "s1", Swarm)
			require.NoError(t, err)
			assert.False(t, ok, "a second exclusive mode cannot start")

			ok, err = r.CanStart(ctx, "s1", Autopilot)
			require.NoError(t, err)
			assert.True(t, ok, "the active exclusive mode can re-start")

			ok, err = r.CanStart(ctx, "s1", Ralph)
			require.NoError(t, err)
			assert.True(t, ok, "non-exclusive modes are never blocked")

			active, err := r.ActiveModes(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, active, 1, "CanStart must not activate anything")
		})
	}
}

func TestRegistry_StaleMarkersSweptOnActivation(t *testing.T) {
	t.Parallel()

	for storeName, store := range registryStores(t) {
		t.Run(storeName, func(t *testing.T) {
			ctx := context.Background()
			stale := &State{
				SessionID:   "s1",
				Mode:        Autopilot,
				Exclusive:   true,
				Active:      true,
				ActivatedAt: time.Now().UTC().Add(-2 * time.Hour),
			}
			require.NoError(t, store.Save(ctx, stale))
			_, err := store.AcquireSlot(ctx, "s1", Autopilot)
			require.NoError(t, err)

			r := NewRegistry(store)
			state, err := r.ActivateMode(ctx, "s1", Swarm)
			require.NoError(t, err, "a stale exclusive mode must not block activation")
			assert.Equal(t, Swarm, state.Mode)

			active, err := r.ActiveModes(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, Swarm, active[0].Mode)
		})
	}
}

func TestRegistry_CleanupStale(t *testing.T) {
	t.Parallel()

	for storeName, store := range registryStores(t) {
		t.Run(storeName, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			require.NoError(t, store.Save(ctx, &State{
				SessionID: "old", Mode: Ralph, Active: true, ActivatedAt: now.Add(-90 * time.Minute),
			}))
			require.NoError(t, store.Save(ctx, &State{
				SessionID: "fresh", Mode: Team, Active: true, ActivatedAt: now.Add(-5 * time.Minute),
			}))

			r := NewRegistry(store)
			removed, err := r.CleanupStale(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			all, err := store.ListAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "fresh", all[0].SessionID)
		})
	}
}

func TestRegistry_ConcurrentExclusiveActivation(t *testing.T) {
	t.Parallel()

	for storeName, store := range registryStores(t) {
		t.Run(storeName, func(t *testing.T) {
			r := NewRegistry(store)
			ctx := context.Background()

			start := make(chan struct{})
			errs := make([]error, 2)
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				_, errs[0] = r.ActivateMode(ctx, "s1", Autopilot)
			}()
			go func() {
				defer wg.Done()
				<-start
				_, errs[1] = r.ActivateMode(ctx, "s1", Swarm)
			}()
			close(start)
			wg.Wait()

			wins, conflicts := 0, 0
			for _, err := range errs {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrModeConflict):
					conflicts++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			assert.Equal(t, 1, wins, "exactly one activation must win")
			assert.Equal(t, 1, conflicts, "the loser must see a conflict")

			active, err := r.ActiveModes(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, active, 1)
		})
	}
}
