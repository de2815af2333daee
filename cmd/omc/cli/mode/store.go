package mode

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/omchq/omc/cmd/omc/cli/paths"
)

// Store persists mode activation markers.
//
// AcquireSlot claims the per-session exclusive slot for m and returns the
// mode holding the slot after the call: m itself when the claim succeeded
// (or m already held it), otherwise the competing holder. The claim must be
// atomic across processes; two concurrent claims see exactly one winner.
type Store interface {
	Save(ctx context.Context, state *State) error
	Load(ctx context.Context, sessionID string, m Mode) (*State, error)
	List(ctx context.Context, sessionID string) ([]*State, error)
	ListAll(ctx context.Context) ([]*State, error)
	Delete(ctx context.Context, sessionID string, m Mode) error
	AcquireSlot(ctx context.Context, sessionID string, m Mode) (Mode, error)
	ReleaseSlot(ctx context.Context, sessionID string, m Mode) error
	// Sweep removes markers strictly older than cutoff along with markers
	// that no longer parse, and releases slots whose holder is gone.
	// Returns the number of markers removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

const (
	markerSuffix = ".json"
	slotSuffix   = ".slot"
)

// FileStore keeps one JSON marker file per (session, mode) pair in a single
// directory. The exclusive slot is a separate file claimed via an atomic
// link, which is what makes the first-writer-wins guarantee hold across
// processes.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created
// lazily on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// NewFileStoreForProject creates a store under the project's state directory.
func NewFileStoreForProject(projectPath string) *FileStore {
	return NewFileStore(paths.ModesDir(projectPath))
}

func (fs *FileStore) markerPath(sessionID string, m Mode) string {
	return filepath.Join(fs.dir, paths.SafeComponent(sessionID)+"--"+string(m)+markerSuffix)
}

func (fs *FileStore) slotPath(sessionID string) string {
	return filepath.Join(fs.dir, paths.SafeComponent(sessionID)+slotSuffix)
}

// Save writes the marker for state's (session, mode) pair.
func (fs *FileStore) Save(_ context.Context, state *State) error {
	if err := os.MkdirAll(fs.dir, 0o750); err != nil {
		return fmt.Errorf("creating modes directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding mode marker: %w", err)
	}
	path := fs.markerPath(state.SessionID, state.Mode)
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing mode marker: %w", err)
	}
	return nil
}

// Load returns the marker for (sessionID, m), or nil when absent. A marker
// that no longer parses is treated as absent; the sweep will remove it.
func (fs *FileStore) Load(_ context.Context, sessionID string, m Mode) (*State, error) {
	state, err := readMarker(fs.markerPath(sessionID, m))
	if err != nil {
		return nil, err
	}
	return state, nil
}

// List returns the markers for one session, oldest activation first.
func (fs *FileStore) List(ctx context.Context, sessionID string) ([]*State, error) {
	all, err := fs.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*State
	for _, s := range all {
		if s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListAll returns every marker in the store, oldest activation first.
func (fs *FileStore) ListAll(_ context.Context) ([]*State, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading modes directory: %w", err)
	}
	var out []*State
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), markerSuffix) {
			continue
		}
		state, err := readMarker(filepath.Join(fs.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if state != nil {
			out = append(out, state)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActivatedAt.Equal(out[j].ActivatedAt) {
			return out[i].Mode < out[j].Mode
		}
		return out[i].ActivatedAt.Before(out[j].ActivatedAt)
	})
	return out, nil
}

// Delete removes the marker for (sessionID, m) and releases the exclusive
// slot if m was holding it. Removing an absent marker is not an error.
func (fs *FileStore) Delete(ctx context.Context, sessionID string, m Mode) error {
	if err := os.Remove(fs.markerPath(sessionID, m)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing mode marker: %w", err)
	}
	return fs.ReleaseSlot(ctx, sessionID, m)
}

// AcquireSlot claims the exclusive slot for sessionID on behalf of m. The
// claim is a hard link of a fully written file, so a competing reader never
// observes a slot without its holder.
func (fs *FileStore) AcquireSlot(_ context.Context, sessionID string, m Mode) (Mode, error) {
	if err := os.MkdirAll(fs.dir, 0o750); err != nil {
		return "", fmt.Errorf("creating modes directory: %w", err)
	}
	tmp, err := os.CreateTemp(fs.dir, ".claim-*")
	if err != nil {
		return "", fmt.Errorf("creating slot claim: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.WriteString(string(m) + "\n"); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing slot claim: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing slot claim: %w", err)
	}

	path := fs.slotPath(sessionID)
	for attempt := 0; attempt < 5; attempt++ {
		err := os.Link(tmpName, path)
		if err == nil {
			return m, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("claiming exclusive slot: %w", err)
		}
		holder, rerr := fs.slotHolder(sessionID)
		if rerr != nil {
			return "", rerr
		}
		if holder != "" {
			return holder, nil
		}
		// The slot vanished between the failed link and the read; a
		// release raced us, so claim again.
	}
	return "", fmt.Errorf("claiming exclusive slot for session %s: lost too many races", sessionID)
}

// ReleaseSlot releases the exclusive slot if m is the holder.
func (fs *FileStore) ReleaseSlot(_ context.Context, sessionID string, m Mode) error {
	holder, err := fs.slotHolder(sessionID)
	if err != nil {
		return err
	}
	if holder != m {
		return nil
	}
	if err := os.Remove(fs.slotPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("releasing exclusive slot: %w", err)
	}
	return nil
}

// slotHolder returns the mode named in the slot file, or "" when no slot
// exists.
func (fs *FileStore) slotHolder(sessionID string) (Mode, error) {
	data, err := os.ReadFile(fs.slotPath(sessionID)) //nolint:gosec // path is under the modes dir
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading slot file: %w", err)
	}
	return Mode(strings.TrimSpace(string(data))), nil
}

// Sweep removes stale and unreadable markers, then releases orphaned slots.
func (fs *FileStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading modes directory: %w", err)
	}

	removed := 0
	var slots []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, slotSuffix) {
			slots = append(slots, name)
			continue
		}
		if !strings.HasSuffix(name, markerSuffix) {
			continue
		}
		path := filepath.Join(fs.dir, name)
		state, err := readMarker(path)
		if err != nil {
			return removed, err
		}
		// Unreadable markers count as stale: they cannot be trusted and
		// would otherwise linger forever.
		if state == nil || state.ActivatedAt.Before(cutoff) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("removing stale marker: %w", err)
			}
			removed++
		}
	}

	// A slot whose holder marker is gone no longer guards anything.
	for _, name := range slots {
		base := strings.TrimSuffix(name, slotSuffix)
		holderPath := filepath.Join(fs.dir, name)
		data, err := os.ReadFile(holderPath) //nolint:gosec // path is under the modes dir
		if err != nil {
			continue
		}
		holder := strings.TrimSpace(string(data))
		marker := filepath.Join(fs.dir, base+"--"+holder+markerSuffix)
		if _, err := os.Stat(marker); os.IsNotExist(err) {
			_ = os.Remove(holderPath)
		}
	}
	return removed, nil
}

// readMarker decodes a marker file, mapping both "missing" and "corrupt" to
// a nil state.
func readMarker(path string) (*State, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is under the modes dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading mode marker: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil
	}
	if state.SessionID == "" || !state.Mode.Valid() {
		return nil, nil
	}
	return &state, nil
}

