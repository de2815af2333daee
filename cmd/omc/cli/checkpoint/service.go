package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/omchq/omc/cmd/omc/cli/gitutil"
	"github.com/omchq/omc/cmd/omc/cli/logging"
	"github.com/omchq/omc/cmd/omc/cli/mode"
	"github.com/omchq/omc/cmd/omc/cli/paths"
	"github.com/omchq/omc/cmd/omc/cli/todo"
	"github.com/omchq/omc/cmd/omc/cli/workflow"
	"github.com/omchq/omc/redact"
)

const (
	// DefaultRetention is how many checkpoints are kept per session. The
	// count is a hard ceiling; configuration can lower it but not raise it.
	DefaultRetention = 10

	// defaultLockWait bounds how long a create waits for the write lock
	// when the caller's context carries no deadline of its own.
	defaultLockWait = 3 * time.Second

	// lockWaitMargin is reserved out of the hook deadline so that after a
	// successful acquire there is still time to write.
	lockWaitMargin = 500 * time.Millisecond

	// autoThrottle suppresses auto-triggered checkpoints that would land
	// within this window of the previous one.
	autoThrottle = 30 * time.Second
)

// Service creates and reads checkpoints for one state directory. Writes for
// the same (session, project) pair are strictly serialized; distinct pairs
// proceed independently.
type Service struct {
	dir      string
	modes    *mode.Registry
	workflow workflow.Provider
	todos    todo.Provider
	locks    *keyedLocks
	lockWait time.Duration
	now      func() time.Time

	// Retention overrides DefaultRetention when set to a lower value.
	Retention int
}

// NewService creates a service writing to dir.
func NewService(dir string, modes *mode.Registry, wf workflow.Provider, todos todo.Provider) *Service {
	return &Service{
		dir:      dir,
		modes:    modes,
		workflow: wf,
		todos:    todos,
		locks:    newKeyedLocks(),
		lockWait: defaultLockWait,
		now:      time.Now,
	}
}

func (s *Service) retention() int {
	if s.Retention <= 0 || s.Retention > DefaultRetention {
		return DefaultRetention
	}
	return s.Retention
}

// Create captures a checkpoint for the session. It returns (nil, nil) when
// the snapshot was deliberately skipped (auto-trigger throttling), and an
// error wrapping ErrLockTimeout when the write lock was not acquired within
// the deadline budget.
func (s *Service) Create(ctx context.Context, trigger Trigger, sessionID, projectPath string) (*Checkpoint, error) {
	return s.CreateWithMemory(ctx, trigger, sessionID, projectPath, nil)
}

// CreateWithMemory is Create with an additional opaque memory-context
// document to embed, as handed over by the host before compaction.
func (s *Service) CreateWithMemory(ctx context.Context, trigger Trigger, sessionID, projectPath string, memory json.RawMessage) (*Checkpoint, error) {
	if !trigger.Valid() {
		return nil, fmt.Errorf("unknown checkpoint trigger %q", trigger)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	// The lock wait must leave room to do the write before the host's
	// deadline, so it shrinks when the context is nearly out of time.
	wait := s.lockWait
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline) - lockWaitMargin; remaining < wait {
			wait = remaining
		}
	}
	if wait <= 0 {
		return nil, fmt.Errorf("no time left to take the write lock: %w", ErrLockTimeout)
	}
	release, err := s.locks.acquire(ctx, lockKey(sessionID, projectPath), wait)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now().UTC()
	if trigger == TriggerAuto {
		latest, err := s.Latest(ctx, sessionID)
		if err == nil && latest != nil && now.Sub(latest.CreatedAt) < autoThrottle {
			logging.Debug(ctx, "auto checkpoint throttled",
				slog.String("last_checkpoint", latest.ID),
				slog.Duration("age", now.Sub(latest.CreatedAt)))
			return nil, nil
		}
	}

	cp := &Checkpoint{
		SessionID:   sessionID,
		ProjectPath: projectPath,
		Trigger:     trigger,
		CreatedAt:   now,
	}

	// Every snapshot source is best-effort: an absent provider or a git
	// failure loses detail, never the checkpoint.
	states, err := s.modes.ActiveModes(ctx, sessionID)
	if err != nil {
		logging.Debug(ctx, "mode snapshot unavailable", slog.String("error", err.Error()))
	} else {
		cp.ModeStates = states
	}
	if s.workflow != nil {
		raw, err := s.workflow.Snapshot(ctx, sessionID)
		if err != nil {
			logging.Debug(ctx, "workflow snapshot unavailable", slog.String("error", err.Error()))
		} else {
			cp.WorkflowState = redact.JSON(raw)
		}
	}
	if s.todos != nil {
		sum, err := s.todos.Summary(ctx, sessionID)
		if err != nil {
			logging.Debug(ctx, "todo summary unavailable", slog.String("error", err.Error()))
		} else {
			cp.TodoSummary = sum
		}
	}
	cp.MemoryContext = redact.JSON(memory)
	if head, err := gitutil.Head(projectPath); err != nil {
		logging.Debug(ctx, "git position unavailable", slog.String("error", err.Error()))
	} else {
		cp.GitHead = head.Commit
		cp.GitBranch = head.Branch
	}

	if err := s.write(cp, now); err != nil {
		return nil, err
	}
	if err := s.prune(ctx, sessionID); err != nil {
		logging.Warn(ctx, "checkpoint pruning failed", slog.String("error", err.Error()))
	}
	logging.Info(ctx, "checkpoint created",
		slog.String("checkpoint", cp.ID),
		slog.String("trigger", string(trigger)),
		slog.Int("modes", len(cp.ModeStates)))
	return cp, nil
}

// write assigns the id and lands the document atomically. Stamp collisions
// (two writes inside the same millisecond) bump the stamp forward.
func (s *Service) write(cp *Checkpoint, at time.Time) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("creating checkpoints directory: %w", err)
	}

	for {
		cp.ID = StampID(at, cp.SessionID)
		if _, err := os.Stat(filepath.Join(s.dir, fileName(cp.ID))); os.IsNotExist(err) {
			break
		}
		at = at.Add(time.Millisecond)
	}
	cp.CreatedAt = at

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	// Write-then-rename so a concurrent reader only ever sees complete
	// documents.
	tmp, err := os.CreateTemp(s.dir, ".cp-*")
	if err != nil {
		return fmt.Errorf("creating checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, fileName(cp.ID))); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("landing checkpoint: %w", err)
	}
	return nil
}

// prune removes the session's checkpoints beyond the retention count,
// oldest first.
func (s *Service) prune(ctx context.Context, sessionID string) error {
	list, err := s.List(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, cp := range list[min(len(list), s.retention()):] {
		if err := os.Remove(filepath.Join(s.dir, fileName(cp.ID))); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing checkpoint %s: %w", cp.ID, err)
		}
		logging.Debug(ctx, "checkpoint pruned", slog.String("checkpoint", cp.ID))
	}
	return nil
}

// List returns the session's checkpoints, newest first. Files that no
// longer parse are skipped.
func (s *Service) List(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Checkpoint
	for _, cp := range all {
		if cp.SessionID == sessionID {
			out = append(out, cp)
		}
	}
	return out, nil
}

// ListAll returns every checkpoint in the directory, newest first.
func (s *Service) ListAll(_ context.Context) ([]*Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoints directory: %w", err)
	}
	var out []*Checkpoint
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := idFromFileName(entry.Name())
		if !ok {
			continue
		}
		cp, err := s.read(id)
		if err != nil || cp == nil {
			continue
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Latest returns the session's most recent checkpoint, or nil when the
// session has none.
func (s *Service) Latest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	list, err := s.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// Load returns the checkpoint with the given id, or nil when it does not
// exist.
func (s *Service) Load(_ context.Context, id string) (*Checkpoint, error) {
	if _, _, ok := ParseID(id); !ok {
		return nil, fmt.Errorf("malformed checkpoint id %q", id)
	}
	return s.read(id)
}

// Sessions returns the distinct session ids with at least one checkpoint,
// most recently checkpointed first.
func (s *Service) Sessions(ctx context.Context) ([]string, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, cp := range all {
		if !seen[cp.SessionID] {
			seen[cp.SessionID] = true
			out = append(out, cp.SessionID)
		}
	}
	return out, nil
}

func (s *Service) read(id string) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, fileName(id))) //nolint:gosec // id is validated, path is under the checkpoints dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint %s: %w", id, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", id, err)
	}
	return &cp, nil
}

func lockKey(sessionID, projectPath string) string {
	return sessionID + "\x00" + projectPath
}

// NewServiceForProject creates a service writing to the project's
// checkpoint directory.
func NewServiceForProject(projectPath string, modes *mode.Registry, wf workflow.Provider, todos todo.Provider) *Service {
	return NewService(paths.CheckpointsDir(projectPath), modes, wf, todos)
}
