package checkpoint

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/omchq/omc/cmd/omc/cli/paths"
)

// Checkpoint ids double as file names, so they carry everything needed to
// order and attribute a snapshot without opening it.
// Format: <unix-milliseconds>-<session component>
// Example: 1719851022345-a1b2c3d4

// StampID builds the checkpoint id for a capture time and session.
func StampID(at time.Time, sessionID string) string {
	return fmt.Sprintf("%d-%s", at.UnixMilli(), paths.SafeComponent(sessionID))
}

// ParseID splits a checkpoint id into its capture time and session
// component. Returns ok=false for anything that is not a checkpoint id.
func ParseID(id string) (createdAt time.Time, session string, ok bool) {
	dash := strings.Index(id, "-")
	if dash <= 0 || dash == len(id)-1 {
		return time.Time{}, "", false
	}
	ms, err := strconv.ParseInt(id[:dash], 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, "", false
	}
	return time.UnixMilli(ms).UTC(), id[dash+1:], true
}

// fileNameSuffix is appended to ids on disk.
const fileNameSuffix = ".json"

func fileName(id string) string {
	return id + fileNameSuffix
}

// idFromFileName recovers the checkpoint id from a directory entry name.
func idFromFileName(name string) (string, bool) {
	if !strings.HasSuffix(name, fileNameSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(name, fileNameSuffix)
	if _, _, ok := ParseID(id); !ok {
		return "", false
	}
	return id, true
}
