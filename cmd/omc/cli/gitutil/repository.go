// Package gitutil provides the small slice of git access the hooks need:
// finding the repository root and reading the current HEAD position.
// Repository discovery shells out to 'git rev-parse' because it works from
// any subdirectory and respects linked worktrees; reading references goes
// through go-git so no further subprocesses are needed inside hook calls.
package gitutil

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
)

// OpenRepository opens the repository containing dir, with linked worktree
// support enabled. An empty dir means the current directory.
func OpenRepository(dir string) (*git.Repository, error) {
	if dir == "" {
		dir = "."
	}
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return repo, nil
}

// GetWorktreePath returns the absolute path of the worktree root containing
// the current directory. Works from any subdirectory within the repository.
func GetWorktreePath(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("resolving worktree path: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// HeadInfo is the repository position at a point in time.
type HeadInfo struct {
	Commit string
	Branch string
}

// Head returns the repository's current commit and branch. Branch is empty
// on a detached HEAD. An unborn branch (fresh repository with no commits)
// reports an empty commit rather than an error.
func Head(dir string) (*HeadInfo, error) {
	repo, err := OpenRepository(dir)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return &HeadInfo{}, nil
	}
	info := &HeadInfo{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}
	return info, nil
}
