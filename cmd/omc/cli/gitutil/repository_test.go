package gitutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestHead_UnbornRepository(t *testing.T) {
	dir := t.TempDir()
	if _, err := git.PlainInit(dir, false); err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}

	info, err := Head(dir)
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if info.Commit != "" {
		t.Errorf("Commit = %q, want empty for an unborn branch", info.Commit)
	}
}

func TestHead_AfterCommit(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := wt.Add("notes.txt"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	info, err := Head(dir)
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if info.Commit != hash.String() {
		t.Errorf("Commit = %q, want %q", info.Commit, hash.String())
	}
	if info.Branch != "master" {
		t.Errorf("Branch = %q, want %q", info.Branch, "master")
	}
}

func TestHead_NotARepository(t *testing.T) {
	if _, err := Head(t.TempDir()); err == nil {
		t.Fatal("Head() outside a repository should fail")
	}
}

func TestOpenRepository_FromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := git.PlainInit(dir, false); err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("creating subdirectory: %v", err)
	}

	if _, err := OpenRepository(sub); err != nil {
		t.Errorf("OpenRepository() from subdirectory error = %v", err)
	}
}
