package todo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTodoFile(t *testing.T, dir, sessionID, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating todos dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, sessionID+".json"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing todos file: %v", err)
	}
}

func TestSummary_CountsByStatus(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "todos")
	writeTodoFile(t, dir, "s1", `[
		{"content": "write the parser", "status": "completed"},
		{"content": "wire the parser in", "status": "in_progress"},
		{"content": "add tests", "status": "pending"},
		{"content": "update docs", "status": "pending"}
	]`)

	sum, err := NewFileProvider(dir).Summary(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Pending != 2 {
		t.Errorf("Pending = %d, want 2", sum.Pending)
	}
	if sum.InProgress != 1 {
		t.Errorf("InProgress = %d, want 1", sum.InProgress)
	}
	if sum.Completed != 1 {
		t.Errorf("Completed = %d, want 1", sum.Completed)
	}
	if sum.Total() != 4 {
		t.Errorf("Total() = %d, want 4", sum.Total())
	}
}

func TestSummary_UnknownStatusCountsAsPending(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "todos")
	writeTodoFile(t, dir, "s1", `[{"content": "odd one", "status": "deferred"}]`)

	sum, err := NewFileProvider(dir).Summary(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Pending != 1 {
		t.Errorf("Pending = %d, want 1 (unknown status must stay visible)", sum.Pending)
	}
}

func TestSummary_MissingOrCorruptYieldsZero(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "todos")
	p := NewFileProvider(dir)

	sum, err := p.Summary(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Total() != 0 {
		t.Errorf("Summary() for missing file = %+v, want zero", sum)
	}

	writeTodoFile(t, dir, "bad", `{"not": "an array"}`)
	sum, err = p.Summary(context.Background(), "bad")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Total() != 0 {
		t.Errorf("Summary() for corrupt file = %+v, want zero", sum)
	}
}

func TestSummary_EmptyArray(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "todos")
	writeTodoFile(t, dir, "s1", `[]`)

	sum, err := NewFileProvider(dir).Summary(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Total() != 0 {
		t.Errorf("Summary() for empty list = %+v, want zero", sum)
	}
}
