package fileset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWalkSkipsGitignoredFiles(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, ".gitignore"), "ignored.txt\n")
	mustWrite(t, filepath.Join(root, "ignored.txt"), "skip me")
	mustWrite(t, filepath.Join(root, "kept.txt"), "keep me")

	files, err := Walk(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "kept.txt" {
		t.Fatalf("expected only kept.txt, got %v", files)
	}
}

func TestWalkSkipsAlwaysIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(root, "node_modules", "pkg.json"), "{}")
	mustWrite(t, filepath.Join(root, "main.go"), "package main")

	files, err := Walk(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "main.go" {
		t.Fatalf("expected only main.go, got %v", files)
	}
}

func TestWalkReturnsLexicalOrder(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "b.txt"), "b")
	mustWrite(t, filepath.Join(root, "a.txt"), "a")

	files, err := Walk(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.txt" || filepath.Base(files[1]) != "b.txt" {
		t.Fatalf("expected lexical order [a.txt, b.txt], got %v", files)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
