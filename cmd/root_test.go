package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProcessCommandRunsRecipeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	recipePath := filepath.Join(dir, "recipe.json")
	outDir := filepath.Join(dir, "out")

	recipeJSON := `{
		"steps": [
			{ "type": "set_context", "config": { "key": "greeting", "value": "hello {{ who }}" } },
			{ "type": "write_files", "config": {
				"root": "` + outDir + `",
				"files": [ { "path": "greeting.txt", "content": "{{ greeting }}" } ]
			}}
		]
	}`
	if err := os.WriteFile(recipePath, []byte(recipeJSON), 0644); err != nil {
		t.Fatalf("failed to write recipe: %v", err)
	}

	varOverrides = []string{"who=world"}
	t.Cleanup(func() { varOverrides = nil })

	rootCmd.SetArgs([]string{"process", recipePath})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "greeting.txt"))
	if err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("expected rendered greeting, got %q", got)
	}
}

func TestProcessCommandMissingRecipeFileFails(t *testing.T) {
	rootCmd.SetArgs([]string{"process", "/nonexistent/recipe.json"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatalf("expected an error for a missing recipe file")
	}
}
