package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Storage.TasksFile != "tasks.json" || cfg.Storage.ArchiveFile != "archive.json" || !cfg.Journal.Enabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("storage:\n  tasks_file: todo.json\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.TasksFile != "todo.json" || cfg.Storage.ArchiveFile != "archive.json" {
		t.Fatalf("unexpected storage: %+v", cfg.Storage)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]string{
		"same files": "storage:\n  tasks_file: a.json\n  archive_file: a.json\n",
		"base path":  "server:\n  base_path: v0\n",
		"log level":  "log:\n  level: loud\n",
		"bad yaml":   "storage: [",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "tasktrack init") {
		t.Fatalf("expected not-found hint, got %v", err)
	}
	cfg, err := LoadOptional(dir)
	if err != nil || cfg.Storage.TasksFile != "tasks.json" {
		t.Fatalf("optional load: %+v %v", cfg, err)
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(Path(dir), []byte("journal:\n  enabled: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Journal.Enabled {
		t.Fatalf("journal should be disabled")
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("/ws", "tasks.json"); got != filepath.Join("/ws", "tasks.json") {
		t.Fatalf("got %s", got)
	}
	abs := filepath.Join(t.TempDir(), "x.json")
	if got := Resolve("/ws", abs); got != abs {
		t.Fatalf("absolute path rewritten: %s", got)
	}
}
