package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckFileAcceptsPersistedStore(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{TasksPath: filepath.Join(dir, "tasks.json"), ArchivePath: filepath.Join(dir, "archive.json")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("a", "2024-06-01", AddOptions{Recurrence: "weekly"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("b", "2024-06-02", AddOptions{}); err != nil {
		t.Fatal(err)
	}
	problems, err := CheckFile(s.TasksPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
}

func TestCheckFileReportsEveryProblem(t *testing.T) {
	path := writeFile(t, `[
  {"id": 1, "name": "a", "due_date": "2024-13-01", "priority": "High", "category": "x", "completed": false, "recurrence": null},
  {"id": 1, "name": "b", "due_date": "2024-06-01", "priority": "High", "category": "x", "completed": "no", "recurrence": "yearly"},
  {"id": 3, "name": "c", "due_date": "2024-06-01", "priority": "Low", "category": "x", "completed": true}
]`)
	problems, err := CheckFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, p := range problems {
		paths = append(paths, p.Path)
	}
	got := strings.Join(paths, ",")
	for _, want := range []string{"[0].due_date", "[1].completed", "[1].recurrence", "[2]", "[1].id"} {
		if !strings.Contains(","+got+",", ","+want+",") {
			t.Fatalf("missing problem at %s; got %v", want, problems)
		}
	}
}

func TestCheckFileErrors(t *testing.T) {
	if _, err := CheckFile(filepath.Join(t.TempDir(), "absent.json")); !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if _, err := CheckFile(writeFile(t, "{not json")); !errors.Is(err, ErrCorruptStore) {
		t.Fatalf("expected ErrCorruptStore, got %v", err)
	}
	problems, err := CheckFile(writeFile(t, `{"id": 1}`))
	if err != nil || len(problems) != 1 || problems[0].Path != "" {
		t.Fatalf("expected one document-level problem, got %v %v", problems, err)
	}
}

func TestPointerToPath(t *testing.T) {
	for in, want := range map[string]string{"": "", "/": "", "/0": "[0]", "/2/due_date": "[2].due_date", "#/a~1b": "a/b"} {
		if got := pointerToPath(in); got != want {
			t.Fatalf("pointerToPath(%q) = %q, want %q", in, got, want)
		}
	}
}
