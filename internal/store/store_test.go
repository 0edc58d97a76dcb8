package store_test

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"tasktrack/internal/domain"
	"tasktrack/internal/store"
)

type testEnv struct {
	Store   *store.Store
	Dir     string
	Journal *fakeJournal
}

type journalEntry struct {
	Type   string
	TaskID *int
}

type fakeJournal struct {
	entries []journalEntry
	err     error
}

func (j *fakeJournal) Append(evtType string, taskID *int, _ map[string]any) error {
	j.entries = append(j.entries, journalEntry{Type: evtType, TaskID: taskID})
	return j.err
}

func (j *fakeJournal) types() []string {
	var out []string
	for _, e := range j.entries {
		out = append(out, e.Type)
	}
	return out
}

var fixedNow = func() time.Time { return time.Date(2024, 6, 15, 9, 30, 0, 0, time.Local) }

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	j := &fakeJournal{}
	s, err := store.New(store.Config{
		TasksPath:   filepath.Join(dir, "tasks.json"),
		ArchivePath: filepath.Join(dir, "archive.json"),
		Journal:     j,
		Now:         fixedNow,
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return testEnv{Store: s, Dir: dir, Journal: j}
}

func reopen(t *testing.T, env testEnv) *store.Store {
	t.Helper()
	s, err := store.New(store.Config{
		TasksPath:   filepath.Join(env.Dir, "tasks.json"),
		ArchivePath: filepath.Join(env.Dir, "archive.json"),
		Now:         fixedNow,
	})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	return s
}

func mustAdd(t *testing.T, s *store.Store, name, due string, opts store.AddOptions) domain.Task {
	t.Helper()
	task, err := s.Add(name, due, opts)
	if err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	return task
}

func mustList(t *testing.T, s *store.Store, opts store.ListOptions) []domain.Task {
	t.Helper()
	tasks, err := s.List(opts)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return tasks
}

func names(tasks []domain.Task) []string {
	out := []string{}
	for _, t := range tasks {
		out = append(out, t.Name)
	}
	return out
}

func strPtr(s string) *string { return &s }

func TestAddDefaultsAndInsertionOrder(t *testing.T) {
	env := newTestEnv(t)
	a := mustAdd(t, env.Store, "write report", "2024-07-01", store.AddOptions{})
	mustAdd(t, env.Store, "buy milk", "2024-06-20", store.AddOptions{})
	mustAdd(t, env.Store, "call mom", "2024-06-18", store.AddOptions{})
	if a.ID != 1 || a.Priority != "Medium" || a.Category != "General" || a.Completed || a.Recurrence != domain.RecurrenceNone {
		t.Fatalf("unexpected defaults: %+v", a)
	}
	got := names(mustList(t, env.Store, store.ListOptions{}))
	want := []string{"write report", "buy milk", "call mom"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestAddRejectsInvalidDate(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Store.Add("bad", "2024-02-30", store.AddOptions{}); !errors.Is(err, domain.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if env.Store.Len() != 0 || env.Store.UndoDepth() != 0 {
		t.Fatalf("failed add must not mutate")
	}
}

func TestIdentifiersNotReusedAfterDelete(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.Store, "one", "2024-06-01", store.AddOptions{})
	mustAdd(t, env.Store, "two", "2024-06-02", store.AddOptions{})
	mustAdd(t, env.Store, "three", "2024-06-03", store.AddOptions{})
	if ok, err := env.Store.Delete(2); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	four := mustAdd(t, env.Store, "four", "2024-06-04", store.AddOptions{})
	if four.ID != 4 {
		t.Fatalf("expected id 4, got %d", four.ID)
	}
	// the counter survives a restart even when the highest id is gone
	if ok, err := env.Store.Delete(4); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	s := reopen(t, env)
	five := mustAdd(t, s, "five", "2024-06-05", store.AddOptions{})
	if five.ID != 5 {
		t.Fatalf("expected id 5 after restart, got %d", five.ID)
	}
}

func TestGet(t *testing.T) {
	env := newTestEnv(t)
	a := mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{})
	got, ok := env.Store.Get(a.ID)
	if !ok || got != a {
		t.Fatalf("get: ok=%v got=%+v", ok, got)
	}
	if _, ok := env.Store.Get(99); ok {
		t.Fatalf("expected not found")
	}
}

func TestUndoAdd(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.Store, "keep", "2024-06-01", store.AddOptions{})
	before := mustList(t, env.Store, store.ListOptions{})
	mustAdd(t, env.Store, "drop", "2024-06-02", store.AddOptions{})
	ok, err := env.Store.UndoLast()
	if err != nil || !ok {
		t.Fatalf("undo: ok=%v err=%v", ok, err)
	}
	if after := mustList(t, env.Store, store.ListOptions{}); !reflect.DeepEqual(before, after) {
		t.Fatalf("got %+v want %+v", after, before)
	}
	if got := mustList(t, reopen(t, env), store.ListOptions{}); !reflect.DeepEqual(before, got) {
		t.Fatalf("undo was not persisted: %+v", got)
	}
}

func TestUndoDeleteRestoresTask(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{})
	b := mustAdd(t, env.Store, "b", "2024-06-02", store.AddOptions{Priority: "High", Category: "Work", Recurrence: domain.RecurrenceWeekly})
	mustAdd(t, env.Store, "c", "2024-06-03", store.AddOptions{})
	before := mustList(t, env.Store, store.ListOptions{})
	if ok, err := env.Store.Delete(b.ID); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, ok := env.Store.Get(b.ID); ok {
		t.Fatalf("task still present after delete")
	}
	if ok, err := env.Store.UndoLast(); err != nil || !ok {
		t.Fatalf("undo: ok=%v err=%v", ok, err)
	}
	if after := mustList(t, env.Store, store.ListOptions{}); !reflect.DeepEqual(before, after) {
		t.Fatalf("got %+v want %+v", after, before)
	}
}

func TestUndoUpdateRestoresAllFields(t *testing.T) {
	env := newTestEnv(t)
	a := mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{Priority: "Low", Category: "Home"})
	done := true
	rec := domain.RecurrenceDaily
	ok, err := env.Store.Update(a.ID, store.TaskUpdate{
		Name:       strPtr("renamed"),
		DueDate:    strPtr("2024-08-01"),
		Priority:   strPtr("High"),
		Completed:  &done,
		Recurrence: &rec,
	})
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	got, _ := env.Store.Get(a.ID)
	if got.Name != "renamed" || got.Priority != "High" || got.Category != "Home" || !got.Completed || got.Recurrence != rec {
		t.Fatalf("update not applied: %+v", got)
	}
	if ok, err := env.Store.UndoLast(); err != nil || !ok {
		t.Fatalf("undo: ok=%v err=%v", ok, err)
	}
	got, _ = env.Store.Get(a.ID)
	if got != a {
		t.Fatalf("got %+v want %+v", got, a)
	}
}

func TestUpdateEmptyStringOverwrites(t *testing.T) {
	env := newTestEnv(t)
	a := mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{Category: "Home"})
	if ok, err := env.Store.Update(a.ID, store.TaskUpdate{Category: strPtr("")}); err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	got, _ := env.Store.Get(a.ID)
	if got.Category != "" || got.Name != "a" {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestUpdateAndDeleteUnknownID(t *testing.T) {
	env := newTestEnv(t)
	if ok, err := env.Store.Update(7, store.TaskUpdate{Name: strPtr("x")}); err != nil || ok {
		t.Fatalf("update unknown: ok=%v err=%v", ok, err)
	}
	if ok, err := env.Store.Delete(7); err != nil || ok {
		t.Fatalf("delete unknown: ok=%v err=%v", ok, err)
	}
	if env.Store.UndoDepth() != 0 {
		t.Fatalf("not-found must not log undo entries")
	}
	if _, err := os.Stat(filepath.Join(env.Dir, "tasks.json")); !os.IsNotExist(err) {
		t.Fatalf("not-found must not persist, stat err=%v", err)
	}
}

func TestUpdateInvalidDate(t *testing.T) {
	env := newTestEnv(t)
	a := mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{})
	_, err := env.Store.Update(a.ID, store.TaskUpdate{Name: strPtr("x"), DueDate: strPtr("tomorrow")})
	if !errors.Is(err, domain.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	got, _ := env.Store.Get(a.ID)
	if got != a || env.Store.UndoDepth() != 1 {
		t.Fatalf("failed update must not mutate: %+v depth=%d", got, env.Store.UndoDepth())
	}
}

func TestUndoEmptyLog(t *testing.T) {
	env := newTestEnv(t)
	ok, err := env.Store.UndoLast()
	if err != nil || ok {
		t.Fatalf("expected false on empty log, ok=%v err=%v", ok, err)
	}
}

func TestUndoOnlyReversesLastAction(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{})
	mustAdd(t, env.Store, "b", "2024-06-02", store.AddOptions{})
	if _, err := env.Store.UndoLast(); err != nil {
		t.Fatal(err)
	}
	if got := names(mustList(t, env.Store, store.ListOptions{})); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("got %v", got)
	}
}

func TestMarkAllCompletedAndUndo(t *testing.T) {
	env := newTestEnv(t)
	a := mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{})
	b := mustAdd(t, env.Store, "b", "2024-06-02", store.AddOptions{})
	done := true
	if _, err := env.Store.Update(a.ID, store.TaskUpdate{Completed: &done}); err != nil {
		t.Fatal(err)
	}
	if err := env.Store.MarkAllCompleted(); err != nil {
		t.Fatal(err)
	}
	for _, task := range mustList(t, env.Store, store.ListOptions{}) {
		if !task.Completed {
			t.Fatalf("task %d not completed", task.ID)
		}
	}
	if _, err := env.Store.UndoLast(); err != nil {
		t.Fatal(err)
	}
	gotA, _ := env.Store.Get(a.ID)
	gotB, _ := env.Store.Get(b.ID)
	if !gotA.Completed {
		t.Fatalf("task completed before the bulk action must stay completed")
	}
	if gotB.Completed {
		t.Fatalf("task completed by the bulk action must be reopened")
	}
}

func TestMarkAllCompletedPersistsWhenEmpty(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Store.MarkAllCompleted(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(env.Dir, "tasks.json"))
	if err != nil {
		t.Fatalf("expected task file to be written: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("got %q", data)
	}
}

func TestArchiveCompleted(t *testing.T) {
	env := newTestEnv(t)
	a := mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{})
	mustAdd(t, env.Store, "b", "2024-06-02", store.AddOptions{})
	done := true
	if _, err := env.Store.Update(a.ID, store.TaskUpdate{Completed: &done}); err != nil {
		t.Fatal(err)
	}
	depth := env.Store.UndoDepth()
	archived, err := env.Store.ArchiveCompleted()
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != 1 || archived[0].ID != a.ID {
		t.Fatalf("unexpected archived set: %+v", archived)
	}
	if got := names(mustList(t, env.Store, store.ListOptions{})); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("live tasks: %v", got)
	}
	if env.Store.UndoDepth() != depth {
		t.Fatalf("archive must not log an undo entry")
	}
	archive, err := store.New(store.Config{
		TasksPath:   filepath.Join(env.Dir, "archive.json"),
		ArchivePath: filepath.Join(env.Dir, "unused.json"),
	})
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if got, _ := archive.Get(a.ID); !got.Completed || got.Name != "a" {
		t.Fatalf("archive content: %+v", got)
	}
}

func TestArchiveWithNothingCompleted(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{})
	before := mustList(t, env.Store, store.ListOptions{})
	for i := 0; i < 2; i++ {
		if _, err := env.Store.ArchiveCompleted(); err != nil {
			t.Fatal(err)
		}
	}
	if after := mustList(t, env.Store, store.ListOptions{}); !reflect.DeepEqual(before, after) {
		t.Fatalf("got %+v want %+v", after, before)
	}
	data, err := os.ReadFile(filepath.Join(env.Dir, "archive.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Fatalf("expected empty archive, got %q", data)
	}
}

func TestListSortByPriority(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.Store, "low", "2024-06-01", store.AddOptions{Priority: "Low"})
	mustAdd(t, env.Store, "high", "2024-06-01", store.AddOptions{Priority: "High"})
	mustAdd(t, env.Store, "odd", "2024-06-01", store.AddOptions{Priority: "Someday"})
	mustAdd(t, env.Store, "medium", "2024-06-01", store.AddOptions{Priority: "Medium"})
	got := names(mustList(t, env.Store, store.ListOptions{SortBy: store.SortPriority}))
	want := []string{"high", "medium", "low", "odd"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	// store order is untouched
	if got := names(mustList(t, env.Store, store.ListOptions{})); got[0] != "low" {
		t.Fatalf("list mutated store order: %v", got)
	}
}

func TestListSortAndFilter(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.Store, "banana", "2024-06-03", store.AddOptions{Category: "Shopping"})
	c := mustAdd(t, env.Store, "Apple", "2024-06-01", store.AddOptions{Category: "shopping"})
	mustAdd(t, env.Store, "cherry", "2024-06-02", store.AddOptions{Category: "Work"})
	done := true
	if _, err := env.Store.Update(c.ID, store.TaskUpdate{Completed: &done}); err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name string
		opts store.ListOptions
		want []string
	}{
		{"due", store.ListOptions{SortBy: store.SortDueDate}, []string{"Apple", "cherry", "banana"}},
		{"name", store.ListOptions{SortBy: store.SortName}, []string{"Apple", "banana", "cherry"}},
		{"status", store.ListOptions{SortBy: store.SortStatus}, []string{"banana", "cherry", "Apple"}},
		{"unknown sort", store.ListOptions{SortBy: "colour"}, []string{"banana", "Apple", "cherry"}},
		{"category", store.ListOptions{Category: "SHOPPING"}, []string{"banana", "Apple"}},
		{"pending", store.ListOptions{Category: "shopping", PendingOnly: true}, []string{"banana"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := names(mustList(t, env.Store, tc.opts)); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.Store, "Buy Milk", "2024-06-01", store.AddOptions{})
	mustAdd(t, env.Store, "milkshake", "2024-06-01", store.AddOptions{})
	mustAdd(t, env.Store, "walk dog", "2024-06-01", store.AddOptions{})
	if got := names(env.Store.Search("MILK")); !reflect.DeepEqual(got, []string{"Buy Milk", "milkshake"}) {
		t.Fatalf("got %v", got)
	}
	if got := env.Store.Search("zebra"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestOverdue(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.Store, "past", "2024-06-14", store.AddOptions{})
	mustAdd(t, env.Store, "today", "2024-06-15", store.AddOptions{})
	mustAdd(t, env.Store, "future", "2024-07-01", store.AddOptions{})
	old := mustAdd(t, env.Store, "past but done", "2024-01-01", store.AddOptions{})
	done := true
	if _, err := env.Store.Update(old.ID, store.TaskUpdate{Completed: &done}); err != nil {
		t.Fatal(err)
	}
	got, err := env.Store.Overdue()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names(got), []string{"past"}) {
		t.Fatalf("got %v", names(got))
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{Priority: "High", Recurrence: domain.RecurrenceMonthly})
	b := mustAdd(t, env.Store, "b", "2024-06-02", store.AddOptions{Category: "Work"})
	done := true
	if _, err := env.Store.Update(b.ID, store.TaskUpdate{Completed: &done}); err != nil {
		t.Fatal(err)
	}
	if err := env.Store.Persist(); err != nil {
		t.Fatal(err)
	}
	want := mustList(t, env.Store, store.ListOptions{})
	if got := mustList(t, reopen(t, env), store.ListOptions{}); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func writeTaskFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    error
	}{
		{"empty file", "", store.ErrCorruptStore},
		{"not json", "{{", store.ErrCorruptStore},
		{"null", "null", store.ErrCorruptStore},
		{"object", `{"id": 1}`, store.ErrCorruptStore},
		{"missing field", `[{"id": 1, "name": "a", "due_date": "2024-01-01", "priority": "High", "category": "x", "completed": false}]`, domain.ErrMalformedRecord},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTaskFile(t, tc.content)
			_, err := store.New(store.Config{TasksPath: path, ArchivePath: path + ".archive"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	if env.Store.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestLoadNullRecurrence(t *testing.T) {
	path := writeTaskFile(t, `[{"id": 4, "name": "a", "due_date": "2024-01-01", "priority": "High", "category": "x", "completed": true, "recurrence": null}]`)
	s, err := store.New(store.Config{TasksPath: path, ArchivePath: path + ".archive"})
	if err != nil {
		t.Fatal(err)
	}
	got, ok := s.Get(4)
	if !ok || got.Recurrence != domain.RecurrenceNone || !got.Completed {
		t.Fatalf("unexpected task: %+v", got)
	}
	if next := mustAdd(t, s, "b", "2024-01-02", store.AddOptions{}); next.ID != 5 {
		t.Fatalf("expected id after max, got %d", next.ID)
	}
}

func TestListDueDateSortFailsOnInvalidDate(t *testing.T) {
	path := writeTaskFile(t, `[{"id": 1, "name": "a", "due_date": "someday", "priority": "High", "category": "x", "completed": false, "recurrence": null}]`)
	s, err := store.New(store.Config{TasksPath: path, ArchivePath: path + ".archive"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.List(store.ListOptions{SortBy: store.SortDueDate}); !errors.Is(err, domain.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if _, err := s.Overdue(); !errors.Is(err, domain.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate from overdue, got %v", err)
	}
	if _, err := s.List(store.ListOptions{SortBy: store.SortName}); err != nil {
		t.Fatalf("name sort should not parse dates: %v", err)
	}
}

// breakTasksFile swaps the task file for a directory so every write fails,
// whatever the user running the tests. The returned func undoes it.
func breakTasksFile(t *testing.T, s *store.Store) func() {
	t.Helper()
	path := s.TasksPath()
	if err := os.RemoveAll(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	return func() {
		if err := os.Remove(path); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPersistIOFailure(t *testing.T) {
	env := newTestEnv(t)
	breakTasksFile(t, env.Store)
	if _, err := env.Store.Add("a", "2024-06-01", store.AddOptions{}); !errors.Is(err, store.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if err := env.Store.Persist(); !errors.Is(err, store.ErrIO) {
		t.Fatalf("expected ErrIO from persist, got %v", err)
	}
}

func TestFailedWriteLeavesStoreUnchanged(t *testing.T) {
	env := newTestEnv(t)
	a := mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{})
	mustAdd(t, env.Store, "b", "2024-06-02", store.AddOptions{})
	want := mustList(t, env.Store, store.ListOptions{})
	depth := env.Store.UndoDepth()
	events := len(env.Journal.entries)

	repair := breakTasksFile(t, env.Store)
	if _, err := env.Store.Add("c", "2024-06-03", store.AddOptions{}); !errors.Is(err, store.ErrIO) {
		t.Fatalf("add: expected ErrIO, got %v", err)
	}
	if _, err := env.Store.Update(a.ID, store.TaskUpdate{Name: strPtr("renamed")}); !errors.Is(err, store.ErrIO) {
		t.Fatalf("update: expected ErrIO, got %v", err)
	}
	if _, err := env.Store.Delete(a.ID); !errors.Is(err, store.ErrIO) {
		t.Fatalf("delete: expected ErrIO, got %v", err)
	}
	if err := env.Store.MarkAllCompleted(); !errors.Is(err, store.ErrIO) {
		t.Fatalf("complete all: expected ErrIO, got %v", err)
	}
	if _, err := env.Store.ArchiveCompleted(); !errors.Is(err, store.ErrIO) {
		t.Fatalf("archive: expected ErrIO, got %v", err)
	}
	if _, err := env.Store.UndoLast(); !errors.Is(err, store.ErrIO) {
		t.Fatalf("undo: expected ErrIO, got %v", err)
	}
	if got := mustList(t, env.Store, store.ListOptions{}); !reflect.DeepEqual(got, want) {
		t.Fatalf("failed writes changed the collection: %+v", got)
	}
	if env.Store.UndoDepth() != depth {
		t.Fatalf("undo depth %d, want %d", env.Store.UndoDepth(), depth)
	}
	if len(env.Journal.entries) != events {
		t.Fatalf("failed writes were journaled: %v", env.Journal.types())
	}
	repair()

	c := mustAdd(t, env.Store, "c", "2024-06-03", store.AddOptions{})
	if c.ID != 3 {
		t.Fatalf("expected id 3 after failed add, got %d", c.ID)
	}
	if got := names(mustList(t, reopen(t, env), store.ListOptions{})); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("persisted %v", got)
	}
	if ok, err := env.Store.UndoLast(); !ok || err != nil {
		t.Fatalf("undo after repair: %v %v", ok, err)
	}
	if got := names(mustList(t, env.Store, store.ListOptions{})); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("after undo %v", got)
	}
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	mustAdd(t, env.Store, "a, with comma", "2024-06-01", store.AddOptions{Recurrence: domain.RecurrenceDaily})
	b := mustAdd(t, env.Store, "b", "2024-06-02", store.AddOptions{Priority: "Low"})
	done := true
	if _, err := env.Store.Update(b.ID, store.TaskUpdate{Completed: &done}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(env.Dir, "tasks.csv")
	if err := env.Store.ExportCSV(path); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"ID", "Name", "Due Date", "Priority", "Category", "Completed", "Recurrence"},
		{"1", "a, with comma", "2024-06-01", "Medium", "General", "False", "daily"},
		{"2", "b", "2024-06-02", "Low", "General", "True", ""},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("got %v want %v", rows, want)
	}
}

func TestJournalReceivesMutations(t *testing.T) {
	env := newTestEnv(t)
	a := mustAdd(t, env.Store, "a", "2024-06-01", store.AddOptions{})
	if _, err := env.Store.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Store.UndoLast(); err != nil {
		t.Fatal(err)
	}
	want := []string{"task.added", "task.deleted", "undo.delete"}
	if got := env.Journal.types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if id := env.Journal.entries[2].TaskID; id == nil || *id != a.ID {
		t.Fatalf("undo entry should reference task %d", a.ID)
	}
}

func TestJournalFailureDoesNotFailMutation(t *testing.T) {
	env := newTestEnv(t)
	env.Journal.err = errors.New("disk full")
	if _, err := env.Store.Add("a", "2024-06-01", store.AddOptions{}); err != nil {
		t.Fatalf("journal failure leaked: %v", err)
	}
}

func TestLoadRejectsNonPositiveID(t *testing.T) {
	path := writeTaskFile(t, `[{"id": 0, "name": "a", "due_date": "2024-06-01", "priority": "High", "category": "x", "completed": false, "recurrence": null}]`)
	if _, err := store.New(store.Config{TasksPath: path, ArchivePath: path + ".archive"}); !errors.Is(err, domain.ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	problems, err := store.CheckFile(path)
	if err != nil || len(problems) != 1 || problems[0].Path != "[0].id" {
		t.Fatalf("check should flag the same record: %v %v", problems, err)
	}
}
