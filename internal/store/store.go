// Package store owns the live task collection, its undo log and the
// task file it is persisted to.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"tasktrack/internal/domain"
)

var (
	ErrCorruptStore = errors.New("corrupt task store")
	ErrIO           = errors.New("storage io failure")
)

// Journal receives one entry per applied mutation.
type Journal interface {
	Append(evtType string, taskID *int, payload map[string]any) error
}

// Config wires a Store to its files and collaborators.
type Config struct {
	TasksPath   string
	ArchivePath string
	Journal     Journal
	Logger      *slog.Logger
	Now         func() time.Time
}

// Store is not safe for concurrent use; callers serialize access.
type Store struct {
	tasksPath   string
	archivePath string
	journal     Journal
	log         *slog.Logger
	clock       func() time.Time

	tasks  []domain.Task
	undo   []undoEntry
	nextID int
}

// New builds a Store and hydrates it from the task file.
func New(cfg Config) (*Store, error) {
	if cfg.TasksPath == "" {
		return nil, errors.New("tasks path is required")
	}
	if cfg.ArchivePath == "" {
		return nil, errors.New("archive path is required")
	}
	s := &Store{
		tasksPath:   cfg.TasksPath,
		archivePath: cfg.ArchivePath,
		journal:     cfg.Journal,
		log:         cfg.Logger,
		clock:       cfg.Now,
		nextID:      1,
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

// TasksPath returns the backing task file.
func (s *Store) TasksPath() string { return s.tasksPath }

// ArchivePath returns the archive file.
func (s *Store) ArchivePath() string { return s.archivePath }

// Len reports the number of live tasks.
func (s *Store) Len() int { return len(s.tasks) }

// UndoDepth reports how many actions can be undone.
func (s *Store) UndoDepth() int { return len(s.undo) }

// Load replaces the in-memory collection with the task file contents.
// A missing file yields an empty store; an empty file is corrupt.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.tasksPath)
	if err != nil {
		if os.IsNotExist(err) {
			s.tasks = nil
			s.undo = nil
			return s.loadSeq(0)
		}
		return fmt.Errorf("%w: read %s: %v", ErrIO, s.tasksPath, err)
	}
	tasks, err := decodeTasks(data)
	if err != nil {
		return fmt.Errorf("load %s: %w", s.tasksPath, err)
	}
	maxID := 0
	for _, t := range tasks {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	s.tasks = tasks
	s.undo = nil
	return s.loadSeq(maxID)
}

func decodeTasks(data []byte) ([]domain.Task, error) {
	var recs []map[string]any
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if recs == nil {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrCorruptStore)
	}
	tasks := make([]domain.Task, 0, len(recs))
	for i, rec := range recs {
		t, err := domain.Deserialize(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func encodeTasks(tasks []domain.Task) ([]byte, error) {
	recs := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		recs = append(recs, t.Serialize())
	}
	return json.MarshalIndent(recs, "", "    ")
}

// Persist overwrites the task file with the full collection. The id
// counter is written first: a counter ahead of the task file only skips ids.
func (s *Store) Persist() error {
	if err := s.saveSeq(); err != nil {
		return err
	}
	return writeTasks(s.tasksPath, s.tasks)
}

// state is the in-memory part of a Store that a failed Persist rolls back.
type state struct {
	tasks  []domain.Task
	undo   []undoEntry
	nextID int
}

func (s *Store) snapshot() state {
	return state{
		tasks:  append([]domain.Task(nil), s.tasks...),
		undo:   s.undo[:len(s.undo):len(s.undo)],
		nextID: s.nextID,
	}
}

// commit persists the current collection, restoring before when the write
// fails so memory never holds a mutation the caller saw fail.
func (s *Store) commit(before state) error {
	if err := s.Persist(); err != nil {
		s.tasks, s.undo, s.nextID = before.tasks, before.undo, before.nextID
		return err
	}
	return nil
}

func writeTasks(path string, tasks []domain.Task) error {
	data, err := encodeTasks(tasks)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrIO, path, err)
	}
	return nil
}

// AddOptions carries the optional fields of a new task.
type AddOptions struct {
	Priority   string
	Category   string
	Recurrence domain.Recurrence
}

// Add appends a task with the next identifier.
func (s *Store) Add(name, dueDate string, opts AddOptions) (domain.Task, error) {
	if _, err := domain.ParseDate(dueDate); err != nil {
		return domain.Task{}, err
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if opts.Category == "" {
		opts.Category = "General"
	}
	t := domain.Task{
		ID:         s.nextID,
		Name:       name,
		DueDate:    dueDate,
		Priority:   opts.Priority,
		Category:   opts.Category,
		Recurrence: opts.Recurrence,
	}
	prev := s.snapshot()
	s.nextID++
	s.tasks = append(s.tasks, t)
	s.undo = append(s.undo, undoAdd{id: t.ID})
	if err := s.commit(prev); err != nil {
		return domain.Task{}, err
	}
	s.record("task.added", &t.ID, map[string]any{"name": t.Name, "due_date": t.DueDate})
	return t, nil
}

// Get looks a task up by identifier.
func (s *Store) Get(id int) (domain.Task, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return domain.Task{}, false
	}
	return s.tasks[i], true
}

func (s *Store) indexOf(id int) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// TaskUpdate lists the fields to overwrite; nil fields are left alone.
type TaskUpdate struct {
	Name       *string
	DueDate    *string
	Priority   *string
	Category   *string
	Completed  *bool
	Recurrence *domain.Recurrence
}

func (u TaskUpdate) fields() []string {
	var out []string
	if u.Name != nil {
		out = append(out, "name")
	}
	if u.DueDate != nil {
		out = append(out, "due_date")
	}
	if u.Priority != nil {
		out = append(out, "priority")
	}
	if u.Category != nil {
		out = append(out, "category")
	}
	if u.Completed != nil {
		out = append(out, "completed")
	}
	if u.Recurrence != nil {
		out = append(out, "recurrence")
	}
	return out
}

// Update applies u to the task with the given id. It reports false when
// no such task exists.
func (s *Store) Update(id int, u TaskUpdate) (bool, error) {
	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	if u.DueDate != nil {
		if _, err := domain.ParseDate(*u.DueDate); err != nil {
			return false, err
		}
	}
	prev := s.snapshot()
	before := s.tasks[i]
	t := &s.tasks[i]
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.DueDate != nil {
		t.DueDate = *u.DueDate
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Category != nil {
		t.Category = *u.Category
	}
	if u.Completed != nil {
		t.Completed = *u.Completed
	}
	if u.Recurrence != nil {
		t.Recurrence = *u.Recurrence
	}
	s.undo = append(s.undo, undoUpdate{before: before})
	if err := s.commit(prev); err != nil {
		return false, err
	}
	s.record("task.updated", &id, map[string]any{"fields": u.fields()})
	return true, nil
}

// Delete removes the task with the given id.
func (s *Store) Delete(id int) (bool, error) {
	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	prev := s.snapshot()
	removed := s.tasks[i]
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	s.undo = append(s.undo, undoDelete{task: removed, index: i})
	if err := s.commit(prev); err != nil {
		return false, err
	}
	s.record("task.deleted", &id, map[string]any{"name": removed.Name})
	return true, nil
}

// MarkAllCompleted completes every open task and persists, even when
// there is nothing to change.
func (s *Store) MarkAllCompleted() error {
	prev := s.snapshot()
	var changed []int
	for i := range s.tasks {
		if !s.tasks[i].Completed {
			s.tasks[i].Completed = true
			changed = append(changed, s.tasks[i].ID)
		}
	}
	s.undo = append(s.undo, undoBulkComplete{ids: changed})
	if err := s.commit(prev); err != nil {
		return err
	}
	s.record("tasks.completed_all", nil, map[string]any{"count": len(changed)})
	return nil
}

// ArchiveCompleted moves completed tasks into the archive file, which is
// overwritten. Archiving cannot be undone.
func (s *Store) ArchiveCompleted() ([]domain.Task, error) {
	done := []domain.Task{}
	var open []domain.Task
	for _, t := range s.tasks {
		if t.Completed {
			done = append(done, t)
		} else {
			open = append(open, t)
		}
	}
	if err := writeTasks(s.archivePath, done); err != nil {
		return nil, err
	}
	prev := s.snapshot()
	s.tasks = open
	if err := s.commit(prev); err != nil {
		return nil, err
	}
	s.record("tasks.archived", nil, map[string]any{"count": len(done), "archive": s.archivePath})
	return done, nil
}

// Search returns tasks whose name contains keyword, ignoring case.
func (s *Store) Search(keyword string) []domain.Task {
	kw := strings.ToLower(keyword)
	res := []domain.Task{}
	for _, t := range s.tasks {
		if strings.Contains(strings.ToLower(t.Name), kw) {
			res = append(res, t)
		}
	}
	return res
}

// Overdue returns open tasks due strictly before today.
func (s *Store) Overdue() ([]domain.Task, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	res := []domain.Task{}
	for _, t := range s.tasks {
		due, err := t.Due()
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", t.ID, err)
		}
		if due.Before(today) && !t.Completed {
			res = append(res, t)
		}
	}
	return res, nil
}

// UndoLast reverts the most recent mutation. It reports false when there
// is nothing to undo.
func (s *Store) UndoLast() (bool, error) {
	if len(s.undo) == 0 {
		return false, nil
	}
	prev := s.snapshot()
	last := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	last.revert(s)
	if err := s.commit(prev); err != nil {
		return false, err
	}
	s.record("undo."+last.kind(), last.taskID(), nil)
	return true, nil
}

func (s *Store) record(evtType string, taskID *int, payload map[string]any) {
	s.log.Debug("store mutation", "type", evtType, "tasks", len(s.tasks))
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(evtType, taskID, payload); err != nil {
		s.log.Warn("journal append failed", "type", evtType, "error", err)
	}
}
