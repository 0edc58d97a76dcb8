package store

import "tasktrack/internal/domain"

// undoEntry is one reversible action in the undo log.
type undoEntry interface {
	kind() string
	taskID() *int
	revert(s *Store)
}

type undoAdd struct {
	id int
}

func (u undoAdd) kind() string { return "add" }
func (u undoAdd) taskID() *int { return &u.id }
func (u undoAdd) revert(s *Store) {
	if i := s.indexOf(u.id); i >= 0 {
		s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	}
}

// undoUpdate holds every field of the task before the update.
type undoUpdate struct {
	before domain.Task
}

func (u undoUpdate) kind() string { return "update" }
func (u undoUpdate) taskID() *int {
	id := u.before.ID
	return &id
}
func (u undoUpdate) revert(s *Store) {
	// The task may have been archived since; nothing to restore then.
	if i := s.indexOf(u.before.ID); i >= 0 {
		s.tasks[i] = u.before
	}
}

type undoDelete struct {
	task  domain.Task
	index int
}

func (u undoDelete) kind() string { return "delete" }
func (u undoDelete) taskID() *int {
	id := u.task.ID
	return &id
}
func (u undoDelete) revert(s *Store) {
	i := u.index
	if i > len(s.tasks) {
		i = len(s.tasks)
	}
	s.tasks = append(s.tasks[:i], append([]domain.Task{u.task}, s.tasks[i:]...)...)
}

// undoBulkComplete remembers exactly which tasks were flipped.
type undoBulkComplete struct {
	ids []int
}

func (u undoBulkComplete) kind() string { return "bulk_complete" }
func (u undoBulkComplete) taskID() *int { return nil }
func (u undoBulkComplete) revert(s *Store) {
	for _, id := range u.ids {
		if i := s.indexOf(id); i >= 0 {
			s.tasks[i].Completed = false
		}
	}
}
