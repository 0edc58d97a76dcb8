package server

import (
	"tasktrack/internal/domain"
	"tasktrack/internal/store"
)

// Request payloads

type CreateTaskRequest struct {
	Name       string  `json:"name" minLength:"1"`
	DueDate    string  `json:"due_date" format:"date"`
	Priority   *string `json:"priority,omitempty" example:"High"`
	Category   *string `json:"category,omitempty" example:"General"`
	Recurrence *string `json:"recurrence,omitempty" enum:"none,daily,weekly,monthly"`
}

// UpdateTaskRequest fields left out of the body are not touched; an
// explicit empty string overwrites.
type UpdateTaskRequest struct {
	Name       *string `json:"name,omitempty"`
	DueDate    *string `json:"due_date,omitempty" format:"date"`
	Priority   *string `json:"priority,omitempty"`
	Category   *string `json:"category,omitempty"`
	Completed  *bool   `json:"completed,omitempty"`
	Recurrence *string `json:"recurrence,omitempty" enum:"none,daily,weekly,monthly"`
}

// Response payloads

type TaskList struct {
	Items []domain.Task `json:"items"`
}

type NextDueResponse struct {
	TaskID      int    `json:"task_id"`
	Recurring   bool   `json:"recurring"`
	NextDueDate string `json:"next_due_date,omitempty" format:"date"`
}

type ArchiveResponse struct {
	Archived    []domain.Task `json:"archived"`
	ArchiveFile string        `json:"archive_file"`
}

type ExportResponse struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

type UndoResponse struct {
	Undone    bool `json:"undone"`
	Remaining int  `json:"remaining"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
	ID      int  `json:"id"`
}

type EventResponse struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	TaskID    *int   `json:"task_id,omitempty"`
	SessionID string `json:"session_id"`
	Payload   string `json:"payload_json"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:        e.ID,
		TS:        e.TS,
		Type:      e.Type,
		TaskID:    e.TaskID,
		SessionID: e.SessionID,
		Payload:   e.Payload,
	}
}

func recurrence(v string) domain.Recurrence {
	if v == "none" {
		return domain.RecurrenceNone
	}
	return domain.Recurrence(v)
}

func (r CreateTaskRequest) addOptions() store.AddOptions {
	var opts store.AddOptions
	if r.Priority != nil {
		opts.Priority = *r.Priority
	}
	if r.Category != nil {
		opts.Category = *r.Category
	}
	if r.Recurrence != nil {
		opts.Recurrence = recurrence(*r.Recurrence)
	}
	return opts
}

func (r UpdateTaskRequest) taskUpdate() store.TaskUpdate {
	u := store.TaskUpdate{
		Name:      r.Name,
		DueDate:   r.DueDate,
		Priority:  r.Priority,
		Category:  r.Category,
		Completed: r.Completed,
	}
	if r.Recurrence != nil {
		rec := recurrence(*r.Recurrence)
		u.Recurrence = &rec
	}
	return u
}
