package domain

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the on-disk form of a due date.
const DateLayout = "2006-01-02"

var (
	ErrMalformedRecord = errors.New("malformed task record")
	ErrInvalidDate     = errors.New("invalid date")
)

type Recurrence string

const (
	RecurrenceNone    Recurrence = ""
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Priorities used by convention; any other string is accepted.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

type Task struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	DueDate    string     `json:"due_date" format:"date"`
	Priority   string     `json:"priority"`
	Category   string     `json:"category"`
	Completed  bool       `json:"completed"`
	Recurrence Recurrence `json:"recurrence,omitempty" enum:"daily,weekly,monthly"`
}

var recordKeys = []string{"id", "name", "due_date", "priority", "category", "completed", "recurrence"}

// Serialize returns the flat record stored in the task file.
func (t Task) Serialize() map[string]any {
	var rec any
	if t.Recurrence != RecurrenceNone {
		rec = string(t.Recurrence)
	}
	return map[string]any{
		"id":         t.ID,
		"name":       t.Name,
		"due_date":   t.DueDate,
		"priority":   t.Priority,
		"category":   t.Category,
		"completed":  t.Completed,
		"recurrence": rec,
	}
}

// Deserialize builds a Task from a record. Every key must be present.
func Deserialize(m map[string]any) (Task, error) {
	for _, k := range recordKeys {
		if _, ok := m[k]; !ok {
			return Task{}, fmt.Errorf("%w: missing %q", ErrMalformedRecord, k)
		}
	}
	var t Task
	id, err := intField(m["id"])
	if err != nil {
		return Task{}, fmt.Errorf("%w: id: %v", ErrMalformedRecord, err)
	}
	if id < 1 {
		return Task{}, fmt.Errorf("%w: id must be positive, got %d", ErrMalformedRecord, id)
	}
	t.ID = id
	strs := map[string]*string{
		"name":     &t.Name,
		"due_date": &t.DueDate,
		"priority": &t.Priority,
		"category": &t.Category,
	}
	for k, dst := range strs {
		s, ok := m[k].(string)
		if !ok {
			return Task{}, fmt.Errorf("%w: %s must be a string", ErrMalformedRecord, k)
		}
		*dst = s
	}
	done, ok := m["completed"].(bool)
	if !ok {
		return Task{}, fmt.Errorf("%w: completed must be a boolean", ErrMalformedRecord)
	}
	t.Completed = done
	switch v := m["recurrence"].(type) {
	case nil:
	case string:
		t.Recurrence = Recurrence(v)
	default:
		return Task{}, fmt.Errorf("%w: recurrence must be a string or null", ErrMalformedRecord)
	}
	return t, nil
}

func intField(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// Due returns the parsed due date.
func (t Task) Due() (time.Time, error) {
	return ParseDate(t.DueDate)
}

// NextDueDate computes the next occurrence from the current due date.
// ok is false when the task does not recur. Monthly recurrence always
// lands on the 1st of the following month.
func (t Task) NextDueDate() (next time.Time, ok bool, err error) {
	d, err := t.Due()
	if err != nil {
		return time.Time{}, false, err
	}
	switch t.Recurrence {
	case RecurrenceDaily:
		return d.AddDate(0, 0, 1), true, nil
	case RecurrenceWeekly:
		return d.AddDate(0, 0, 7), true, nil
	case RecurrenceMonthly:
		n := time.Date(d.Year(), d.Month(), 28, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 4)
		return time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, time.UTC), true, nil
	default:
		return time.Time{}, false, nil
	}
}

// Event is one journal entry describing a store mutation.
type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	TaskID    *int   `json:"task_id,omitempty"`
	SessionID string `json:"session_id"`
	Payload   string `json:"payload_json"`
}
