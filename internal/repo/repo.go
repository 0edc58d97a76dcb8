package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tasktrack/internal/domain"
)

// Repo reads the activity journal.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// EventFilter narrows journal queries; zero fields match everything.
type EventFilter struct {
	Type      string
	TaskID    *int
	SessionID string
}

func (f EventFilter) where(cursor int64) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.TaskID != nil {
		clauses = append(clauses, "task_id=?")
		args = append(args, *f.TaskID)
	}
	if f.SessionID != "" {
		clauses = append(clauses, "session_id=?")
		args = append(args, f.SessionID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (r Repo) LatestEvents(ctx context.Context, limit int, f EventFilter) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, f)
}

// LatestEventsFrom returns up to limit events older than cursor, newest first.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, f EventFilter) ([]domain.Event, error) {
	where, args := f.where(cursor)
	query := fmt.Sprintf(`SELECT id,ts,type,task_id,session_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,ts,type,task_id,session_id,payload_json FROM events WHERE id=?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

// CountByType summarizes the journal per event type.
func (r Repo) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT type, COUNT(*) FROM events GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		res[typ] = n
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (domain.Event, error) {
	var e domain.Event
	var taskID sql.NullInt64
	var payload sql.NullString
	if err := s.Scan(&e.ID, &e.TS, &e.Type, &taskID, &e.SessionID, &payload); err != nil {
		return e, err
	}
	if taskID.Valid {
		id := int(taskID.Int64)
		e.TaskID = &id
	}
	if payload.Valid {
		e.Payload = payload.String
	}
	return e, nil
}
